// conf/consts.go hard coded constants
package conf

const (
	AppName        = "xferwatch"
	ConfigFileName = "config.yaml"
	EnvPrefix      = "XFERWATCH"
)

// Log rotation modes accepted in main.log.rotation.
const (
	RotationDaily  = "daily"
	RotationWeekly = "weekly"
	RotationSize   = "size"
)
