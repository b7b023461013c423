// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/xferwatch/internal/notification"
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", AppName)
	v.SetDefault("main.loglevel", "info")
	v.SetDefault("main.jsonlogs", false)
	v.SetDefault("main.log.enabled", false)
	v.SetDefault("main.log.path", "logs/xferwatch.log")
	v.SetDefault("main.log.rotation", RotationDaily)
	v.SetDefault("main.log.maxsize", 100)
	v.SetDefault("main.log.compress", false)

	v.SetDefault("transfer.processname", "")
	v.SetDefault("transfer.destination", "")
	v.SetDefault("transfer.expectedsize", "")
	v.SetDefault("transfer.pollinterval", 30*time.Second)
	v.SetDefault("transfer.progressstep", 10.0)
	v.SetDefault("transfer.stalltimeout", 10*time.Minute)
	v.SetDefault("transfer.diskwarning", 95.0)

	v.SetDefault("notification.mininterval", notification.DefaultMinInterval)
	v.SetDefault("notification.validatorttl", notification.DefaultValidatorTTL)
	v.SetDefault("notification.cleanuptimeout", notification.DefaultCleanupTimeout)
	v.SetDefault("notification.tags", []string{})
	v.SetDefault("notification.log.enabled", false)
	v.SetDefault("notification.log.path", "logs/notifications.log")
	v.SetDefault("notification.log.rotation", RotationSize)
	v.SetDefault("notification.log.maxsize", 10)
	v.SetDefault("notification.log.compress", true)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.listen", "127.0.0.1:8090")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
}
