package monitor

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/tphakala/xferwatch/internal/errors"
)

// Probe reads the facts a poll is based on.
type Probe interface {
	// ProcessRunning reports whether a process with the given name exists.
	ProcessRunning(ctx context.Context, name string) (bool, error)
	// DirSize returns the total size of regular files below path.
	DirSize(ctx context.Context, path string) (uint64, error)
	// DiskUsedPercent returns the usage of the filesystem holding path.
	DiskUsedPercent(ctx context.Context, path string) (float64, error)
}

// SystemProbe is the Probe backed by gopsutil and the local filesystem.
type SystemProbe struct{}

// ProcessRunning implements Probe.
func (SystemProbe) ProcessRunning(ctx context.Context, name string) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range procs {
		// Processes can exit between listing and lookup.
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if pname == name {
			return true, nil
		}
	}
	return false, nil
}

// DirSize implements Probe. Files that vanish during the walk are skipped,
// transfers rename temporary files all the time.
func (SystemProbe) DirSize(ctx context.Context, path string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p != path && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	return total, err
}

// DiskUsedPercent implements Probe.
func (SystemProbe) DiskUsedPercent(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}
