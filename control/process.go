// control/process.go
// Author: momentics <momentics@gmail.com>
//
// Process resource probes backed by gopsutil.

package control

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// RegisterProcessProbes adds memory, CPU, thread and descriptor usage of the
// current process. Probes that fail report the error text.
func RegisterProcessProbes(dp *DebugProbes) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	dp.RegisterProbe("process.rss_bytes", func() any {
		mi, err := p.MemoryInfo()
		if err != nil {
			return err.Error()
		}
		return mi.RSS
	})
	dp.RegisterProbe("process.cpu_percent", func() any {
		v, err := p.CPUPercent()
		if err != nil {
			return err.Error()
		}
		return v
	})
	dp.RegisterProbe("process.threads", func() any {
		v, err := p.NumThreads()
		if err != nil {
			return err.Error()
		}
		return v
	})
	dp.RegisterProbe("process.open_fds", func() any {
		v, err := p.NumFDs()
		if err != nil {
			return err.Error()
		}
		return v
	})
	return nil
}
