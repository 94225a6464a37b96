// Package system sizes the worker pool to the host.
package system

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// PerImageBudget is the working-set estimate for one image in flight:
// a 24 MP photo with its channel maps, trimap, GrabCut models and output.
const PerImageBudget uint64 = 512 * 1024 * 1024

// Host describes the resources visible to the process.
type Host struct {
	LogicalCPUs     int
	AvailableMemory uint64
}

// Probe reads the host through gopsutil, falling back to the Go runtime
// for the CPU count. AvailableMemory is 0 when it cannot be read.
func Probe() Host {
	host := Host{LogicalCPUs: runtime.NumCPU()}

	if n, err := cpu.Counts(true); err == nil && n > 0 {
		host.LogicalCPUs = n
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		host.AvailableMemory = vm.Available
	}

	return host
}

// Workers returns how many images may be processed at once on h.
func (h Host) Workers(perImage uint64) int {
	workers := h.LogicalCPUs
	if workers < 1 {
		workers = 1
	}

	if perImage > 0 && h.AvailableMemory > 0 {
		byMemory := int(h.AvailableMemory / perImage)
		if byMemory < workers {
			workers = byMemory
		}
	}

	if workers < 1 {
		workers = 1
	}
	return workers
}

func DefaultWorkers() int {
	return Probe().Workers(PerImageBudget)
}
