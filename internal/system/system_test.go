package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkers(t *testing.T) {
	tests := []struct {
		name     string
		host     Host
		perImage uint64
		want     int
	}{
		{"cpu bound", Host{LogicalCPUs: 8, AvailableMemory: 64 << 30}, 512 << 20, 8},
		{"memory bound", Host{LogicalCPUs: 16, AvailableMemory: 2 << 30}, 512 << 20, 4},
		{"unknown memory", Host{LogicalCPUs: 4}, 512 << 20, 4},
		{"starved host", Host{LogicalCPUs: 4, AvailableMemory: 100 << 20}, 512 << 20, 1},
		{"no cpus reported", Host{}, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.host.Workers(tt.perImage))
		})
	}
}

func TestDefaultWorkersAtLeastOne(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
	assert.GreaterOrEqual(t, Probe().LogicalCPUs, 1)
}
