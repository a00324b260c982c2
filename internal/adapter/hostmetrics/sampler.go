// Package hostmetrics samples host CPU and memory utilization for the
// dashboard's resource history.
package hostmetrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Strob0t/AgentDeck/internal/domain/agent"
)

// Sampler reads host utilization through gopsutil.
type Sampler struct {
	cpuPercent func(ctx context.Context) (float64, error)
	memPercent func(ctx context.Context) (float64, error)
	now        func() time.Time
}

// New creates a sampler backed by the host's counters.
func New() *Sampler {
	return &Sampler{
		cpuPercent: hostCPU,
		memPercent: hostMemory,
		now:        time.Now,
	}
}

func hostCPU(ctx context.Context) (float64, error) {
	// A zero interval compares against the previous call; the first call
	// after start reports usage since boot.
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(pcts) == 0 {
		return 0, errors.New("cpu percent: no data")
	}
	return pcts[0], nil
}

func hostMemory(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return vm.UsedPercent, nil
}

// Sample takes one reading stamped HH:MM.
func (s *Sampler) Sample(ctx context.Context) (agent.ResourceSample, error) {
	c, err := s.cpuPercent(ctx)
	if err != nil {
		return agent.ResourceSample{}, err
	}
	m, err := s.memPercent(ctx)
	if err != nil {
		return agent.ResourceSample{}, err
	}
	return agent.ResourceSample{
		Timestamp: s.now().Format("15:04"),
		CPU:       agent.Clamp(c),
		Memory:    agent.Clamp(m),
	}, nil
}

// Run samples every interval and hands each reading to sink until ctx is
// cancelled. Failed samples are logged and skipped.
func (s *Sampler) Run(ctx context.Context, interval time.Duration, sink func(agent.ResourceSample)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := s.Sample(ctx)
			if err != nil {
				slog.Warn("host sample failed", "error", err)
				continue
			}
			sink(sample)
		}
	}
}
