// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package hoststat samples host and process resource usage.
package hoststat

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

var startTime = time.Now()

type Stats struct {
	CPUPercent    float64
	MemoryTotal   uint64
	MemoryUsed    uint64
	MemoryPercent float64
	// RSS is the resident set of this process.
	RSS    uint64
	Uptime time.Duration
}

// Sample reads current usage. CPU percent is measured since the previous call,
// so the first sample of a process may read zero.
func Sample(ctx context.Context) (*Stats, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open process: %w", err)
	}
	info, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("process memory: %w", err)
	}

	s := &Stats{
		MemoryTotal:   vm.Total,
		MemoryUsed:    vm.Used,
		MemoryPercent: vm.UsedPercent,
		RSS:           info.RSS,
		Uptime:        time.Since(startTime),
	}
	if len(percents) > 0 {
		s.CPUPercent = percents[0]
	}
	return s, nil
}

// String renders the one-line summary shown on the status page.
func (s *Stats) String() string {
	return fmt.Sprintf("cpu %.1f%% mem %.1f%% rss %s", s.CPUPercent, s.MemoryPercent,
		units.HumanSize(float64(s.RSS)))
}
