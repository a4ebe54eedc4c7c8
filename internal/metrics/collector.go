// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package metrics exports daemon counters in the Prometheus text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomoconnor/keepalive/internal/cpuload"
	"github.com/tomoconnor/keepalive/internal/traffic"
)

const namespace = "keepalive"

type CPUSource interface {
	Stats() cpuload.Stats
}

type TrafficSource interface {
	Stats() traffic.Stats
}

type TriggerSource interface {
	Triggers() uint64
}

// Sources are read on every scrape. Nil sources are skipped.
type Sources struct {
	CPU           CPUSource
	Traffic       TrafficSource
	Schedule      TriggerSource
	ReservedBytes int64
}

// Collector reads component counters at scrape time instead of mirroring them
// into prometheus metric vectors.
type Collector struct {
	src Sources

	cpuBusy   *prometheus.Desc
	cpuIdle   *prometheus.Desc
	cpuCycles *prometheus.Desc
	bytes     *prometheus.Desc
	runs      *prometheus.Desc
	retries   *prometheus.Desc
	memory    *prometheus.Desc
	triggers  *prometheus.Desc
}

func NewCollector(src Sources) *Collector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &Collector{
		src:       src,
		cpuBusy:   desc("cpu", "busy_seconds_total", "Time spent spinning."),
		cpuIdle:   desc("cpu", "idle_seconds_total", "Time spent sleeping inside duty cycles."),
		cpuCycles: desc("cpu", "cycles_total", "Completed duty cycles."),
		bytes:     desc("traffic", "bytes_total", "Bytes downloaded and discarded."),
		runs:      desc("traffic", "runs_total", "Transfer runs by result.", "result"),
		retries:   desc("traffic", "retries_total", "Transfer reconnects after an error."),
		memory:    desc("memory", "reserved_bytes", "Size of the resident memory reservation."),
		triggers:  desc("schedule", "triggers_total", "Transfers started by the scheduler."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.cpuBusy, c.cpuIdle, c.cpuCycles, c.bytes, c.runs, c.retries, c.memory, c.triggers,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(c.src.ReservedBytes))

	if c.src.CPU != nil {
		s := c.src.CPU.Stats()
		ch <- prometheus.MustNewConstMetric(c.cpuBusy, prometheus.CounterValue, s.Busy.Seconds())
		ch <- prometheus.MustNewConstMetric(c.cpuIdle, prometheus.CounterValue, s.Idle.Seconds())
		ch <- prometheus.MustNewConstMetric(c.cpuCycles, prometheus.CounterValue, float64(s.Cycles))
	}
	if c.src.Traffic != nil {
		s := c.src.Traffic.Stats()
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(s.Bytes))
		ch <- prometheus.MustNewConstMetric(c.retries, prometheus.CounterValue, float64(s.Retries))
		for _, r := range traffic.Results() {
			ch <- prometheus.MustNewConstMetric(c.runs, prometheus.CounterValue, float64(s.Runs[r]), r.String())
		}
	}
	if c.src.Schedule != nil {
		ch <- prometheus.MustNewConstMetric(c.triggers, prometheus.CounterValue, float64(c.src.Schedule.Triggers()))
	}
}
