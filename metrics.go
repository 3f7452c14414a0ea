// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"fmt"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Latency histograms track nanosecond durations up to one minute, with
// three significant figures — enough resolution to distinguish a cache hit
// from a disk read without the memory cost of tracking every sample.
const (
	latencyMinValue         = 1
	latencyMaxValue         = int64(60e9)
	latencySignificantDigit = 3
)

var (
	metricLevelFiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lsmdb",
		Name:      "level_files",
		Help:      "Number of sstables currently resident at a level.",
	}, []string{"db", "level"})

	metricLevelBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lsmdb",
		Name:      "level_bytes",
		Help:      "Total sstable bytes currently resident at a level.",
	}, []string{"db", "level"})

	metricFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lsmdb",
		Name:      "flushes_total",
		Help:      "Completed memtable flushes.",
	}, []string{"db"})

	metricCompactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lsmdb",
		Name:      "compactions_total",
		Help:      "Completed compactions, by destination level.",
	}, []string{"db", "level"})

	metricCompactionBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lsmdb",
		Name:      "compaction_output_bytes_total",
		Help:      "Bytes written to flush and compaction output tables.",
	}, []string{"db"})
)

// Metrics holds one DB's Prometheus collectors plus latency histograms too
// fine-grained to expose as Prometheus series on every sample: counters and
// gauges go through promauto, and hdrhistogram covers latency quantiles.
type Metrics struct {
	dbLabel string

	mu         sync.Mutex
	getLatency *hdrhistogram.Histogram
	putLatency *hdrhistogram.Histogram
	compactionLatency *hdrhistogram.Histogram
	flushLatency      *hdrhistogram.Histogram
}

func newMetrics(dirname string) *Metrics {
	return &Metrics{
		dbLabel:           dirname,
		getLatency:        hdrhistogram.New(latencyMinValue, latencyMaxValue, latencySignificantDigit),
		putLatency:        hdrhistogram.New(latencyMinValue, latencyMaxValue, latencySignificantDigit),
		compactionLatency: hdrhistogram.New(latencyMinValue, latencyMaxValue, latencySignificantDigit),
		flushLatency:      hdrhistogram.New(latencyMinValue, latencyMaxValue, latencySignificantDigit),
	}
}

func (m *Metrics) recordGet(nanos int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getLatency.RecordValue(nanos)
}

func (m *Metrics) recordPut(nanos int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLatency.RecordValue(nanos)
}

func (m *Metrics) recordFlush(nanos int64, outputBytes uint64) {
	m.mu.Lock()
	m.flushLatency.RecordValue(nanos)
	m.mu.Unlock()
	metricFlushesTotal.WithLabelValues(m.dbLabel).Inc()
	metricCompactionBytesTotal.WithLabelValues(m.dbLabel).Add(float64(outputBytes))
}

func (m *Metrics) recordCompaction(nanos int64, toLevel int, outputBytes uint64) {
	m.mu.Lock()
	m.compactionLatency.RecordValue(nanos)
	m.mu.Unlock()
	metricCompactionsTotal.WithLabelValues(m.dbLabel, fmt.Sprintf("%d", toLevel)).Inc()
	metricCompactionBytesTotal.WithLabelValues(m.dbLabel).Add(float64(outputBytes))
}

// GetQuantile returns the estimated p-th percentile (0-100) Get latency in
// nanoseconds observed so far.
func (m *Metrics) GetQuantile(p float64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLatency.ValueAtQuantile(p)
}

// PutQuantile returns the estimated p-th percentile (0-100) Put latency in
// nanoseconds observed so far.
func (m *Metrics) PutQuantile(p float64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLatency.ValueAtQuantile(p)
}

// updateLevelGauges refreshes the per-level file-count and byte-total
// gauges from v, called after a flush or compaction installs a new Version.
func (m *Metrics) updateLevelGauges(v *manifest.Version) {
	for level := 0; level < manifest.NumLevels; level++ {
		files := v.Files[level]
		var bytes uint64
		for _, f := range files {
			bytes += f.Size
		}
		levelLabel := fmt.Sprintf("%d", level)
		metricLevelFiles.WithLabelValues(m.dbLabel, levelLabel).Set(float64(len(files)))
		metricLevelBytes.WithLabelValues(m.dbLabel, levelLabel).Set(float64(bytes))
	}
}
