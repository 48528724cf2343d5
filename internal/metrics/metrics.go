// Package metrics tracks operational counters and latency histograms for
// the log queue, discovery service and election engine.
package metrics

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// log-spaced from 1us to 10s.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for a running
// log daemon.
type Metrics struct {
	WriteOps    atomic.Uint64
	WriteBytes  atomic.Uint64
	WriteErrors atomic.Uint64

	ReadOps    atomic.Uint64
	ReadBytes  atomic.Uint64
	ReadErrors atomic.Uint64

	SwitchOps    atomic.Uint64
	SwitchErrors atomic.Uint64

	DiscoveryHellosSent   atomic.Uint64
	DiscoveryWelcomesSent atomic.Uint64
	DiscoveryWelcomesRecv atomic.Uint64

	ElectionPingsSent       atomic.Uint64
	ElectionNominationsSent atomic.Uint64
	ElectionTermChanges     atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// New creates a new metrics instance with its start time set to now.
func New() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordWrite records one queue append.
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordRead records one queue read.
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordSwitch records one segment roll-over.
func (m *Metrics) RecordSwitch(latencyNs uint64, success bool) {
	m.SwitchOps.Add(1)
	if !success {
		m.SwitchErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordDiscoveryHelloSent records a Hello datagram sent by the discovery client.
func (m *Metrics) RecordDiscoveryHelloSent() { m.DiscoveryHellosSent.Add(1) }

// RecordDiscoveryWelcomeSent records a Welcome datagram sent by the discovery server.
func (m *Metrics) RecordDiscoveryWelcomeSent() { m.DiscoveryWelcomesSent.Add(1) }

// RecordDiscoveryWelcomeReceived records a Welcome datagram received by the discovery client.
func (m *Metrics) RecordDiscoveryWelcomeReceived() { m.DiscoveryWelcomesRecv.Add(1) }

// RecordElectionPingSent records a Ping RPC the election engine sent as leader.
func (m *Metrics) RecordElectionPingSent() { m.ElectionPingsSent.Add(1) }

// RecordElectionNominationSent records a Nominate RPC the election engine sent as candidate.
func (m *Metrics) RecordElectionNominationSent() { m.ElectionNominationsSent.Add(1) }

// RecordElectionTermChange records a role/epoch transition.
func (m *Metrics) RecordElectionTermChange() { m.ElectionTermChanges.Add(1) }

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the daemon as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time view of Metrics.
type Snapshot struct {
	WriteOps, WriteBytes, WriteErrors uint64
	ReadOps, ReadBytes, ReadErrors    uint64
	SwitchOps, SwitchErrors           uint64

	DiscoveryHellosSent, DiscoveryWelcomesSent, DiscoveryWelcomesRecv uint64
	ElectionPingsSent, ElectionNominationsSent, ElectionTermChanges   uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns, LatencyP99Ns, LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps uint64
}

// Snapshot takes a consistent-enough point-in-time copy of the counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		WriteOps:    m.WriteOps.Load(),
		WriteBytes:  m.WriteBytes.Load(),
		WriteErrors: m.WriteErrors.Load(),

		ReadOps:    m.ReadOps.Load(),
		ReadBytes:  m.ReadBytes.Load(),
		ReadErrors: m.ReadErrors.Load(),

		SwitchOps:    m.SwitchOps.Load(),
		SwitchErrors: m.SwitchErrors.Load(),

		DiscoveryHellosSent:   m.DiscoveryHellosSent.Load(),
		DiscoveryWelcomesSent: m.DiscoveryWelcomesSent.Load(),
		DiscoveryWelcomesRecv: m.DiscoveryWelcomesRecv.Load(),

		ElectionPingsSent:       m.ElectionPingsSent.Load(),
		ElectionNominationsSent: m.ElectionNominationsSent.Load(),
		ElectionTermChanges:     m.ElectionTermChanges.Load(),
	}

	snap.TotalOps = snap.WriteOps + snap.ReadOps + snap.SwitchOps

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// via linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}
	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Observer allows pluggable metrics collection, independent of the
// concrete Metrics implementation.
type Observer interface {
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveSwitch(latencyNs uint64, success bool)
	ObserveElectionTermChange()
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObserveRead(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveSwitch(uint64, bool)        {}
func (NoOpObserver) ObserveElectionTermChange()        {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewObserver creates an Observer that records into m.
func NewObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveSwitch(latencyNs uint64, success bool) {
	o.metrics.RecordSwitch(latencyNs, success)
}

func (o *MetricsObserver) ObserveElectionTermChange() {
	o.metrics.RecordElectionTermChange()
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
