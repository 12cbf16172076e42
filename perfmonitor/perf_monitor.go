// Package perfmonitor measures how long a transfer step takes and derives
// its throughput for logging.
package perfmonitor

import "time"

// PerformanceMonitor is a start/stop timer. It is not safe for concurrent use;
// each transfer owns its own monitor.
type PerformanceMonitor struct {
	startTime time.Time
	endTime   time.Time
}

// NewPerformanceMonitor returns a monitor with no measurement.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{}
}

// Start records the start time. Calling Start again restarts the measurement.
func (pm *PerformanceMonitor) Start() {
	pm.startTime = time.Now()
	pm.endTime = time.Time{}
}

// Stop records the end time. It has no effect if Start was not called.
// Calling Stop again extends the measurement to the later time.
func (pm *PerformanceMonitor) Stop() {
	if pm.startTime.IsZero() {
		return
	}

	pm.endTime = time.Now()
}

// Elapsed returns the measured duration, or 0 if the measurement is incomplete.
func (pm *PerformanceMonitor) Elapsed() time.Duration {
	if pm.startTime.IsZero() || pm.endTime.IsZero() {
		return 0
	}

	return pm.endTime.Sub(pm.startTime)
}

// BytesPerSecond returns the throughput for n bytes moved during the
// measurement, or 0 if nothing was measured.
//
// Parameters:
//   - n: Number of bytes transferred between Start and Stop
//
// Returns:
//   - Bytes per second
func (pm *PerformanceMonitor) BytesPerSecond(n uint64) float64 {
	elapsed := pm.Elapsed()
	if elapsed <= 0 {
		return 0
	}

	return float64(n) / elapsed.Seconds()
}
