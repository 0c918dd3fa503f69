package daemon

import (
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eyetrax/gazed/pkg/calibration"
)

var (
	tickRecorder = NewTickRecorder(256)
	// A calibration step is only a few seconds long; if the loop stalls
	// for longer than this the collected samples are suspect.
	continuousTickThreshold = 2 * time.Second
)

// TickRecorder records the last N session tick times. It is used to
// detect stalls in the tick loop (system sleep, camera hangs) that
// would skew step sample collection.
type TickRecorder struct {
	max   int
	ticks []time.Time
	mu    *sync.Mutex
}

// NewTickRecorder returns a new TickRecorder keeping at most
// maxRecordCount tick times.
func NewTickRecorder(maxRecordCount int) *TickRecorder {
	return &TickRecorder{
		max:   maxRecordCount,
		ticks: make([]time.Time, 0),
		mu:    &sync.Mutex{},
	}
}

// AddRecord adds a new tick record.
func (r *TickRecorder) AddRecord(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Round to strip the monotonic clock reading, so time.Since stays
	// accurate across system sleep.
	t = t.Round(0)

	if len(r.ticks) >= r.max {
		r.ticks = r.ticks[1:]
	}
	r.ticks = append(r.ticks, t)
}

// AddRecordNow adds a new record with the current time.
func (r *TickRecorder) AddRecordNow() {
	r.AddRecord(time.Now())
}

// ClearRecords clears all records.
func (r *TickRecorder) ClearRecords() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ticks = make([]time.Time, 0)
}

// GetRecords returns a copy of the records.
func (r *TickRecorder) GetRecords() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]time.Time, len(r.ticks))
	copy(out, r.ticks)
	return out
}

// GetLastRecord returns the most recent tick time, or the zero time if
// none were recorded.
func (r *TickRecorder) GetLastRecord() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.ticks) == 0 {
		return time.Time{}
	}
	return r.ticks[len(r.ticks)-1]
}

// GetRecordsIn returns the number of continuous records within the last
// duration. Continuous means the gap between two adjacent records is
// less than interval plus a one-interval grace.
func (r *TickRecorder) GetRecordsIn(last, interval time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	tolerance := interval * 2

	if len(r.ticks) > 0 && time.Since(r.ticks[len(r.ticks)-1]) >= tolerance {
		return 0
	}

	count := 0
	for i := len(r.ticks) - 1; i >= 0; i-- {
		record := r.ticks[i]
		if time.Since(record) > last {
			break
		}

		after := record
		if i+1 < len(r.ticks) {
			after = r.ticks[i+1]
		}
		if after.Sub(record) >= tolerance {
			break
		}
		count++
	}

	return count
}

// infiniteLoop drives the session at the configured tick interval until
// stopCh is closed. It is started by the daemon.
func infiniteLoop(stopCh <-chan struct{}) {
	for {
		sessionTick()

		select {
		case <-stopCh:
			return
		case <-time.After(currentTickInterval()):
		}
	}
}

func currentTickInterval() time.Duration {
	ms := conf.TickIntervalMS()
	if ms <= 0 {
		ms = 50
	}
	return time.Duration(ms) * time.Millisecond
}

// checkMissedTicks reports whether the loop recently stalled.
func checkMissedTicks() bool {
	interval := currentTickInterval()
	tickCount := tickRecorder.GetRecordsIn(continuousTickThreshold, interval)
	expected := int(continuousTickThreshold / interval)
	minCount := expected - 1

	if tickCount < minCount {
		logrus.WithFields(logrus.Fields{
			"tickCount":    tickCount,
			"expected":     expected,
			"minTickCount": minCount,
		}).Info("possibly missed session ticks")
		return true
	}
	return false
}

// sessionTick polls the sampler once and advances the session. A poll
// error or malformed sample makes this tick a data no-op; timing still
// advances so windows elapse on schedule.
func sessionTick() bool {
	s, err := pollGaze()
	ok := err == nil && s.Valid()

	setSamplerHealth(err)
	if err == nil && !s.Valid() {
		logrus.WithFields(logrus.Fields{
			"x": s.X,
			"y": s.Y,
		}).Warn("sampler returned malformed sample, ignoring")
	}

	tickRecorder.AddRecordNow()
	checkMissedTicks()

	active := applySessionWithinLoop(s, ok)

	printTickStatus(ok, active)

	return active
}

var (
	samplerHealthMu sync.Mutex
	lastPollErr     error
)

func setSamplerHealth(err error) {
	samplerHealthMu.Lock()
	defer samplerHealthMu.Unlock()

	if err != nil && (lastPollErr == nil || err.Error() != lastPollErr.Error()) {
		logrus.WithError(err).Warn("gaze poll failed")
	}
	lastPollErr = err
}

func samplerHealthy() bool {
	return samplerError() == nil
}

// samplerError returns the most recent poll error, or nil when the
// sampler is healthy.
func samplerError() error {
	samplerHealthMu.Lock()
	defer samplerHealthMu.Unlock()
	return lastPollErr
}

var lastPrintTime time.Time

type tickStatus struct {
	phase     calibration.Phase
	stepIndex int
	paused    bool
	sampleOK  bool
	active    bool
}

var lastStatus tickStatus

// printTickStatus logs the loop status, throttled so an unchanged
// status only shows up at trace level between intervals.
func printTickStatus(sampleOK, active bool) {
	sessionMu.Lock()
	currentStatus := tickStatus{
		phase:     sessionState.Phase,
		stepIndex: sessionState.StepIndex,
		paused:    sessionState.Paused,
		sampleOK:  sampleOK,
		active:    active,
	}
	raw := lastSample
	sessionMu.Unlock()

	fields := logrus.Fields{
		"phase":    currentStatus.phase,
		"step":     currentStatus.stepIndex,
		"paused":   currentStatus.paused,
		"sampleOK": sampleOK,
		"raw":      [2]float64{raw.X, raw.Y},
	}

	defer func() { lastPrintTime = time.Now() }()

	if time.Since(lastPrintTime) < time.Second && reflect.DeepEqual(lastStatus, currentStatus) {
		logrus.WithFields(fields).Trace("session tick status")
		return
	}

	logrus.WithFields(fields).Debug("session tick status")

	lastStatus = currentStatus
}
