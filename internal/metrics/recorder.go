package metrics

import "time"

// LockOutcome enumerates lock acquisition result categories for counters.
type LockOutcome string

const (
	LockAcquired   LockOutcome = "acquired"
	LockStolen     LockOutcome = "stolen"
	LockContention LockOutcome = "contention"
)

// Recorder defines observability hooks for coordination metrics. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe for nil receivers
// when using the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveLockWait(resource string, d time.Duration)
	IncLockOutcome(outcome LockOutcome)
	IncTransition(from, to string)
	IncTransitionDenied(from, to string)
	IncCheckpoint(trigger string)
	IncAdminOverride()
	ObserveAnalysisDuration(d time.Duration)
	SetGraphSize(nodes, edges int)
	SetBlockedNodes(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveLockWait(string, time.Duration) {}
func (NoopRecorder) IncLockOutcome(LockOutcome)            {}
func (NoopRecorder) IncTransition(string, string)          {}
func (NoopRecorder) IncTransitionDenied(string, string)    {}
func (NoopRecorder) IncCheckpoint(string)                  {}
func (NoopRecorder) IncAdminOverride()                     {}
func (NoopRecorder) ObserveAnalysisDuration(time.Duration) {}
func (NoopRecorder) SetGraphSize(int, int)                 {}
func (NoopRecorder) SetBlockedNodes(int)                   {}
