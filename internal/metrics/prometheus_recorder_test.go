package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveLockWait("projects/p1/sections/requirements", 150*time.Millisecond)
	pr.IncLockOutcome(LockAcquired)
	pr.IncTransition("collecting", "clarifying")
	pr.IncTransitionDenied("collecting", "srs_review")
	pr.IncCheckpoint("manual")
	pr.IncAdminOverride()
	pr.ObserveAnalysisDuration(5 * time.Millisecond)
	pr.SetGraphSize(10, 14)
	pr.SetBlockedNodes(3)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveLockWait("x", time.Second)
	r.IncLockOutcome(LockContention)
	r.IncTransition("a", "b")
	r.SetGraphSize(0, 0)
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveLockWait("x", time.Second)
	pr.IncLockOutcome(LockStolen)
	pr.IncAdminOverride()
	pr.SetBlockedNodes(1)
}
