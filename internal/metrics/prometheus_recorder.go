package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	lockWait          *prom.HistogramVec
	lockOutcomes      *prom.CounterVec
	transitions       *prom.CounterVec
	transitionsDenied *prom.CounterVec
	checkpoints       *prom.CounterVec
	adminOverrides    prom.Counter
	analysisDuration  prom.Histogram
	graphNodes        prom.Gauge
	graphEdges        prom.Gauge
	blockedNodes      prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.lockWait = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "agentcoord",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting to acquire a resource lock",
			Buckets:   prom.DefBuckets,
		}, []string{"resource"})
		pr.lockOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "agentcoord",
			Name:      "lock_outcomes_total",
			Help:      "Lock acquisition outcomes (acquired, stolen, contention)",
		}, []string{"outcome"})
		pr.transitions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "agentcoord",
			Name:      "state_transitions_total",
			Help:      "Committed lifecycle transitions by from/to state",
		}, []string{"from", "to"})
		pr.transitionsDenied = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "agentcoord",
			Name:      "state_transitions_denied_total",
			Help:      "Transitions rejected by the rule table",
		}, []string{"from", "to"})
		pr.checkpoints = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "agentcoord",
			Name:      "checkpoints_total",
			Help:      "Checkpoints created by trigger",
		}, []string{"trigger"})
		pr.adminOverrides = prom.NewCounter(prom.CounterOpts{
			Namespace: "agentcoord",
			Name:      "admin_overrides_total",
			Help:      "Rule-table-bypassing admin overrides",
		})
		pr.analysisDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "agentcoord",
			Name:      "graph_analysis_duration_seconds",
			Help:      "Duration of dependency graph analysis",
			Buckets:   prom.DefBuckets,
		})
		pr.graphNodes = prom.NewGauge(prom.GaugeOpts{
			Namespace: "agentcoord",
			Name:      "graph_nodes",
			Help:      "Node count of the last analyzed dependency graph",
		})
		pr.graphEdges = prom.NewGauge(prom.GaugeOpts{
			Namespace: "agentcoord",
			Name:      "graph_edges",
			Help:      "Edge count of the last analyzed dependency graph",
		})
		pr.blockedNodes = prom.NewGauge(prom.GaugeOpts{
			Namespace: "agentcoord",
			Name:      "graph_blocked_nodes",
			Help:      "Nodes blocked by cycles in the last analyzed graph",
		})
		reg.MustRegister(pr.lockWait, pr.lockOutcomes, pr.transitions, pr.transitionsDenied, pr.checkpoints, pr.adminOverrides, pr.analysisDuration, pr.graphNodes, pr.graphEdges, pr.blockedNodes)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveLockWait(resource string, d time.Duration) {
	if p == nil || p.lockWait == nil {
		return
	}
	p.lockWait.WithLabelValues(resource).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncLockOutcome(outcome LockOutcome) {
	if p == nil || p.lockOutcomes == nil {
		return
	}
	p.lockOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncTransition(from, to string) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.WithLabelValues(from, to).Inc()
}

func (p *PrometheusRecorder) IncTransitionDenied(from, to string) {
	if p == nil || p.transitionsDenied == nil {
		return
	}
	p.transitionsDenied.WithLabelValues(from, to).Inc()
}

func (p *PrometheusRecorder) IncCheckpoint(trigger string) {
	if p == nil || p.checkpoints == nil {
		return
	}
	p.checkpoints.WithLabelValues(trigger).Inc()
}

func (p *PrometheusRecorder) IncAdminOverride() {
	if p == nil || p.adminOverrides == nil {
		return
	}
	p.adminOverrides.Inc()
}

func (p *PrometheusRecorder) ObserveAnalysisDuration(d time.Duration) {
	if p == nil || p.analysisDuration == nil {
		return
	}
	p.analysisDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetGraphSize(nodes, edges int) {
	if p == nil || p.graphNodes == nil {
		return
	}
	p.graphNodes.Set(float64(nodes))
	p.graphEdges.Set(float64(edges))
}

func (p *PrometheusRecorder) SetBlockedNodes(n int) {
	if p == nil || p.blockedNodes == nil {
		return
	}
	p.blockedNodes.Set(float64(n))
}
