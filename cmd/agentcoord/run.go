package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/agentcoord/internal/config"
	"git.home.luguber.info/inful/agentcoord/internal/graph"
	"git.home.luguber.info/inful/agentcoord/internal/janitor"
	"git.home.luguber.info/inful/agentcoord/internal/lifecycle"
	"git.home.luguber.info/inful/agentcoord/internal/lock"
	"git.home.luguber.info/inful/agentcoord/internal/metrics"
	"git.home.luguber.info/inful/agentcoord/internal/scheduler"
	"git.home.luguber.info/inful/agentcoord/internal/statemanager"
	"git.home.luguber.info/inful/agentcoord/internal/statestore"
	"git.home.luguber.info/inful/agentcoord/internal/watch"
)

type transitionArgs struct {
	project string
	target  string
	actor   string
	reason  string
	recover bool
	skip    bool
}

// buildManager wires the store, rule table, and lock manager from config.
func buildManager(cfg *config.Config, opts ...statemanager.Option) (*statemanager.Manager, error) {
	rules := lifecycle.DefaultRules()
	if cfg.RulesFile != "" {
		loaded, err := lifecycle.LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	store := statestore.New(cfg.StateDir, lock.NewManager(), statestore.WithLockOptions(cfg.LockOptions()))
	return statemanager.New(store, rules, opts...), nil
}

func runCreate(cfg *config.Config, project string) error {
	m, err := buildManager(cfg)
	if err != nil {
		return err
	}
	if err := m.CreateProject(context.Background(), project); err != nil {
		return err
	}
	fmt.Printf("created %s in state %s\n", project, m.Rules().Initial())
	return nil
}

func runStatus(cfg *config.Config, project string) error {
	m, err := buildManager(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()

	phase, err := m.GetState(ctx, project)
	if err != nil {
		return err
	}
	fmt.Printf("project:  %s\n", project)
	fmt.Printf("state:    %s (revision %d, updated %s)\n",
		phase.State, phase.Revision, phase.UpdatedAt.Format(time.RFC3339))

	targets, err := m.ValidTransitions(ctx, project)
	if err != nil {
		return err
	}
	fmt.Printf("targets:  %s\n", joinStates(targets))

	sections, err := m.Store().ListSections(project)
	if err != nil {
		return err
	}
	fmt.Printf("sections: %s\n", strings.Join(sections, ", "))

	for _, section := range sections {
		holder, err := m.Store().Locks().Holder(m.Store().SectionPath(project, section))
		if err != nil {
			return err
		}
		if holder != nil {
			fmt.Printf("  %s locked by %s until %s\n",
				section, holder.HolderID, holder.ExpiresAt.Format(time.RFC3339))
		}
	}
	return nil
}

func runTransition(cfg *config.Config, args transitionArgs) error {
	m, err := buildManager(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	target := lifecycle.State(args.target)

	var phase *statestore.Phase
	switch {
	case args.recover:
		phase, err = m.RecoverTo(ctx, args.project, target, args.actor, args.reason)
	case args.skip:
		phase, err = m.SkipTo(ctx, args.project, target, args.actor, args.reason)
	default:
		phase, err = m.TransitionState(ctx, args.project, target, args.actor, args.reason)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s (revision %d)\n", args.project, phase.State, phase.Revision)
	return nil
}

func runOverride(cfg *config.Config, project, target, actor, reason string) error {
	m, err := buildManager(cfg)
	if err != nil {
		return err
	}
	phase, err := m.AdminOverride(context.Background(), project, lifecycle.State(target), actor, reason)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s (override, revision %d)\n", project, phase.State, phase.Revision)
	return nil
}

func runCheckpointCreate(cfg *config.Config, project, reason string) error {
	m, err := buildManager(cfg)
	if err != nil {
		return err
	}
	cp, err := m.CreateCheckpoint(context.Background(), project, reason)
	if err != nil {
		return err
	}
	fmt.Printf("checkpoint %s (%d sections, state %s)\n", cp.ID, len(cp.Sections), cp.Phase.State)
	return nil
}

func runCheckpointList(cfg *config.Config, project string) error {
	m, err := buildManager(cfg)
	if err != nil {
		return err
	}
	cps, err := m.ListCheckpoints(context.Background(), project)
	if err != nil {
		return err
	}
	for _, cp := range cps {
		fmt.Printf("%s  %s  %-14s %s\n",
			cp.ID, cp.CreatedAt.Format(time.RFC3339), cp.Trigger, cp.Reason)
	}
	return nil
}

func runCheckpointRestore(cfg *config.Config, project, id, actor, reason string) error {
	m, err := buildManager(cfg)
	if err != nil {
		return err
	}
	cp, err := m.RestoreCheckpoint(context.Background(), project, id, actor, reason)
	if err != nil {
		return err
	}
	fmt.Printf("restored %s to checkpoint %s (state %s)\n", project, cp.ID, cp.Phase.State)
	return nil
}

func runHistory(cfg *config.Config, project string, verify bool) error {
	m, err := buildManager(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()

	entries, err := m.History(ctx, project)
	if err != nil {
		return err
	}
	for _, e := range entries {
		prev := string(e.Previous)
		if prev == "" {
			prev = "-"
		}
		fmt.Printf("%4d  %s  %-9s %s -> %s  %s\n",
			e.Revision, e.Timestamp.Format(time.RFC3339), e.Kind, prev, e.New, e.Actor)
	}
	if verify {
		if err := m.VerifyHistory(ctx, project); err != nil {
			return err
		}
		fmt.Println("history replay matches live state")
	}
	return nil
}

func runAudit(cfg *config.Config, project string) error {
	m, err := buildManager(cfg)
	if err != nil {
		return err
	}
	entries, err := m.AuditEntries(context.Background(), project)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s  %-14s %s -> %s  %s: %s\n",
			e.Timestamp.Format(time.RFC3339), e.Kind, e.FromState, e.ToState, e.Actor, e.Reason)
	}
	return nil
}

func runUnlock(cfg *config.Config, project, section, actor, reason string) error {
	m, err := buildManager(cfg)
	if err != nil {
		return err
	}
	if err := m.ForceUnlock(context.Background(), project, section, actor, reason); err != nil {
		return err
	}
	fmt.Printf("released lease on %s/%s\n", project, section)
	return nil
}

func runSchedule(specPath string, completed []string, stats bool) error {
	data, err := os.ReadFile(specPath)
	if err != nil {
		return err
	}
	var spec *graph.Spec
	switch filepath.Ext(specPath) {
	case ".yaml", ".yml":
		spec, err = graph.ParseSpecYAML(data)
	default:
		spec, err = graph.ParseSpec(data)
	}
	if err != nil {
		return err
	}

	g, err := graph.Build(spec)
	if err != nil {
		return err
	}
	s, err := scheduler.New(g)
	if err != nil {
		return err
	}

	for _, cycle := range s.Analysis().Cycles {
		fmt.Printf("cycle: %s\n", strings.Join(cycle.Members, " -> "))
	}
	if blocked := s.Analysis().Blocked(); len(blocked) > 0 {
		fmt.Printf("blocked: %s\n", strings.Join(blocked, ", "))
	}

	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}
	ready := s.ExecutableIssues(done)
	if len(ready) == 0 {
		fmt.Println("nothing executable")
	} else {
		fmt.Printf("executable: %s\n", strings.Join(ready, ", "))
	}

	if stats {
		st := s.Statistics()
		fmt.Printf("nodes=%d edges=%d max_depth=%d roots=%s leaves=%s\n",
			st.TotalNodes, st.TotalEdges, st.MaxDepth,
			strings.Join(st.RootNodes, ","), strings.Join(st.LeafNodes, ","))
	}
	return nil
}

func runSweep(cfg *config.Config) error {
	j, err := janitor.New(cfg.StateDir, lock.NewManager())
	if err != nil {
		return err
	}
	removed, err := j.Sweep(time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("removed %d stale files\n", removed)
	return nil
}

// runWatch streams section mutations until interrupted, optionally fanning
// them out to NATS and serving Prometheus metrics per config.
func runWatch(cfg *config.Config, project string) error {
	registry := watch.NewRegistry()
	registry.Watch(project, func(m watch.Mutation) error {
		fmt.Printf("%s  %-10s %s revision=%d\n",
			m.Timestamp.Format(time.RFC3339), m.Kind, m.Section, m.Revision)
		return nil
	})

	if cfg.Watch.Enabled {
		pub, err := watch.NewNATSPublisher(cfg.Watch.NATSURL, cfg.Watch.SubjectPrefix)
		if err != nil {
			return err
		}
		defer pub.Close()
		registry.Watch(project, pub.Handle)
	}

	locks := lock.NewManager()
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		locks = lock.NewManager(lock.WithRecorder(metrics.NewPrometheusRecorder(reg)))
		go func() {
			_ = http.ListenAndServe(cfg.Metrics.Listen, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		}()
	}

	if cfg.Janitor.Enabled {
		j, err := janitor.New(cfg.StateDir, locks, janitor.WithInterval(cfg.Janitor.Interval))
		if err != nil {
			return err
		}
		if err := j.Start(context.Background()); err != nil {
			return err
		}
		defer j.Stop()
	}

	store := statestore.New(cfg.StateDir, locks)
	sectionsDir := filepath.Dir(store.SectionPath(project, "x"))
	fw, err := watch.NewFileWatcher(project, sectionsDir, registry)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := fw.Start(ctx); err != nil {
		return err
	}
	defer fw.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return nil
}

func joinStates(states []lifecycle.State) string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return strings.Join(out, ", ")
}
