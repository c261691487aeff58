package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/agentcoord/internal/config"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"agentcoord.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Create struct {
		Project string `arg:"" help:"Project identifier"`
	} `cmd:"" help:"Create a project in the pipeline's initial state"`

	Status struct {
		Project string `arg:"" help:"Project identifier"`
	} `cmd:"" help:"Show a project's lifecycle phase, sections, and valid transitions"`

	Transition struct {
		Project string `arg:"" help:"Project identifier"`
		Target  string `arg:"" help:"Target lifecycle state"`
		Actor   string `help:"Acting identity" default:"cli"`
		Reason  string `help:"Reason for the transition"`
		Recover bool   `help:"Require the transition to be a validated recovery"`
		Skip    bool   `help:"Require the transition to be a skip over optional stages"`
	} `cmd:"" help:"Transition a project to a new lifecycle state"`

	Override struct {
		Project string `arg:"" help:"Project identifier"`
		Target  string `arg:"" help:"Target lifecycle state"`
		Actor   string `help:"Acting identity" default:"admin"`
		Reason  string `help:"Mandatory reason, recorded in the audit trail" required:""`
	} `cmd:"" help:"Force a state bypassing the rule table (audited)"`

	Checkpoint struct {
		Create struct {
			Project string `arg:"" help:"Project identifier"`
			Reason  string `help:"Why this snapshot is being taken"`
		} `cmd:"" help:"Snapshot the project's phase and all sections"`
		List struct {
			Project string `arg:"" help:"Project identifier"`
		} `cmd:"" help:"List checkpoints, newest first"`
		Restore struct {
			Project string `arg:"" help:"Project identifier"`
			ID      string `arg:"" help:"Checkpoint identifier"`
			Actor   string `help:"Acting identity" default:"cli"`
			Reason  string `help:"Why the project is being rolled back"`
		} `cmd:"" help:"Roll phase and sections back to a snapshot"`
	} `cmd:"" help:"Manage project checkpoints"`

	History struct {
		Project string `arg:"" help:"Project identifier"`
		Verify  bool   `help:"Replay the log and check it reproduces the live phase"`
	} `cmd:"" help:"Show a project's transition history"`

	Audit struct {
		Project string `arg:"" help:"Project identifier"`
	} `cmd:"" help:"Show the override/forced-unlock audit trail"`

	Unlock struct {
		Project string `arg:"" help:"Project identifier"`
		Section string `arg:"" help:"Section whose lease to remove"`
		Actor   string `help:"Acting identity" default:"operator"`
		Reason  string `help:"Mandatory reason, recorded in the audit trail" required:""`
	} `cmd:"" help:"Force-release a section lease (audited)"`

	Schedule struct {
		Spec      string   `arg:"" help:"Dependency spec file (JSON, or YAML by extension)"`
		Completed []string `help:"Issue ids already completed"`
		Stats     bool     `help:"Print graph statistics"`
	} `cmd:"" help:"Analyze a dependency spec and print the executable ordering"`

	Sweep struct{} `cmd:"" help:"Run a one-shot sweep of expired locks and stale temp files"`

	Watch struct {
		Project string `arg:"" help:"Project identifier"`
	} `cmd:"" help:"Stream section mutations for a project until interrupted"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := loadConfig(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	switch ctx.Command() {
	case "create <project>":
		err = runCreate(cfg, CLI.Create.Project)
	case "status <project>":
		err = runStatus(cfg, CLI.Status.Project)
	case "transition <project> <target>":
		err = runTransition(cfg, transitionArgs{
			project: CLI.Transition.Project,
			target:  CLI.Transition.Target,
			actor:   CLI.Transition.Actor,
			reason:  CLI.Transition.Reason,
			recover: CLI.Transition.Recover,
			skip:    CLI.Transition.Skip,
		})
	case "override <project> <target>":
		err = runOverride(cfg, CLI.Override.Project, CLI.Override.Target, CLI.Override.Actor, CLI.Override.Reason)
	case "checkpoint create <project>":
		err = runCheckpointCreate(cfg, CLI.Checkpoint.Create.Project, CLI.Checkpoint.Create.Reason)
	case "checkpoint list <project>":
		err = runCheckpointList(cfg, CLI.Checkpoint.List.Project)
	case "checkpoint restore <project> <id>":
		err = runCheckpointRestore(cfg, CLI.Checkpoint.Restore.Project, CLI.Checkpoint.Restore.ID,
			CLI.Checkpoint.Restore.Actor, CLI.Checkpoint.Restore.Reason)
	case "history <project>":
		err = runHistory(cfg, CLI.History.Project, CLI.History.Verify)
	case "audit <project>":
		err = runAudit(cfg, CLI.Audit.Project)
	case "unlock <project> <section>":
		err = runUnlock(cfg, CLI.Unlock.Project, CLI.Unlock.Section, CLI.Unlock.Actor, CLI.Unlock.Reason)
	case "schedule <spec>":
		err = runSchedule(CLI.Schedule.Spec, CLI.Schedule.Completed, CLI.Schedule.Stats)
	case "sweep":
		err = runSweep(cfg)
	case "watch <project>":
		err = runWatch(cfg, CLI.Watch.Project)
	default:
		slog.Error("Unknown command", "command", ctx.Command())
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the default config file is absent,
// so read-only commands work out of the box.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == "agentcoord.yaml" {
		return config.Default(), nil
	}
	return config.Load(path)
}
