// Package mcpserver exposes the crew core to a session layer over the Model
// Context Protocol.
//
// [Build] is the composition root: it creates the event bus, coordinator,
// heartbeat aggregator, ownership tracker, tool guard and quality gate from
// a [config.Config] and wires them together through bus subscriptions. No
// business logic lives here, only wiring. [New] registers the crew tools on
// an mcp-go server; [Serve] runs that server over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/Iron-Ham/crew/internal/audit"
	"github.com/Iron-Ham/crew/internal/config"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/heartbeat"
	"github.com/Iron-Ham/crew/internal/localcheck"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/ownership"
	"github.com/Iron-Ham/crew/internal/provider"
	"github.com/Iron-Ham/crew/internal/qualitygate"
	"github.com/Iron-Ham/crew/internal/spec"
	"github.com/Iron-Ham/crew/internal/team"
	"github.com/Iron-Ham/crew/internal/toolguard"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps holds the wired core components. Build creates it; Close releases
// the files, timers and watchers it owns.
type Deps struct {
	Config      *config.Config
	Bus         *event.Bus
	Logger      *logging.Logger
	Coordinator *team.Coordinator
	Heartbeat   *heartbeat.Aggregator
	Ownership   *ownership.Tracker
	Guard       *toolguard.Guard
	Gate        *qualitygate.Pipeline
	Collector   *qualitygate.Collector
	Dispatcher  *qualitygate.Dispatcher

	ctx     context.Context
	cancel  context.CancelFunc
	closers []func()

	specMu sync.RWMutex
	spec   *spec.Spec
	dri    []spec.DRIAssignment

	closeOnce sync.Once
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger     *logging.Logger
	keys       provider.KeyProvider
	runner     localcheck.Runner
	diffSource qualitygate.DiffSource
	clients    qualitygate.ClientFactory
}

// WithLogger uses l instead of a logger built from the logging section.
func WithLogger(l *logging.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// WithKeys overrides the credential source.
func WithKeys(k provider.KeyProvider) Option {
	return func(o *buildOptions) { o.keys = k }
}

// WithRunner overrides the local check runner.
func WithRunner(r localcheck.Runner) Option {
	return func(o *buildOptions) { o.runner = r }
}

// WithDiffSource overrides how working diffs are collected.
func WithDiffSource(s qualitygate.DiffSource) Option {
	return func(o *buildOptions) { o.diffSource = s }
}

// WithClientFactory overrides how provider clients are built.
func WithClientFactory(f qualitygate.ClientFactory) Option {
	return func(o *buildOptions) { o.clients = f }
}

// Build creates and wires every core component. Subsystems that fail to
// open (the local-check cache, the spec watcher) are logged and skipped;
// the server stays usable without them. The returned Deps must be closed.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*Deps, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	d := &Deps{Config: cfg}
	d.ctx, d.cancel = context.WithCancel(ctx)

	// --- Logging ---

	d.Logger = o.logger
	if d.Logger == nil {
		if cfg.Logging.Enabled {
			l, err := logging.NewLogger(cfg.Logging.LogDir(), cfg.Logging.Level, cfg.Logging.Rotation())
			if err != nil {
				d.cancel()
				return nil, fmt.Errorf("creating logger: %w", err)
			}
			d.Logger = l
			d.onClose(func() { _ = l.Close() })
		} else {
			d.Logger = logging.NopLogger()
		}
	}

	d.Bus = event.NewBus(event.WithBusLogger(d.Logger))

	// --- Audit log ---

	var recorder audit.Recorder = audit.Nop{}
	if cfg.Audit.Enabled {
		log, err := audit.Open(cfg.Audit.File(), cfg.Audit.Rotation())
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		recorder = log
		d.onClose(func() { _ = log.Close() })
	}

	// --- Quality gate ---

	runner := o.runner
	if runner == nil {
		runner = d.commandRunner()
	}
	keys := o.keys
	if keys == nil {
		keys = cfg.KeyProvider()
	}
	clients := o.clients
	if clients == nil {
		clients = cfg.ClientFactory(keys)
	}
	d.Gate = qualitygate.New(
		qualitygate.WithRunner(runner),
		qualitygate.WithKeys(keys),
		qualitygate.WithClientFactory(clients),
		qualitygate.WithLogger(d.Logger),
	)
	d.Dispatcher = qualitygate.NewDispatcher(cfg.Review.MaxParallelReviews)
	d.Collector = qualitygate.NewCollector(o.diffSource, cfg.Review.SpeculativeDiffTTL())

	// --- Liveness, ownership and admission ---

	d.Heartbeat = heartbeat.New(d.Bus, cfg.HeartbeatConfig(), heartbeat.WithLogger(d.Logger))
	d.onClose(d.Heartbeat.Dispose)

	ownOpts := append([]ownership.Option{ownership.WithLogger(d.Logger), ownership.WithBus(d.Bus)}, cfg.OwnershipOptions()...)
	d.Ownership = ownership.New(ownOpts...)

	d.Guard = toolguard.New(cfg.GuardConfig(),
		toolguard.WithHeartbeat(d.Heartbeat),
		toolguard.WithOwnership(d.Ownership),
		toolguard.WithBus(d.Bus),
		toolguard.WithLogger(d.Logger),
	)

	// --- Coordinator ---

	coord, err := team.NewCoordinator(
		team.Config{Bus: d.Bus, Gate: cfg.GateConfig(), MaxActivity: cfg.Team.MaxActivity},
		team.WithAudit(recorder),
		team.WithReviewer(dispatchedReviewer{gate: d.Gate, dispatcher: d.Dispatcher}),
		team.WithLogger(d.Logger),
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}
	d.Coordinator = coord

	// --- Spec ---

	if err := d.loadSpec(); err != nil {
		d.Close()
		return nil, err
	}

	d.subscribe()
	return d, nil
}

// commandRunner builds the local check runner, with the SQLite result
// cache when it can be opened.
func (d *Deps) commandRunner() localcheck.Runner {
	cfg := d.Config
	opts := []localcheck.Option{localcheck.WithLogger(d.Logger)}
	if cfg.LocalChecks.CacheEnabled {
		cache, err := localcheck.OpenSQLiteCache(cfg.LocalChecks.CacheFile(), cfg.LocalChecks.CacheTTL())
		if err != nil {
			d.Logger.Warn("local check cache disabled", "path", cfg.LocalChecks.CacheFile(), "error", err)
		} else {
			opts = append(opts, localcheck.WithCache(cache))
			d.onClose(func() { _ = cache.Close() })
		}
	}
	return localcheck.NewCommandRunner(cfg.LocalCheckConfig(), opts...)
}

// loadSpec reads the configured spec and DRI assignments and starts the
// watcher that keeps every active team's spec current.
func (d *Deps) loadSpec() error {
	cfg := d.Config.Spec
	if cfg.Path == "" {
		return nil
	}
	s, err := spec.Load(cfg.Path)
	if err != nil {
		return fmt.Errorf("loading spec %s: %w", cfg.Path, err)
	}
	var dri []spec.DRIAssignment
	if cfg.DRIPath != "" {
		if dri, err = spec.LoadDRIAssignments(cfg.DRIPath); err != nil {
			return fmt.Errorf("loading DRI assignments %s: %w", cfg.DRIPath, err)
		}
	}
	d.specMu.Lock()
	d.spec, d.dri = s, dri
	d.specMu.Unlock()

	if !cfg.Watch {
		return nil
	}
	w := spec.NewWatcher(cfg.Path, d.onSpecChange,
		spec.WithDebounce(cfg.Debounce()),
		spec.WithWatcherLogger(d.Logger),
	)
	if err := w.Start(d.ctx); err != nil {
		d.Logger.Warn("spec watcher disabled", "path", cfg.Path, "error", err)
		return nil
	}
	d.onClose(w.Stop)
	return nil
}

func (d *Deps) onSpecChange(s *spec.Spec) {
	d.specMu.Lock()
	d.spec = s
	d.specMu.Unlock()

	for _, t := range d.Coordinator.Teams() {
		if t.Status != team.TeamActive {
			continue
		}
		if err := d.Coordinator.SetSpec(t.ID, s); err != nil {
			d.Logger.WithTeam(t.ID).Warn("spec reload failed", "error", err)
		}
	}
	d.Logger.Info("spec reloaded", "spec_id", s.ID, "requirements", len(s.Requirements))
}

// currentSpec returns the loaded spec and DRI assignments.
func (d *Deps) currentSpec() (*spec.Spec, []spec.DRIAssignment) {
	d.specMu.RLock()
	defer d.specMu.RUnlock()
	return d.spec, d.dri
}

func (d *Deps) onClose(fn func()) {
	d.closers = append(d.closers, fn)
}

// Close stops timers and watchers and closes open files, in reverse
// order of creation. Safe to call more than once.
func (d *Deps) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		for i := len(d.closers) - 1; i >= 0; i-- {
			d.closers[i]()
		}
	})
}

// New creates the MCP server with every crew tool registered.
func New(d *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"crew",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)
	registerTools(s, d)
	return s
}

// Serve builds the core from cfg and serves MCP over stdin/stdout until
// ctx is cancelled or stdin closes.
func Serve(ctx context.Context, cfg *config.Config, opts ...Option) error {
	d, err := Build(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer d.Close()

	d.Logger.Info("crew MCP server starting", "version", Version)
	stdio := server.NewStdioServer(New(d))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// dispatchedReviewer runs the gate under the review dispatcher so that at
// most review.max_parallel_reviews gates run at once.
type dispatchedReviewer struct {
	gate       *qualitygate.Pipeline
	dispatcher *qualitygate.Dispatcher
}

func (r dispatchedReviewer) Run(ctx context.Context, in qualitygate.Input) qualitygate.Result {
	var res qualitygate.Result
	err := r.dispatcher.Do(ctx, func(ctx context.Context) error {
		res = r.gate.Run(ctx, in)
		return nil
	})
	if err != nil {
		return qualitygate.Result{
			TaskID:     in.TaskID,
			TeammateID: in.TeammateID,
			Cycle:      max(in.Cycle, 1),
			MaxCycles:  in.Config.MaxReviewCycles,
			Notes:      []string{"review cancelled while waiting for a slot: " + err.Error()},
			StartedAt:  time.Now(),
		}
	}
	return res
}

// serverInstructions tells the session layer how the tools fit together.
func serverInstructions() string {
	return `crew coordinates a team of coding agents working on one codebase.

## Lifecycle
1. crew_spawn_teammate creates the team on first use. Spawn the lead with role "lead".
2. crew_create_task, then crew_assign_task to hand work to teammates.
3. Teammates report work with crew_complete_task. The quality gate reviews the diff;
   a failed review keeps the task in progress and messages feedback to the assignee.
4. When every delegated task is completed the coordinator requests synthesis from the lead.
5. crew_cleanup_team shuts everyone down.

## Tool hooks
Call crew_tool_before before every teammate tool call and obey the verdict:
a refused call must not run. Call crew_tool_after with the outcome once it finishes.
Throttling is per teammate and per tool; repeated failures back off and eventually hard-block.

## Status
crew_team_status, crew_plan_status and crew_cost_summary are read-only.`
}
