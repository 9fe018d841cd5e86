package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/imamik/dropship/internal/addressing"
	"github.com/imamik/dropship/internal/archive"
	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/journal"
	"github.com/imamik/dropship/internal/metrics"
	"github.com/imamik/dropship/internal/orchestration"
	"github.com/imamik/dropship/internal/provisioning"
)

// BuildOptions are the flags of the build command.
type BuildOptions struct {
	TopologyOptions
	Parallel  bool
	LogFormat string
	TUI       bool
}

// buildPhases are the pipeline steps shown by the progress view.
var buildPhases = []string{
	provisioning.PhaseRouters,
	provisioning.PhaseBootstrap,
	orchestration.PhaseDHCPStop,
	provisioning.PhaseDeploy,
	provisioning.PhasePost,
}

// Build provisions every network instance of the instance file.
//
// This function orchestrates the complete build workflow:
//  1. Loads the configuration, the module registry and the topology
//  2. Checks for the external tools and prompts for missing provider
//     credentials on a terminal
//  3. Connects the hypervisor provider, lease source and Ansible pusher
//  4. Opens the run journal and starts the status server when configured
//  5. Runs the builder, which resumes from the persisted ledgers
//  6. Uploads the output directory when an archive is configured
//
// Failures inside a phase are returned as *provisioning.PhaseError.
func Build(ctx context.Context, opts BuildOptions) error {
	ws, err := loadWorkspace(opts.TopologyOptions)
	if err != nil {
		return err
	}
	cfg := ws.config
	if opts.Parallel {
		cfg.Parallel = true
	}

	console, err := newLogObserver(opts.LogFormat, stdout)
	if err != nil {
		return err
	}

	if err := checkTools(cfg).Error(); err != nil {
		return err
	}

	if err := promptCredentials(ctx, cfg); err != nil {
		return fmt.Errorf("provider credentials: %w", err)
	}

	timeouts := config.LoadTimeouts()
	provider, err := newProvider(cfg, timeouts)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	source, err := newLeaseSource(cfg.Leases)
	if err != nil {
		return fmt.Errorf("failed to create lease source: %w", err)
	}
	resolver := &addressing.Resolver{
		Source:      source,
		Interval:    timeouts.ResolveInterval,
		MaxAttempts: timeouts.ResolveMaxAttempts,
	}
	pusher := newPusher(cfg.Ansible, os.Stderr)

	runID := newRunID()
	run := &runRecorder{id: runID}
	defer run.close()
	if err := run.open(ctx, cfg, ws.instanceSummary()); err != nil {
		return err
	}

	build := func(ctx context.Context, obs provisioning.Observer) error {
		observer := provisioning.NewMultiObserver(obs, run.observer())
		builderOpts := []orchestration.Option{
			orchestration.WithObserver(observer),
			orchestration.WithTimeouts(timeouts),
		}
		if cfg.Bootstrap.ManageDHCP {
			builderOpts = append(builderOpts, orchestration.WithDHCPServer(newDHCPServer(cfg)))
		}
		b, err := ws.newBuilder(provider, pusher, resolver, builderOpts...)
		if err != nil {
			return err
		}
		return b.RunBuild(ctx)
	}

	if opts.TUI {
		err = runTUI(ctx, ws.instanceSummary(), buildPhases, build)
	} else {
		console.Printf("Building %d instances (run %s)", len(ws.topology.Instances), runID)
		err = build(ctx, console)
	}
	run.finish(ctx, err)
	if err != nil {
		return err
	}

	if cfg.Archive != nil {
		if err := archiveOutput(ctx, cfg, runID); err != nil {
			return err
		}
	}
	printf("Build %s complete\n", runID)
	return nil
}

// archiveOutput uploads the output directory under the run ID.
func archiveOutput(ctx context.Context, cfg *config.Config, runID string) error {
	store, err := newArchiveStore(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("failed to create archive store: %w", err)
	}
	a, err := archive.New(store, cfg.Archive)
	if err != nil {
		return err
	}
	n, err := a.Upload(ctx, cfg.OutputDir, runID)
	if err != nil {
		return fmt.Errorf("failed to archive output: %w", err)
	}
	printf("Archived %d files to s3://%s\n", n, cfg.Archive.Bucket)
	return nil
}

// runRecorder owns the optional journal and status server of a run.
type runRecorder struct {
	id      string
	journal *journal.Journal
	metrics *metrics.Metrics
	server  *metrics.Server
}

func (r *runRecorder) open(ctx context.Context, cfg *config.Config, summary string) error {
	if cfg.Journal.Enabled {
		if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		j, err := journal.Open(ctx, cfg.JournalPath())
		if err != nil {
			return err
		}
		r.journal = j
		if err := j.BeginRun(ctx, r.id, summary); err != nil {
			return err
		}
	}

	if cfg.Metrics.Address != "" {
		r.metrics = metrics.New()
		r.metrics.Start(r.id)
		r.server = metrics.NewServer(cfg.Metrics.Address, r.metrics)
		if err := r.server.Start(); err != nil {
			return err
		}
	}
	return nil
}

// observer returns the sinks of the run, nil entries included.
func (r *runRecorder) observer() provisioning.Observer {
	var sinks []provisioning.Observer
	if r.journal != nil {
		sinks = append(sinks, journal.NewObserver(r.journal, r.id))
	}
	if r.metrics != nil {
		sinks = append(sinks, metrics.NewObserver(r.metrics))
	}
	return provisioning.NewMultiObserver(sinks...)
}

func (r *runRecorder) finish(ctx context.Context, err error) {
	if r.metrics != nil {
		r.metrics.Finish(err)
	}
	if r.journal != nil {
		// the build context may be cancelled already
		if jerr := r.journal.EndRun(context.WithoutCancel(ctx), r.id, err); jerr != nil {
			log.Printf("journal: %v", jerr)
		}
	}
}

func (r *runRecorder) close() {
	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.server.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Printf("status server: %v", err)
		}
	}
	if r.journal != nil {
		_ = r.journal.Close()
	}
}
