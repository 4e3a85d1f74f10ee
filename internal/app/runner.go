// Package app wires configuration, the provisioner and report sinks into one run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zac/internal/clock"
	"zac/internal/config"
	"zac/internal/domain"
	"zac/internal/logging"
	"zac/internal/provision"
	"zac/internal/report"
	"zac/internal/sender"
	"zac/internal/zabbix"
)

// Commands accepted by Run.
const (
	CommandProvision = "provision"
	CommandProbe     = "probe"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

const reportTimeout = 30 * time.Second

// ErrProbeNotFired is returned by the probe command when the change trigger stayed OK.
var ErrProbeNotFired = errors.New("probe trigger did not fire")

// Runner executes one provisioning command.
// Params: validated config, logger, provisioner, and report dispatcher.
// Returns: single-use runner; Close releases the log sinks.
type Runner struct {
	cfg      config.Config
	logger   *slog.Logger
	closeLog func()
	prov     *provision.Provisioner
	reports  *report.Dispatcher
	clock    clock.Clock
}

// NewRunner loads config from source and builds the runtime dependencies.
// Params: config source and clock implementation.
// Returns: runner or config/logging/report setup error.
func NewRunner(source config.ConfigSource, clk clock.Clock) (*Runner, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	client := zabbix.NewClient(cfg.Zabbix, logger)
	pusher := sender.New(cfg.Sender, clk)
	runner, err := newRunner(cfg, logger, client, pusher, clk)
	if err != nil {
		closeLog()
		return nil, err
	}
	runner.closeLog = closeLog
	return runner, nil
}

func newRunner(cfg config.Config, logger *slog.Logger, api provision.API, pusher provision.Pusher, clk clock.Clock) (*Runner, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	reports, err := report.NewDispatcher(cfg.Report, logger)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		closeLog: func() {},
		prov:     provision.New(cfg, api, pusher, logger, clk),
		reports:  reports,
		clock:    clk,
	}, nil
}

// Close flushes and closes log sinks.
func (r *Runner) Close() {
	r.closeLog()
}

// Run executes command, delivers the run report and returns it with its exit code.
// Params: context and command name.
// Returns: finished report; ExitCode is the process status.
func (r *Runner) Run(ctx context.Context, command string) domain.RunReport {
	run := domain.NewRunReport(command, r.clock.Now())
	logger := r.logger.With("run_id", run.RunID.String(), "command", command)
	logger.Info("run started")

	err := r.execute(ctx, command, &run)
	code := ExitOK
	if err != nil {
		code = ExitFailure
		logger.Error("run failed", "error", err.Error())
	}
	run.Finish(r.clock.Now(), err, code)
	logger.Info("run finished", "exit_code", code, "duration", run.Duration().String())

	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	if err := r.reports.Deliver(deliverCtx, run); err != nil {
		logger.Warn("run report not delivered", "error", err.Error())
	}
	return run
}

func (r *Runner) execute(ctx context.Context, command string, run *domain.RunReport) error {
	if command != CommandProvision && command != CommandProbe {
		return fmt.Errorf("unknown command %q", command)
	}

	version, err := r.prov.Connect(ctx)
	if err != nil {
		return err
	}
	run.APIVersion = version

	if command == CommandProbe {
		return r.probe(ctx, run, true)
	}

	summary, err := r.prov.CreateAction(ctx)
	run.Action = &summary
	if err != nil {
		return err
	}

	if r.cfg.Seed.Enabled {
		ids, err := r.prov.SeedDemoTopology(ctx, r.cfg.Seed.Host)
		run.SeededHostIDs = ids
		if err != nil {
			r.logger.Error("demo topology seeding failed", "seeded", len(ids), "error", err.Error())
			run.SeedError = err.Error()
		}
	}

	if r.cfg.Probe.Enabled {
		return r.probe(ctx, run, false)
	}
	return nil
}

// probe runs the integration probe; requireFire turns a quiet trigger into a failure.
func (r *Runner) probe(ctx context.Context, run *domain.RunReport, requireFire bool) error {
	result, err := r.prov.RunIntegrationProbe(ctx)
	summary := result.Summary()
	run.Probe = &summary
	if err != nil {
		return fmt.Errorf("integration probe: %w", err)
	}
	if !result.Fired {
		r.logger.Warn("probe trigger did not fire", "host", result.Host, "waited", result.Waited.String())
		if requireFire {
			return ErrProbeNotFired
		}
	}
	return nil
}
