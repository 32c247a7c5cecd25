package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/architectagent/architect/internal/config"
	"github.com/architectagent/architect/internal/events"
	"github.com/architectagent/architect/internal/orchestrator"
	"github.com/architectagent/architect/internal/plan"
	"github.com/architectagent/architect/internal/prompt"
	"github.com/architectagent/architect/internal/reasoning"
	"github.com/architectagent/architect/internal/service"
	"github.com/architectagent/architect/internal/session"
)

// newBackend builds the reasoning backend; tests replace it.
var newBackend = reasoning.New

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	pm       *reasoning.ProcessManager
	store    *session.SQLiteStore
	bus      *events.EventBus
	template *plan.Template
	svc      *service.Service
}

// newApp wires configuration, backend, store and run service. Logs go to
// logOut.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(logOut, cfg.Level())

	tmpl, err := loadTemplate(cfg.Template)
	if err != nil {
		return nil, err
	}

	backendCfg, err := cfg.Backend()
	if err != nil {
		return nil, err
	}
	if backendCfg.WorkDir, err = os.Getwd(); err != nil {
		return nil, err
	}
	pm := reasoning.NewProcessManager()
	backend, err := newBackend(backendCfg, pm)
	if err != nil {
		return nil, err
	}
	client := reasoning.NewClient(backend,
		reasoning.WithRetryPolicy(cfg.RetryPolicy()),
		reasoning.WithBreakers(reasoning.NewBreakerRegistry(logger)),
		reasoning.WithLogger(logger),
	)

	store, err := session.NewSQLiteStore(ctx, cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("opening run store %s: %w", cfg.StorePath, err)
	}

	bus := events.NewEventBus()
	runner := orchestrator.NewRunner(orchestrator.RunnerConfig{
		Invoker: client,
		Store:   store,
		Bus:     bus,
		Builder: prompt.NewBuilder(cfg.Engine.ContextChars),
		Logger:  logger,
	})
	svc, err := service.New(service.Config{
		Runner:   runner,
		Store:    store,
		Template: tmpl,
		Defaults: session.Settings{
			Generation: cfg.Params(),
			Workers:    cfg.Engine.Workers,
			StepBudget: cfg.Engine.StepBudget,
			Template:   tmpl.Name,
		},
		Logger: logger,
	})
	if err != nil {
		store.Close()
		bus.Close()
		return nil, err
	}

	logger.Debug("architect ready", "backend", backend.Name(), "store", cfg.StorePath, "template", tmpl.Name)
	return &app{
		cfg:      cfg,
		logger:   logger,
		pm:       pm,
		store:    store,
		bus:      bus,
		template: tmpl,
		svc:      svc,
	}, nil
}

func loadTemplate(path string) (*plan.Template, error) {
	if path == "" {
		return plan.DefaultTemplate()
	}
	tmpl, err := plan.LoadTemplate(path)
	if err != nil {
		return nil, fmt.Errorf("loading plan template %s: %w", path, err)
	}
	return tmpl, nil
}

// Close stops live runs, kills CLI backends still running and closes the
// store.
func (a *app) Close() {
	if err := a.pm.KillAll(); err != nil {
		a.logger.Warn("killing backend processes", "err", err)
	}
	a.svc.Close()
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing run store", "err", err)
	}
}

// logFile opens the log file used while the terminal UI owns the screen.
func logFile(cfg *config.Config) (*os.File, error) {
	path := filepath.Join(filepath.Dir(cfg.StorePath), "architect.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
