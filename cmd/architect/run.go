package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/architectagent/architect/internal/config"
	"github.com/architectagent/architect/internal/events"
	"github.com/architectagent/architect/internal/plan"
	"github.com/architectagent/architect/internal/service"
	"github.com/architectagent/architect/internal/session"
	"github.com/architectagent/architect/internal/tui"
)

func runRun(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("run", stderr)
	watch := fs.Bool("watch", false, "show the live terminal UI")
	file := fs.String("file", "", "read the requirements from a file (- for stdin)")
	planPath := fs.String("plan", "", "plan template for this run")
	workers := fs.Int("workers", 0, "nodes executed in parallel (default from config)")
	stepBudget := fs.Int("step-budget", 0, "steps per node before it fails for good (default from config)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	requirements, err := readRequirements(*file, fs.Args())
	if err != nil {
		return err
	}
	req := service.StartRequest{
		Requirements: requirements,
		Overrides:    service.Overrides{Workers: *workers, StepBudget: *stepBudget},
	}
	if *planPath != "" {
		if req.Plan, err = plan.LoadTemplate(*planPath); err != nil {
			return err
		}
	}

	a, closeLog, err := openApp(ctx, cfg, *watch, stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	defer a.Close()

	tmpl := req.Plan
	if tmpl == nil {
		tmpl = a.template
	}
	seed, err := seedNodes(tmpl)
	if err != nil {
		return err
	}
	return drive(ctx, a, seed, *watch, stdout, func() (string, error) {
		return a.svc.Start(ctx, req)
	})
}

func runResume(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("resume", stderr)
	watch := fs.Bool("watch", false, "show the live terminal UI")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	runID, err := oneArg(fs, "run id")
	if err != nil {
		return err
	}

	a, closeLog, err := openApp(ctx, cfg, *watch, stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	defer a.Close()

	st, err := a.svc.Status(ctx, runID)
	if err != nil {
		return err
	}
	return drive(ctx, a, st.Nodes, *watch, stdout, func() (string, error) {
		return runID, a.svc.Resume(ctx, runID)
	})
}

func readRequirements(file string, args []string) (string, error) {
	switch {
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading requirements: %w", err)
		}
		return string(data), nil
	case len(args) == 0:
		return "", fmt.Errorf("%w: run needs the requirements as arguments or --file", errUsage)
	}
	return strings.Join(args, " "), nil
}

// openApp builds the app, sending logs to a file while the terminal UI is
// shown.
func openApp(ctx context.Context, cfg *config.Config, watch bool, stderr io.Writer) (*app, func(), error) {
	logOut, closeLog := stderr, func() {}
	if watch {
		f, err := logFile(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		logOut, closeLog = f, func() { f.Close() }
	}
	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return a, closeLog, nil
}

func seedNodes(tmpl *plan.Template) ([]plan.Node, error) {
	g, err := tmpl.Build()
	if err != nil {
		return nil, err
	}
	nodes := make([]plan.Node, 0, g.Len())
	for _, id := range g.Order() {
		n, _ := g.Get(id)
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// drive starts a run with start, shows its progress until it stops and
// prints a summary. An interrupt cancels the run and waits for it to
// checkpoint.
func drive(ctx context.Context, a *app, seed []plan.Node, watch bool, stdout io.Writer, start func() (string, error)) error {
	var runID string

	var program *tea.Program
	uiDone := make(chan error, 1)
	finished := false
	var printer *progressPrinter
	if watch {
		model := tui.New(a.bus, tui.Options{
			Nodes:       seed,
			Config:      a.cfg,
			GlobalPath:  globalPathOrEmpty(),
			ProjectPath: config.ProjectPath,
			Cancel: func() {
				if err := a.svc.Cancel(context.WithoutCancel(ctx), runID); err != nil {
					a.logger.Warn("cancel from terminal UI", "run", runID, "err", err)
				}
			},
		})
		program = tea.NewProgram(model, tea.WithAltScreen())
	} else {
		printer = newProgressPrinter(a.bus, stdout)
	}

	runID, err := start()
	if err != nil {
		if printer != nil {
			printer.stop()
		}
		return err
	}

	if program != nil {
		go func() {
			final, err := program.Run()
			if m, ok := final.(tui.Model); ok {
				finished = m.Finished()
			}
			uiDone <- err
		}()
		select {
		case err := <-uiDone:
			if err != nil {
				a.logger.Error("terminal UI failed", "err", err)
			}
		case <-ctx.Done():
			program.Quit()
			<-uiDone
		}
		if !finished && ctx.Err() == nil {
			fmt.Fprintf(stdout, "Waiting for run %s to stop (Ctrl+C cancels)...\n", runID)
		}
	} else {
		fmt.Fprintf(stdout, "Run %s started\n", runID)
	}

	st, err := a.svc.Wait(ctx, runID)
	if ctx.Err() != nil {
		fmt.Fprintf(stdout, "Interrupted, cancelling run %s...\n", runID)
		detached := context.WithoutCancel(ctx)
		if cerr := a.svc.Cancel(detached, runID); cerr != nil {
			a.logger.Debug("cancel after interrupt", "run", runID, "err", cerr)
		}
		st, err = a.svc.Wait(detached, runID)
	}
	if printer != nil {
		printer.stop()
	}
	if err != nil {
		return err
	}

	printSummary(stdout, st)
	if st.Status != session.StatusResolved {
		return errRunIncomplete
	}
	return nil
}

func globalPathOrEmpty() string {
	p, err := config.GlobalPath()
	if err != nil {
		return ""
	}
	return p
}

func printSummary(w io.Writer, st service.RunStatus) {
	fmt.Fprintf(w, "\nRun %s %s: %d of %d nodes resolved\n",
		st.RunID, st.Status, st.Counts[plan.StatusResolved], len(st.Nodes))
	if st.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", st.Error)
	}
	for _, n := range st.Nodes {
		if n.Status == plan.StatusFailed {
			fmt.Fprintf(w, "  failed  %s: %s\n", n.ID, n.LastError)
		}
	}
	if len(st.Blocked) > 0 {
		fmt.Fprintf(w, "  blocked %s\n", strings.Join(st.Blocked, ", "))
	}

	switch st.Status {
	case session.StatusResolved:
		fmt.Fprintf(w, "Export the blueprint with: architect export %s\n", st.RunID)
	case session.StatusCancelled, session.StatusPartialFailure:
		fmt.Fprintf(w, "Continue with: architect resume %s\n", st.RunID)
	}
}

// progressPrinter writes one line per node event. Run-level progress is
// reported by printSummary once the run stops.
type progressPrinter struct {
	bus  *events.EventBus
	sub  <-chan events.Event
	done chan struct{}
}

func newProgressPrinter(bus *events.EventBus, w io.Writer) *progressPrinter {
	p := &progressPrinter{bus: bus, sub: bus.Subscribe(events.TopicNode, 256), done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for ev := range p.sub {
			if line := describe(ev); line != "" {
				fmt.Fprintln(w, line)
			}
		}
	}()
	return p
}

func (p *progressPrinter) stop() {
	p.bus.Unsubscribe(p.sub)
	<-p.done
}

func describe(ev events.Event) string {
	switch e := ev.(type) {
	case events.NodeStartedEvent:
		return fmt.Sprintf("  ● %s started (step %d)", e.Node, e.Step)
	case events.NodeResolvedEvent:
		return fmt.Sprintf("  ✓ %s resolved (step %d)", e.Node, e.Step)
	case events.NodeFailedEvent:
		if e.Terminal {
			return fmt.Sprintf("  ✗ %s failed: %v", e.Node, e.Err)
		}
		return fmt.Sprintf("  ! %s step %d failed, retrying: %v", e.Node, e.Step, e.Err)
	case events.NodeRequeuedEvent:
		return fmt.Sprintf("  ○ %s requeued", e.Node)
	}
	return ""
}
