package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/architectagent/architect/internal/config"
	"github.com/architectagent/architect/internal/httpapi"
	"github.com/architectagent/architect/internal/knowledge"
	"github.com/architectagent/architect/internal/plan"
	"github.com/architectagent/architect/internal/tui"
)

const shutdownTimeout = 10 * time.Second

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

func runStatus(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("status", stderr)
	asJSON := fs.Bool("json", false, "print the full status as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	runID, err := oneArg(fs, "run id")
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.svc.Status(ctx, runID)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(stdout, st)
	}

	fmt.Fprintf(stdout, "Run:      %s\n", st.RunID)
	fmt.Fprintf(stdout, "Status:   %s\n", st.Status)
	fmt.Fprintf(stdout, "Created:  %s\n", st.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(stdout, "Updated:  %s\n", st.UpdatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(stdout, "Request:  %s\n", shorten(st.Requirements, 70))
	if st.Error != "" {
		fmt.Fprintf(stdout, "Error:    %s\n", st.Error)
	}
	fmt.Fprintln(stdout)

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tKIND\tSTATUS\tSTEPS\tLAST ERROR")
	for _, n := range st.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", n.ID, n.Kind, n.Status, n.Steps, shorten(n.LastError, 60))
	}
	return tw.Flush()
}

func runList(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("list", stderr)
	asJSON := fs.Bool("json", false, "print runs as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.svc.List(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(stdout, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs yet.")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tRESOLVED\tUPDATED\tREQUIREMENTS")
	for _, r := range runs {
		total := 0
		for _, c := range r.Counts {
			total += c
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n", r.RunID, r.Status, r.Counts[plan.StatusResolved], total,
			r.UpdatedAt.Local().Format(time.DateTime), shorten(r.Requirements, 50))
	}
	return tw.Flush()
}

func runExport(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("export", stderr)
	out := fs.String("o", "", "write the blueprint to a file instead of stdout")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	runID, err := oneArg(fs, "run id")
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	md, err := a.svc.Blueprint(ctx, runID)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = io.WriteString(stdout, md)
		return err
	}
	if err := os.WriteFile(*out, []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing blueprint: %w", err)
	}
	fmt.Fprintf(stdout, "Blueprint written to %s\n", *out)
	return nil
}

func runPatterns(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("patterns", stderr)
	asJSON := fs.Bool("json", false, "print the catalog as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	patterns := knowledge.Patterns()
	if *asJSON {
		return writeJSON(stdout, patterns)
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPATTERN\tBEST FOR")
	for _, p := range patterns {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Key, p.Name, strings.Join(p.BestFor, ", "))
	}
	return tw.Flush()
}

func runServe(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("serve", stderr)
	listen := fs.String("listen", cfg.Listen, "HTTP listen address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           httpapi.NewRouter(a.svc, httpapi.Options{Logger: a.logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(ln)
	}()
	a.logger.Info("http api listening", "addr", ln.Addr().String())

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http api: %w", err)
	}
	if err := <-serverErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runSettings(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("settings", stderr)
	edit := fs.Bool("edit", false, "edit the settings in a form")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	globalPath, err := config.GlobalPath()
	if err != nil {
		return err
	}
	// Environment overrides are left out so they are never written to disk
	cfg, err := config.Load(globalPath, config.ProjectPath)
	if err != nil {
		return err
	}

	if *edit {
		saved, err := tui.EditSettings(cfg, globalPath, config.ProjectPath)
		if err != nil {
			return err
		}
		if saved {
			fmt.Fprintln(stdout, "Settings saved.")
		} else {
			fmt.Fprintln(stdout, "No changes saved.")
		}
		return nil
	}

	fmt.Fprintf(stdout, "# global:  %s\n# project: %s\n", globalPath, config.ProjectPath)
	return writeJSON(stdout, redacted(cfg))
}

// redacted returns a copy of cfg with API keys masked.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	out.Providers = make(map[string]config.ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		if p.APIKey != "" {
			p.APIKey = "***"
		}
		out.Providers[name] = p
	}
	return out
}
