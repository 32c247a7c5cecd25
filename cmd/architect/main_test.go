package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/architectagent/architect/internal/events"
	"github.com/architectagent/architect/internal/orchestrator"
	"github.com/architectagent/architect/internal/reasoning"
	"github.com/architectagent/architect/internal/service"
	"github.com/architectagent/architect/internal/session"
)

// syncBuffer is a bytes.Buffer safe for the progress printer goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeBackend struct {
	err error
}

func (fakeBackend) Name() string { return "fake" }

func (f fakeBackend) Complete(_ context.Context, req reasoning.Request) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	switch {
	case strings.Contains(req.Context, "Kind: component"):
		return "Here you go:\n```json\n" +
			`{"components":[{"name":"Web","responsibility":"serve pages","depends_on":["DB"]},{"name":"DB","responsibility":"store data"}]}` +
			"\n```", nil
	case strings.Contains(req.Context, "Kind: interface"):
		return `{"interfaces":[{"name":"Catalog API","protocol":"REST","provider":"Web","operations":["GET /books"]}]}`, nil
	}
	return `{"title":"Keep it small","decision":"Start with a modular monolith"}`, nil
}

// setup points configuration at a temporary home and stubs the backend.
func setup(t *testing.T, backend reasoning.Backend) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ARCHITECT_DB", filepath.Join(home, "runs.db"))
	t.Setenv("ARCHITECT_PROVIDER", "")
	t.Setenv("ARCHITECT_MODEL", "")
	t.Setenv("ARCHITECT_LOG_LEVEL", "error")

	prev := newBackend
	newBackend = func(reasoning.Config, *reasoning.ProcessManager) (reasoning.Backend, error) {
		return backend, nil
	}
	t.Cleanup(func() { newBackend = prev })
	return home
}

var startedRe = regexp.MustCompile(`Run (\S+) started`)

func TestExecute_RunLifecycle(t *testing.T) {
	home := setup(t, fakeBackend{})
	ctx := context.Background()

	var out syncBuffer
	var errOut bytes.Buffer
	if err := Execute(ctx, []string{"run", "--workers", "2", "An", "online", "bookshop", "with", "reviews"}, &out, &errOut); err != nil {
		t.Fatalf("run error = %v\nstdout:\n%s\nstderr:\n%s", err, out.String(), errOut.String())
	}
	m := startedRe.FindStringSubmatch(out.String())
	if m == nil {
		t.Fatalf("no run id in output:\n%s", out.String())
	}
	runID := m[1]
	for _, want := range []string{"✓ requirements resolved", "resolved: 7 of 7 nodes resolved", "architect export " + runID} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("run output missing %q:\n%s", want, out.String())
		}
	}

	var list bytes.Buffer
	if err := Execute(ctx, []string{"list"}, &list, &errOut); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(list.String(), runID) || !strings.Contains(list.String(), "7/7") {
		t.Errorf("list output:\n%s", list.String())
	}

	var status bytes.Buffer
	if err := Execute(ctx, []string{"status", "--json", runID}, &status, &errOut); err != nil {
		t.Fatal(err)
	}
	var st service.RunStatus
	if err := json.Unmarshal(status.Bytes(), &st); err != nil {
		t.Fatalf("status json: %v\n%s", err, status.String())
	}
	if st.RunID != runID || st.Status != session.StatusResolved || st.Active {
		t.Errorf("status = %s %s active=%v", st.RunID, st.Status, st.Active)
	}

	target := filepath.Join(home, "blueprint.md")
	var export bytes.Buffer
	if err := Execute(ctx, []string{"export", "-o", target, runID}, &export, &errOut); err != nil {
		t.Fatal(err)
	}
	md, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"ADR-001", "Web --> DB", "### Catalog API (REST)"} {
		if !strings.Contains(string(md), want) {
			t.Errorf("blueprint missing %q", want)
		}
	}

	err = Execute(ctx, []string{"resume", runID}, &bytes.Buffer{}, &errOut)
	if !errors.Is(err, orchestrator.ErrNotResumable) {
		t.Errorf("resume of a resolved run = %v, want ErrNotResumable", err)
	}
}

func TestExecute_FailingBackend(t *testing.T) {
	setup(t, fakeBackend{err: &reasoning.StatusError{Code: http.StatusUnauthorized, Err: errors.New("bad key")}})

	var out syncBuffer
	err := Execute(context.Background(), []string{"run", "A bookshop with search and reviews"}, &out, &bytes.Buffer{})
	if !errors.Is(err, errRunIncomplete) {
		t.Fatalf("run error = %v, want errRunIncomplete", err)
	}
	for _, want := range []string{"✗ requirements failed", "partial_failure", "failed  requirements", "blocked ", "architect resume"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestExecute_Errors(t *testing.T) {
	setup(t, fakeBackend{})

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"no command", nil, errUsage},
		{"unknown command", []string{"deploy"}, errUsage},
		{"status without id", []string{"status"}, errUsage},
		{"run without requirements", []string{"run"}, errUsage},
		{"unknown flag", []string{"list", "--nope"}, errUsage},
		{"short requirements", []string{"run", "tiny"}, service.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Execute(context.Background(), tt.args, &syncBuffer{}, &bytes.Buffer{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Execute(%q) = %v, want %v", tt.args, err, tt.want)
			}
		})
	}

	var notFound *session.SessionNotFoundError
	if err := Execute(context.Background(), []string{"status", "missing"}, &bytes.Buffer{}, &bytes.Buffer{}); !errors.As(err, &notFound) {
		t.Errorf("status of unknown run = %v", err)
	}
}

func TestExecute_Patterns(t *testing.T) {
	var out bytes.Buffer
	if err := Execute(context.Background(), []string{"patterns", "--json"}, &out, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	var patterns []map[string]any
	if err := json.Unmarshal(out.Bytes(), &patterns); err != nil || len(patterns) == 0 {
		t.Errorf("patterns = %d entries, %v", len(patterns), err)
	}
}

func TestExecute_SettingsRedactsKeys(t *testing.T) {
	home := setup(t, fakeBackend{})
	dir := filepath.Join(home, ".architect")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	raw := `{"providers":{"anthropic":{"type":"anthropic","api_key":"sk-secret"}}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := Execute(context.Background(), []string{"settings"}, &out, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "sk-secret") || !strings.Contains(out.String(), `"api_key": "***"`) {
		t.Errorf("settings output:\n%s", out.String())
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		ev   events.Event
		want string
	}{
		{events.NodeStartedEvent{Node: "a", Step: 1}, "  ● a started (step 1)"},
		{events.NodeResolvedEvent{Node: "a", Step: 2}, "  ✓ a resolved (step 2)"},
		{events.NodeFailedEvent{Node: "a", Step: 1, Err: errors.New("boom")}, "  ! a step 1 failed, retrying: boom"},
		{events.NodeFailedEvent{Node: "a", Step: 3, Err: errors.New("boom"), Terminal: true}, "  ✗ a failed: boom"},
		{events.NodeRequeuedEvent{Node: "a"}, "  ○ a requeued"},
		{events.RunProgressEvent{Run: "r"}, ""},
	}
	for _, tt := range tests {
		if got := describe(tt.ev); got != tt.want {
			t.Errorf("describe(%T) = %q, want %q", tt.ev, got, tt.want)
		}
	}
}

func TestUsageListsDefinedFlags(t *testing.T) {
	setup(t, fakeBackend{})
	flagRe := regexp.MustCompile(`\[--?([a-z-]+)`)

	_, commands, _ := strings.Cut(usageText, "Commands:\n")
	commands, _, _ = strings.Cut(commands, "\n\n")
	for _, line := range strings.Split(commands, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		t.Run(name, func(t *testing.T) {
			var stderr bytes.Buffer
			err := Execute(context.Background(), []string{name, "-h"}, &syncBuffer{}, &stderr)
			if !errors.Is(err, flag.ErrHelp) {
				t.Fatalf("Execute(%s -h) = %v, want flag.ErrHelp", name, err)
			}
			for _, m := range flagRe.FindAllStringSubmatch(line, -1) {
				if !strings.Contains(stderr.String(), "  -"+m[1]) {
					t.Errorf("usage lists --%s but %s does not define it", m[1], name)
				}
			}
		})
	}
}

func TestProgressPrinterFollowsNodeTopic(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	var out syncBuffer

	p := newProgressPrinter(bus, &out)
	bus.Publish(events.TopicRun, events.RunProgressEvent{Run: "r", Total: 2})
	bus.Publish(events.TopicNode, events.NodeStartedEvent{Run: "r", Node: "a", Step: 1})
	bus.Publish(events.TopicRun, events.RunFinishedEvent{Run: "r", Status: "resolved"})
	bus.Publish(events.TopicNode, events.NodeResolvedEvent{Run: "r", Node: "a", Step: 1})
	p.stop()

	want := "  ● a started (step 1)\n  ✓ a resolved (step 1)\n"
	if got := out.String(); got != want {
		t.Errorf("printer output = %q, want %q", got, want)
	}
}

// TestSignalContextCancellation verifies that signal.NotifyContext produces
// a context that cancels correctly when a signal is received.
func TestSignalContextCancellation(t *testing.T) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Failed to send SIGUSR1: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("Context did not cancel after SIGUSR1")
	}
	if err := ctx.Err(); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
