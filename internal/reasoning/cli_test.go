package reasoning

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestCLIBackend_BuildArgs(t *testing.T) {
	b := NewCLIBackend("", []string{"--verbose"}, "opus", "", nil)
	got := b.buildArgs(Request{System: "be terse", Context: "ignored"})
	want := []string{"--verbose", "-p", "--output-format", "json", "--model", "opus", "--system-prompt", "be terse"}
	if !slices.Equal(got, want) {
		t.Errorf("buildArgs() = %v, want %v", got, want)
	}
	if b.Name() != "cli:claude" {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestParseCLIResponse(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		want      string
		wantErr   bool
		transient bool
	}{
		{name: "string result", data: `{"type":"result","result":"{\"a\":1}","session_id":"s"}`, want: `{"a":1}`},
		{name: "content blocks", data: `{"result":{"content":[{"type":"text","text":"hel"},{"type":"image"},{"type":"text","text":"lo"}]}}`, want: "hello"},
		{name: "cli error", data: `{"is_error":true,"result":"overloaded"}`, wantErr: true, transient: true},
		{name: "invalid api key", data: `{"is_error":true,"result":"Invalid API key · Please run /login"}`, wantErr: true},
		{name: "auth failure", data: `{"is_error":true,"result":"Authentication failed"}`, wantErr: true},
		{name: "not json", data: `oops`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCLIResponse([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCLIResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if IsTransient(err) != tt.transient {
					t.Errorf("IsTransient(%v) = %v, want %v", err, IsTransient(err), tt.transient)
				}
				return
			}
			if got != tt.want {
				t.Errorf("parseCLIResponse() = %q, want %q", got, tt.want)
			}
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-cli.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIBackend_Complete(t *testing.T) {
	// Echo stdin back as the result so the test sees the context round-trip
	script := writeScript(t, `input=$(cat)
printf '{"result":"%s"}' "$input"
`)
	pm := NewProcessManager()
	b := NewCLIBackend(script, nil, "", t.TempDir(), pm)

	got, err := b.Complete(context.Background(), Request{Context: "ping"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "ping" {
		t.Errorf("Complete() = %q, want ping", got)
	}
	if pm.Count() != 0 {
		t.Errorf("ProcessManager still tracks %d processes", pm.Count())
	}
}

func TestCLIBackend_FailureClassification(t *testing.T) {
	notExecutable := filepath.Join(t.TempDir(), "not-executable.sh")
	if err := os.WriteFile(notExecutable, []byte("#!/bin/sh\necho '{}'\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		command   string
		transient bool
	}{
		{name: "crash", command: writeScript(t, "echo 'boom' >&2\nexit 3\n"), transient: true},
		{name: "overloaded reply", command: writeScript(t, "echo '{\"is_error\":true,\"result\":\"Overloaded\"}'\nexit 1\n"), transient: true},
		{name: "missing binary on PATH", command: "architect-no-such-cli"},
		{name: "missing binary path", command: filepath.Join(t.TempDir(), "absent")},
		{name: "not executable", command: notExecutable},
		{name: "auth reply", command: writeScript(t, "echo '{\"is_error\":true,\"result\":\"Invalid API key\"}'\nexit 1\n")},
		{name: "auth on stderr", command: writeScript(t, "echo 'Error: not logged in' >&2\nexit 1\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewCLIBackend(tt.command, nil, "", "", nil)
			_, err := b.Complete(context.Background(), Request{Context: "x"})
			if err == nil {
				t.Fatal("Complete() succeeded, want error")
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient(%v) = %v, want %v", err, IsTransient(err), tt.transient)
			}
		})
	}
}

func TestCLIBackend_PermanentFailureNotRetried(t *testing.T) {
	b := NewCLIBackend(filepath.Join(t.TempDir(), "absent"), nil, "", "", nil)
	c := NewClient(b, WithRetryPolicy(fastPolicy(3)), WithLogger(quietLogger()))

	resp, err := c.Invoke(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Invoke() succeeded, want error")
	}
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		t.Errorf("missing binary reported as unavailable: %v", err)
	}
	if resp.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", resp.Attempts)
	}
}

func TestCLIBackend_Cancelled(t *testing.T) {
	script := writeScript(t, "sleep 10\n")
	b := NewCLIBackend(script, nil, "", "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Complete(ctx, Request{Context: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Complete() error = %v, want context.Canceled", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		cfg     Config
		want    string
		wantErr bool
	}{
		{cfg: Config{Type: "anthropic", APIKey: "k"}, want: "anthropic"},
		{cfg: Config{APIKey: "k"}, want: "anthropic"},
		{cfg: Config{Type: "openai", APIKey: "k"}, want: "openai"},
		{cfg: Config{Type: "cli", Command: "claude"}, want: "cli:claude"},
		{cfg: Config{Type: "carrier-pigeon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.cfg.Type, func(t *testing.T) {
			b, err := New(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && b.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", b.Name(), tt.want)
			}
		})
	}
}
