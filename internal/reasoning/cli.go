package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
)

// CLIBackend runs a Claude Code compatible CLI once per call, feeding the
// context on stdin and reading a JSON result from stdout.
type CLIBackend struct {
	command string
	args    []string
	model   string
	workDir string
	procMgr *ProcessManager
}

// cliResponse accepts both the current CLI output, where result is a string,
// and the older shape with a content block array.
type cliResponse struct {
	IsError bool            `json:"is_error"`
	Result  json.RawMessage `json:"result"`
}

// NewCLIBackend creates a CLI backend. command defaults to "claude"; args are
// prepended to the generated arguments. The ProcessManager is optional.
func NewCLIBackend(command string, args []string, model, workDir string, pm *ProcessManager) *CLIBackend {
	if command == "" {
		command = "claude"
	}
	return &CLIBackend{
		command: command,
		args:    args,
		model:   model,
		workDir: workDir,
		procMgr: pm,
	}
}

// Name implements Backend.
func (b *CLIBackend) Name() string { return "cli:" + b.command }

// Complete implements Backend.
func (b *CLIBackend) Complete(ctx context.Context, req Request) (string, error) {
	cmd := newCommand(ctx, b.command, b.buildArgs(req)...)
	cmd.Dir = b.workDir

	stdout, stderr, err := executeCommand(cmd, []byte(req.Context), b.procMgr)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyCLIFailure(err, stdout, stderr)
	}
	return parseCLIResponse(stdout)
}

// permanentCLIMarkers are lowercase fragments of CLI failures that another
// attempt cannot fix.
var permanentCLIMarkers = []string{
	"api key",
	"authentication",
	"unauthorized",
	"forbidden",
	"not logged in",
	"please log in",
	"/login",
	"invalid request",
	"invalid_request",
	"unknown option",
	"unknown model",
	"permission denied",
}

func permanentCLIMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range permanentCLIMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classifyCLIFailure decides whether a failed subprocess is worth another
// attempt. A missing or non-executable binary and authentication or request
// errors are permanent; crashes and overloads are transient.
func classifyCLIFailure(err error, stdout, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return err
	}
	// The CLI exits non-zero alongside an is_error reply
	var cr cliResponse
	if json.Unmarshal(stdout, &cr) == nil && cr.IsError {
		_, replyErr := parseCLIResponse(stdout)
		return replyErr
	}
	if permanentCLIMessage(string(stderr)) {
		return err
	}
	return MarkTransient(err)
}

func (b *CLIBackend) buildArgs(req Request) []string {
	args := append([]string(nil), b.args...)
	args = append(args, "-p", "--output-format", "json")
	if b.model != "" {
		args = append(args, "--model", b.model)
	}
	if req.System != "" {
		args = append(args, "--system-prompt", req.System)
	}
	return args
}

func parseCLIResponse(data []byte) (string, error) {
	var cr cliResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", fmt.Errorf("parse cli output: %w", err)
	}

	var text string
	if err := json.Unmarshal(cr.Result, &text); err != nil {
		var blocks struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(cr.Result, &blocks); err != nil {
			return "", fmt.Errorf("parse cli result: %w", err)
		}
		var sb strings.Builder
		for _, item := range blocks.Content {
			if item.Type == "text" {
				sb.WriteString(item.Text)
			}
		}
		text = sb.String()
	}

	if cr.IsError {
		err := errors.New("cli reported error: " + text)
		if permanentCLIMessage(text) {
			return "", err
		}
		return "", MarkTransient(err)
	}
	return text, nil
}
