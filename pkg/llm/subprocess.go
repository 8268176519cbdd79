package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// killGrace is how long a timed-out child gets between SIGTERM and
// SIGKILL
const killGrace = 5 * time.Second

// subprocess exit contract: 0 success with the completion on stdout,
// 75 (EX_TEMPFAIL) transient, anything else permanent unless stderr
// names a quota problem.
const exitTempFail = 75

// Subprocess aligns records by piping the prompt to a local command's
// stdin and reading the completion from stdout. Used for self-hosted
// models and offline batch runs.
type Subprocess struct {
	argv []string
}

// NewSubprocess parses the configured command line. Arguments are
// whitespace-split; there is no shell quoting.
func NewSubprocess(cmdLine string) (*Subprocess, error) {
	argv := strings.Fields(cmdLine)
	if len(argv) == 0 {
		return nil, fmt.Errorf("llm: empty subprocess command")
	}
	return &Subprocess{argv: argv}, nil
}

func (p *Subprocess) Name() string { return "subprocess" }

// Complete runs the child once. A context deadline terminates the
// child with SIGTERM, then SIGKILL after the grace period; the child
// never outlives the call.
func (p *Subprocess) Complete(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", Errorf(ErrTimeout, "subprocess killed after timeout: %v", err)
		}
		return "", NewError(ErrTransient, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		lower := strings.ToLower(detail)
		switch {
		case strings.Contains(lower, "quota"), strings.Contains(lower, "rate limit"):
			return "", Errorf(ErrQuota, "subprocess: %s", detail)
		case exitErr.ExitCode() == exitTempFail:
			return "", Errorf(ErrTransient, "subprocess: %s", detail)
		default:
			return "", Errorf(ErrPermanent, "subprocess exit %d: %s", exitErr.ExitCode(), detail)
		}
	}

	// the command never started
	return "", NewError(ErrPermanent, err)
}
