package agent

import (
	"context"
	"os/exec"
	"strings"

	"github.com/redcell-dev/opswarm/errors"
)

// Executor runs one instruction command. The execution environment is a
// black box to the coordinator; implementations honor the caller's
// context deadline and return whatever output they can alongside an
// error.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// ShellExecutor runs commands through a local shell. It provides no
// sandboxing; deployments that need isolation wrap or replace it.
type ShellExecutor struct {
	// Shell is the interpreter, default /bin/sh.
	Shell string
}

// NewShellExecutor creates a shell executor.
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{Shell: "/bin/sh"}
}

// Execute runs the command and returns combined output. A context
// deadline produces an EXECUTION_TIMEOUT error; a nonzero exit produces
// EXECUTION_ERROR. Partial output is returned in both cases.
func (e *ShellExecutor) Execute(ctx context.Context, command string) (string, error) {
	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	out, err := cmd.CombinedOutput()
	output := string(out)

	if ctx.Err() == context.DeadlineExceeded {
		return output, errors.ExecTimeout("command exceeded execution timeout")
	}
	if ctx.Err() == context.Canceled {
		return output, errors.FromCode(errors.ErrCodeCanceled)
	}
	if err != nil {
		msg := err.Error()
		if s := strings.TrimSpace(output); s != "" {
			msg = msg + ": " + firstLine(s)
		}
		return output, errors.New(errors.ErrCodeExecFailed, msg, errors.WithCause(err))
	}
	return output, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Ensure ShellExecutor implements Executor.
var _ Executor = (*ShellExecutor)(nil)
