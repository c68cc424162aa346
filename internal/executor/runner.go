package executor

import (
	"context"
	"io"
	"os/exec"
)

// CommandRunner starts a program in dir and waits for it. The program is
// killed when ctx is done.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args []string, stdout, stderr io.Writer) error
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args []string, stdout, stderr io.Writer) error {
	// #nosec G204 -- command and arguments come from the operator's configuration
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}
