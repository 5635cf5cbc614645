package energy

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExternalAgent dispatches halt/wake by spawning program with the
// given verb argument and feeding newline-separated hostnames on
// stdin, bounded by Timeout (SCHEDULER_TIMEOUT).
type ExternalAgent struct {
	Program string
	Timeout time.Duration
}

// NewExternalAgent returns an ExternalAgent.
func NewExternalAgent(program string, timeout time.Duration) *ExternalAgent {
	return &ExternalAgent{Program: program, Timeout: timeout}
}

func (a *ExternalAgent) run(ctx context.Context, verb string, hostnames []string) error {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, a.Program, verb)
	cmd.Stdin = strings.NewReader(strings.Join(hostnames, "\n") + "\n")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("node manager command %q failed: %w: %s", verb, err, stderr.String())
	}
	return nil
}

func (a *ExternalAgent) Halt(ctx context.Context, hostnames []string) error {
	return a.run(ctx, "halt", hostnames)
}

func (a *ExternalAgent) WakeUp(ctx context.Context, hostnames []string) error {
	return a.run(ctx, "wake", hostnames)
}

// Check is a no-op: an external command has no persistent channel to
// keep warm.
func (a *ExternalAgent) Check(ctx context.Context) error { return nil }
