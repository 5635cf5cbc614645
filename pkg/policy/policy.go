package policy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/cuemby/batchsched/pkg/log"
)

// Invoker runs the scheduler_policy contract: `<program> <queue> <now_epoch> <now_sql>`.
type Invoker struct {
	// Program is the policy executable's path or PATH-resolvable name.
	Program string
	// Timeout bounds the subprocess's total run time; 0 disables it.
	// cmd/batchsched configures this from scheduler.policy_timeout.
	Timeout time.Duration
}

// New returns an Invoker for program with the given timeout.
func New(program string, timeout time.Duration) *Invoker {
	return &Invoker{Program: program, Timeout: timeout}
}

// Failure describes why a policy invocation was treated as a failure
// (spec §7 "Policy subprocess failure"): nonzero exit, a terminating
// signal, a timeout, or a fork error all collapse to the same
// queue-deactivation outcome, but the reason is worth logging.
type Failure struct {
	Queue  string
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("policy invocation failed for queue %q: %s", f.Queue, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

// Invoke runs the policy for queue at instant now and blocks until it
// exits, a deadline fires, or ctx is cancelled. stdout is drained line
// by line and logged under the queue's child logger (spec §4.4); a nil
// return means exit code 0. Any other outcome returns a *Failure.
func (inv *Invoker) Invoke(ctx context.Context, queue string, now time.Time) error {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	nowSQL := now.UTC().Format("2006-01-02 15:04:05")
	cmd := exec.CommandContext(ctx, inv.Program, queue, fmt.Sprintf("%d", now.Unix()), nowSQL)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &Failure{Queue: queue, Reason: "fork failure", Err: err}
	}
	cmd.Stderr = cmd.Stdout

	qlog := log.WithQueue(queue)

	if err := cmd.Start(); err != nil {
		return &Failure{Queue: queue, Reason: "fork failure", Err: err}
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		qlog.Info().Str("stream", "policy_stdout").Msg(scanner.Text())
	}

	err = cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		return &Failure{Queue: queue, Reason: "timed out", Err: ctx.Err()}
	}
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ProcessState.Exited() {
			return &Failure{Queue: queue, Reason: fmt.Sprintf("exit code %d", exitErr.ExitCode()), Err: err}
		}
		return &Failure{Queue: queue, Reason: fmt.Sprintf("terminated by signal: %s", exitErr.ProcessState.String()), Err: err}
	}
	return &Failure{Queue: queue, Reason: "fork failure", Err: err}
}
