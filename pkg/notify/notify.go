package notify

import (
	"fmt"
	"net"
	"time"
)

// Gateway is the notification fan-out of spec §4.9/§6: a fire-and-forget
// line socket to the execution agent, and a dial-per-message TCP
// transport to interactive clients. A zero or negative DialTimeout
// falls back to a 5s per-dial deadline.
type Gateway struct {
	// ExecutionAgentSocket is the Unix-domain socket path the execution
	// agent listens on.
	ExecutionAgentSocket string
	DialTimeout          time.Duration
}

// New returns a Gateway.
func New(executionAgentSocket string, dialTimeout time.Duration) *Gateway {
	return &Gateway{ExecutionAgentSocket: executionAgentSocket, DialTimeout: dialTimeout}
}

func (g *Gateway) sendExec(line string) error {
	conn, err := net.DialTimeout("unix", g.ExecutionAgentSocket, g.dialTimeout())
	if err != nil {
		return fmt.Errorf("dial execution agent: %w", err)
	}
	defer conn.Close()
	if _, err := fmt.Fprintln(conn, line); err != nil {
		return fmt.Errorf("write execution agent command %q: %w", line, err)
	}
	return nil
}

func (g *Gateway) dialTimeout() time.Duration {
	if g.DialTimeout <= 0 {
		return 5 * time.Second
	}
	return g.DialTimeout
}

// NotifyLaunch sends OARRUNJOB_<jid>, telling the execution agent to
// launch the job's processes. Satisfies launchkill.Notifier.
func (g *Gateway) NotifyLaunch(jid int) error {
	return g.sendExec(fmt.Sprintf("OARRUNJOB_%d", jid))
}

// NotifyStateChange sends ChState, telling the execution agent that job
// states changed and it should re-read them. Satisfies
// launchkill.Notifier.
func (g *Gateway) NotifyStateChange() error {
	return g.sendExec("ChState")
}

// NotifyTerm sends Term, telling the execution agent to terminate a
// job's processes. jid is accepted only so callers can log which job
// triggered the signal; the wire command itself carries no job id.
// Satisfies launchkill.Notifier.
func (g *Gateway) NotifyTerm(jid int) error {
	if err := g.sendExec("Term"); err != nil {
		return fmt.Errorf("notify term for job %d: %w", jid, err)
	}
	return nil
}

// NotifySubmission sends Qsub, telling the execution agent a new job
// was submitted.
func (g *Gateway) NotifySubmission() error {
	return g.sendExec("Qsub")
}

func (g *Gateway) sendTCP(addr, body string) error {
	conn, err := net.DialTimeout("tcp", addr, g.dialTimeout())
	if err != nil {
		return fmt.Errorf("dial interactive client %s: %w", addr, err)
	}
	defer conn.Close()
	if _, err := fmt.Fprintln(conn, body); err != nil {
		return fmt.Errorf("write interactive client %s: %w", addr, err)
	}
	return nil
}

// NotifyReservationAck tells an interactive client its advance
// reservation was accepted.
func (g *Gateway) NotifyReservationAck(addr string) error {
	return g.sendTCP(addr, "GOOD RESERVATION")
}

// NotifyError tells an interactive client its job errored, forwarding
// the job's own message verbatim. Each line is its own dial-write-close
// TCP connection, matching how every other interactive-client message
// in this gateway is sent.
func (g *Gateway) NotifyError(addr, message string) error {
	if err := g.sendTCP(addr, "BAD JOB"); err != nil {
		return err
	}
	return g.sendTCP(addr, message)
}

// NotifyStartPrediction tells an interactive client the predicted start
// time for its still-waiting job. nowSQL and startSQL are "YYYY-MM-DD
// HH:MM:SS" formatted.
func (g *Gateway) NotifyStartPrediction(addr, nowSQL, startSQL, message string) error {
	return g.sendTCP(addr, fmt.Sprintf("[%s] Start prediction: %s (%s)", nowSQL, startSQL, message))
}
