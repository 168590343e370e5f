package pipeline

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Child is a process started by the pipeline.
type Child struct {
	PID     int
	Label   string
	Kind    string
	Command string
	Started time.Time

	cmd  *exec.Cmd
	done chan struct{}
	exit Exit
}

// Done is closed once the child has been reaped.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// Exit describes how a child ended.
type Exit struct {
	PID      int
	Label    string
	Kind     string
	ExitCode int
	Signaled bool
	Signal   string
	Duration time.Duration
	Error    string
}

// Success reports a zero exit status.
func (e Exit) Success() bool {
	return !e.Signaled && e.ExitCode == 0 && e.Error == ""
}

// Status is "ok", "failed" or "signalled".
func (e Exit) Status() string {
	switch {
	case e.Signaled:
		return "signalled"
	case e.Success():
		return "ok"
	default:
		return "failed"
	}
}

// reap waits for the process and records its exit. It runs in its own
// goroutine for every child so that kill and wait paths only need to wait on
// the done channel.
func (c *Child) reap() {
	defer close(c.done)
	waitErr := c.cmd.Wait()
	c.exit = exitFromState(c, c.cmd.ProcessState, waitErr)
}

func exitFromState(c *Child, state *os.ProcessState, waitErr error) Exit {
	exit := Exit{
		PID:      c.PID,
		Label:    c.Label,
		Kind:     c.Kind,
		Duration: time.Since(c.Started),
	}
	if state == nil {
		exit.ExitCode = -1
		if waitErr != nil {
			exit.Error = waitErr.Error()
		}
		return exit
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		exit.Signaled = true
		exit.Signal = ws.Signal().String()
		exit.ExitCode = -1
		return exit
	}
	exit.ExitCode = state.ExitCode()
	return exit
}
