package latex

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// maxOutput caps how much combined tool output is kept for diagnostics.
const maxOutput = 64 << 10

// waitDelay bounds how long Wait lingers on inherited pipes after a kill.
const waitDelay = 5 * time.Second

// Command describes one external tool invocation.
type Command struct {
	Dir  string
	Name string
	Args []string
	Env  []string // nil inherits the service environment
}

// CommandRunner abstracts process execution so tests can run without TeX.
// Run returns the tail of the combined stdout/stderr alongside any error.
type CommandRunner interface {
	Run(ctx context.Context, c Command) ([]byte, error)
}

// ExecRunner implements CommandRunner with os/exec. Each command runs in its
// own process group, which is killed as a whole when ctx ends.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec // G204: tool paths come from operator config; markup only reaches a file
	cmd.Dir = c.Dir
	cmd.Env = c.Env

	out := &tailBuffer{limit: maxOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		return out.Bytes(), fmt.Errorf("%s: %w", c.Name, ctx.Err())
	}
	if err != nil {
		return out.Bytes(), fmt.Errorf("%s: %w", c.Name, err)
	}
	return out.Bytes(), nil
}

// tailBuffer is an io.Writer that keeps only the last limit bytes written.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}
