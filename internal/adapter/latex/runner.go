// Package latex renders CircuiTikZ markup to PNG by driving pdflatex and
// ImageMagick as external processes. Each render gets a private scratch
// directory which is removed before Render returns.
package latex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Strob0t/CircuitForge/internal/adapter/otel"
	"github.com/Strob0t/CircuitForge/internal/domain"
	"github.com/Strob0t/CircuitForge/internal/domain/render"
	"github.com/Strob0t/CircuitForge/internal/logger"
)

const (
	texFile = "circuit.tex"
	pdfFile = "circuit.pdf"
	pngFile = "circuit.png"

	// firstPagePNG is what convert writes for a multi-page PDF.
	firstPagePNG = "circuit-0.png"

	// sandboxMount is where the work dir is mounted inside the container.
	sandboxMount = "/work"

	diagnosticsTail = 2048
)

// Options configures a Runner.
type Options struct {
	CompilerPath  string
	ConverterPath string
	Density       int
	Timeout       time.Duration // per stage
	WorkRoot      string        // "" = os.TempDir()
	IncludePDF    bool
	SandboxImage  string // run both stages via `docker run` when set
	DockerPath    string // "" = "docker"
}

// Runner implements port/renderer.Renderer.
type Runner struct {
	opts Options
	exec CommandRunner
}

// New creates a Runner. A nil cr uses ExecRunner.
func New(opts Options, cr CommandRunner) *Runner {
	if cr == nil {
		cr = ExecRunner{}
	}
	if opts.DockerPath == "" {
		opts.DockerPath = "docker"
	}
	return &Runner{opts: opts, exec: cr}
}

// Check reports whether the configured tools can be found on PATH.
func (r *Runner) Check() error {
	tools := []string{r.opts.CompilerPath, r.opts.ConverterPath}
	if r.opts.SandboxImage != "" {
		tools = []string{r.opts.DockerPath}
	}
	var errs []error
	for _, t := range tools {
		if _, err := exec.LookPath(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Render compiles code into a PNG image.
//
// Errors wrapping domain.ErrCompileFailed mean a stage exited abnormally
// (non-zero exit, killed, timed out) or produced no output. Anything else,
// including a missing executable, is an infrastructure failure.
func (r *Runner) Render(ctx context.Context, code string) (*render.Result, error) {
	dir, err := os.MkdirTemp(r.opts.WorkRoot, "circuit-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			slog.Warn("remove work dir", append(logger.Attrs(ctx), "dir", dir, "error", rmErr)...)
		}
	}()

	if err := os.WriteFile(filepath.Join(dir, texFile), []byte(Document(code)), 0o600); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}

	if err := r.stage(ctx, dir, "compile", r.opts.CompilerPath,
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-no-shell-escape",
		"-output-directory", ".",
		texFile,
	); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, dir, "convert", r.opts.ConverterPath,
		"-density", strconv.Itoa(r.opts.Density),
		pdfFile,
		pngFile,
	); err != nil {
		return nil, err
	}

	image, err := readOutput(dir, pngFile, firstPagePNG)
	if err != nil {
		return nil, err
	}

	res := &render.Result{Image: image}
	if r.opts.IncludePDF {
		if res.PDF, err = readOutput(dir, pdfFile); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// stage runs one tool under the per-stage timeout and classifies its failure.
func (r *Runner) stage(ctx context.Context, dir, name, tool string, args ...string) (err error) {
	ctx, span := otel.StartStageSpan(ctx, name, tool)
	defer func() { otel.EndSpan(span, err) }()

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	out, runErr := r.exec.Run(ctx, r.command(dir, tool, args))
	if runErr == nil {
		slog.Debug("render stage done", append(logger.Attrs(ctx), "stage", name, "duration", time.Since(start))...)
		return nil
	}

	if errors.Is(runErr, exec.ErrNotFound) {
		return fmt.Errorf("%s: %w", name, runErr)
	}

	var exitErr interface{ ExitCode() int }
	abnormal := errors.As(runErr, &exitErr) ||
		errors.Is(runErr, context.DeadlineExceeded) ||
		errors.Is(runErr, context.Canceled)
	if !abnormal {
		return fmt.Errorf("%s: start %s: %w", name, tool, runErr)
	}

	attrs := append(logger.Attrs(ctx),
		"stage", name,
		"tool", tool,
		"duration", time.Since(start),
		"error", runErr,
		"output", tail(out, diagnosticsTail),
	)
	if exitErr != nil {
		attrs = append(attrs, "exit_code", exitErr.ExitCode())
	}
	slog.Warn("render stage failed", attrs...)

	return fmt.Errorf("%s: %w", name, domain.ErrCompileFailed)
}

// command builds the invocation for tool, wrapping it in a locked-down
// container when a sandbox image is configured.
func (r *Runner) command(dir, tool string, args []string) Command {
	texEnv := []string{"openin_any=p", "openout_any=p"}

	if r.opts.SandboxImage == "" {
		return Command{
			Dir:  dir,
			Name: tool,
			Args: args,
			Env:  append(os.Environ(), texEnv...),
		}
	}

	docker := []string{
		"run", "--rm",
		"--network=none",
		"--read-only",
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--tmpfs", "/tmp",
		"-e", "HOME=/tmp",
		"-e", texEnv[0],
		"-e", texEnv[1],
		"-v", dir + ":" + sandboxMount,
		"-w", sandboxMount,
	}
	if uid, gid := os.Getuid(), os.Getgid(); uid >= 0 && gid >= 0 {
		docker = append(docker, "--user", strconv.Itoa(uid)+":"+strconv.Itoa(gid))
	}
	docker = append(docker, r.opts.SandboxImage, tool)
	docker = append(docker, args...)

	return Command{Dir: dir, Name: r.opts.DockerPath, Args: docker}
}

// readOutput returns the first of names present in dir. A missing artifact
// after a clean exit means the markup produced nothing to render.
func readOutput(dir string, names ...string) ([]byte, error) {
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n)) //nolint:gosec // G304: fixed names inside our own work dir
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", n, err)
		}
	}
	return nil, fmt.Errorf("missing %s: %w", names[0], domain.ErrCompileFailed)
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
