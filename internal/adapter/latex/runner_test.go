package latex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/CircuitForge/internal/domain"
)

type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e exitError) ExitCode() int { return int(e) }

// fakeExec simulates the toolchain by writing artifacts into the work dir.
type fakeExec struct {
	mu    sync.Mutex
	calls []Command
	run   func(ctx context.Context, c Command) ([]byte, error)
}

func (f *fakeExec) Run(ctx context.Context, c Command) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	return f.run(ctx, c)
}

func (f *fakeExec) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// toolchain succeeds: compile writes circuit.pdf, convert writes circuit.png.
func toolchain(ctx context.Context, c Command) ([]byte, error) {
	switch c.Name {
	case "pdflatex":
		return nil, os.WriteFile(filepath.Join(c.Dir, pdfFile), []byte("%PDF-fake"), 0o600)
	case "convert":
		return nil, os.WriteFile(filepath.Join(c.Dir, pngFile), []byte("\x89PNG-fake"), 0o600)
	}
	return nil, fmt.Errorf("unexpected tool %q", c.Name)
}

func newTestRunner(t *testing.T, run func(context.Context, Command) ([]byte, error)) (*Runner, *fakeExec, string) {
	t.Helper()
	root := t.TempDir()
	f := &fakeExec{run: run}
	r := New(Options{
		CompilerPath:  "pdflatex",
		ConverterPath: "convert",
		Density:       300,
		Timeout:       time.Second,
		WorkRoot:      root,
	}, f)
	return r, f, root
}

func assertEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("work root not cleaned up: %d entries left", len(entries))
	}
}

func TestRenderSuccess(t *testing.T) {
	var source string
	r, f, root := newTestRunner(t, func(ctx context.Context, c Command) ([]byte, error) {
		if c.Name == "pdflatex" {
			b, err := os.ReadFile(filepath.Join(c.Dir, texFile))
			if err != nil {
				return nil, err
			}
			source = string(b)
		}
		return toolchain(ctx, c)
	})

	res, err := r.Render(context.Background(), `\draw (0,0) to[R] (2,0);`)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(res.Image) != "\x89PNG-fake" {
		t.Errorf("image = %q", res.Image)
	}
	if res.PDF != nil {
		t.Error("PDF should be omitted unless IncludePDF is set")
	}
	if !strings.Contains(source, "\\begin{circuitikz}\n\\draw (0,0) to[R] (2,0);\n\\end{circuitikz}") {
		t.Errorf("code not embedded verbatim:\n%s", source)
	}

	calls := f.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].Dir != calls[1].Dir {
		t.Error("stages ran in different directories")
	}
	for _, want := range []string{"-interaction=nonstopmode", "-halt-on-error", "-no-shell-escape", texFile} {
		if !slices.Contains(calls[0].Args, want) {
			t.Errorf("compile args %v missing %q", calls[0].Args, want)
		}
	}
	if !slices.Equal(calls[1].Args, []string{"-density", "300", pdfFile, pngFile}) {
		t.Errorf("convert args = %v", calls[1].Args)
	}
	if !slices.Contains(calls[0].Env, "openout_any=p") {
		t.Error("compile env missing openout_any=p")
	}
	assertEmpty(t, root)
}

func TestRenderIncludePDF(t *testing.T) {
	r, _, _ := newTestRunner(t, toolchain)
	r.opts.IncludePDF = true

	res, err := r.Render(context.Background(), "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(res.PDF) != "%PDF-fake" {
		t.Errorf("pdf = %q", res.PDF)
	}
}

func TestRenderMultiPageFallback(t *testing.T) {
	r, _, _ := newTestRunner(t, func(ctx context.Context, c Command) ([]byte, error) {
		if c.Name == "convert" {
			return nil, os.WriteFile(filepath.Join(c.Dir, firstPagePNG), []byte("page0"), 0o600)
		}
		return toolchain(ctx, c)
	})

	res, err := r.Render(context.Background(), "x")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(res.Image) != "page0" {
		t.Errorf("image = %q, want first page", res.Image)
	}
}

func TestRenderFailures(t *testing.T) {
	tests := []struct {
		name        string
		run         func(context.Context, Command) ([]byte, error)
		wantCompile bool
		wantCalls   int
	}{
		{
			name: "compiler exits non-zero",
			run: func(context.Context, Command) ([]byte, error) {
				return []byte("! Undefined control sequence."), exitError(1)
			},
			wantCompile: true,
			wantCalls:   1,
		},
		{
			name: "converter exits non-zero",
			run: func(ctx context.Context, c Command) ([]byte, error) {
				if c.Name == "convert" {
					return nil, exitError(1)
				}
				return toolchain(ctx, c)
			},
			wantCompile: true,
			wantCalls:   2,
		},
		{
			name: "no image produced",
			run: func(ctx context.Context, c Command) ([]byte, error) {
				if c.Name == "convert" {
					return nil, nil
				}
				return toolchain(ctx, c)
			},
			wantCompile: true,
			wantCalls:   2,
		},
		{
			name: "compiler missing",
			run: func(context.Context, Command) ([]byte, error) {
				return nil, fmt.Errorf("pdflatex: %w", exec.ErrNotFound)
			},
			wantCompile: false,
			wantCalls:   1,
		},
		{
			name: "start failure",
			run: func(context.Context, Command) ([]byte, error) {
				return nil, os.ErrPermission
			},
			wantCompile: false,
			wantCalls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, f, root := newTestRunner(t, tt.run)

			res, err := r.Render(context.Background(), "x")
			if err == nil {
				t.Fatalf("Render succeeded with %+v", res)
			}
			if got := errors.Is(err, domain.ErrCompileFailed); got != tt.wantCompile {
				t.Errorf("errors.Is(ErrCompileFailed) = %v, want %v (err: %v)", got, tt.wantCompile, err)
			}
			if n := len(f.Calls()); n != tt.wantCalls {
				t.Errorf("calls = %d, want %d", n, tt.wantCalls)
			}
			assertEmpty(t, root)
		})
	}
}

func TestRenderStageTimeout(t *testing.T) {
	r, _, root := newTestRunner(t, func(ctx context.Context, c Command) ([]byte, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%s: %w", c.Name, ctx.Err())
	})
	r.opts.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := r.Render(context.Background(), "x")
	if !errors.Is(err, domain.ErrCompileFailed) {
		t.Fatalf("err = %v, want ErrCompileFailed", err)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Errorf("timeout not enforced, took %v", d)
	}
	assertEmpty(t, root)
}

func TestRenderCleansUpOnPanic(t *testing.T) {
	r, _, root := newTestRunner(t, func(context.Context, Command) ([]byte, error) {
		panic("tool exploded")
	})

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_, _ = r.Render(context.Background(), "x")
	}()
	assertEmpty(t, root)
}

func TestRenderConcurrentDistinctDirs(t *testing.T) {
	r, f, root := newTestRunner(t, func(ctx context.Context, c Command) ([]byte, error) {
		if c.Name == "pdflatex" {
			time.Sleep(5 * time.Millisecond)
		}
		return toolchain(ctx, c)
	})

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Render(context.Background(), fmt.Sprintf("node %d", i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Render: %v", err)
		}
	}

	dirs := make(map[string]struct{})
	for _, c := range f.Calls() {
		dirs[c.Dir] = struct{}{}
	}
	if len(dirs) != n {
		t.Errorf("distinct dirs = %d, want %d", len(dirs), n)
	}
	assertEmpty(t, root)
}

func TestSandboxCommand(t *testing.T) {
	r := New(Options{
		CompilerPath:  "pdflatex",
		ConverterPath: "convert",
		SandboxImage:  "texlive/texlive:latest",
	}, &fakeExec{})

	c := r.command("/tmp/circuit-1", "pdflatex", []string{"circuit.tex"})
	if c.Name != "docker" {
		t.Fatalf("name = %q, want docker", c.Name)
	}
	for _, want := range []string{"--network=none", "--read-only", "--cap-drop=ALL", "/tmp/circuit-1:/work"} {
		if !slices.Contains(c.Args, want) {
			t.Errorf("args %v missing %q", c.Args, want)
		}
	}
	img := slices.Index(c.Args, "texlive/texlive:latest")
	if img < 0 || !slices.Equal(c.Args[img+1:], []string{"pdflatex", "circuit.tex"}) {
		t.Errorf("tool invocation not after image: %v", c.Args)
	}
}

func TestDocument(t *testing.T) {
	doc := Document(`\draw (0,0) -- (1,0);`)
	if !strings.HasPrefix(doc, `\documentclass[border=3mm]{standalone}`) {
		t.Errorf("unexpected preamble:\n%s", doc)
	}
	if strings.Count(doc, `\draw (0,0) -- (1,0);`) != 1 {
		t.Error("fragment should appear exactly once")
	}
	if !strings.Contains(doc, `\usepackage{circuitikz}`) {
		t.Error("circuitikz package missing")
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 4}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	if got := string(b.Bytes()); got != "defg" {
		t.Errorf("tail = %q, want %q", got, "defg")
	}
}
