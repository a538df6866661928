package main

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/Strob0t/CircuitForge/internal/config"
)

type cliFlags struct {
	configPath string
	port       string
	logLevel   string
	version    bool
}

// parseFlags parses args (including the program name). Flags set on the
// command line override the loaded configuration.
func parseFlags(args []string, stderr io.Writer) (*cliFlags, error) {
	f := &cliFlags{}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&f.configPath, "config", "c", config.DefaultConfigFile, "path to YAML configuration file")
	fs.StringVarP(&f.port, "port", "p", "", "HTTP listen port (overrides config)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	fs.BoolVarP(&f.version, "version", "v", false, "print version and exit")

	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: %s [flags]\n\nRender CircuiTikZ markup to PNG over HTTP.\n\nFlags:\n", args[0])
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

// apply overlays command-line overrides onto cfg.
func (f *cliFlags) apply(cfg *config.Config) {
	if f.port != "" {
		cfg.Server.Port = f.port
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
}
