package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/firefart/dmarcsurvey/internal/aggregate"
	"github.com/firefart/dmarcsurvey/internal/config"
	"github.com/firefart/dmarcsurvey/internal/partition"
	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
)

type app struct {
	config   *config.Configuration
	logger   *log.Logger
	fs       afero.Fs
	closeLog func() error
}

func main() {
	// trap Ctrl+C and call cancel on the context
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	defer func() {
		signal.Stop(c)
		cancel()
	}()

	go func() {
		select {
		case <-c:
			fmt.Fprintln(os.Stderr, "CTRL+C received")
			cancel()
		case <-ctx.Done():
		}
	}()

	a := &app{fs: afero.NewOsFs()}
	err := newRootCmd(a).ExecuteContext(ctx)
	if a.closeLog != nil {
		if cerr := a.closeLog(); cerr != nil {
			fmt.Fprintf(os.Stderr, "could not close log file: %v\n", cerr)
			err = multierror.Append(err, cerr)
		}
	}
	if err != nil {
		cancel()
		os.Exit(1) // nolint: gocritic
	}
}

// newLogger builds the process logger. Output goes to stderr and, when
// logDir is set, to a per invocation log file that is closed by the
// returned function.
func newLogger(debug bool, logDir, command string) (*log.Logger, func() error, error) {
	var w io.Writer = os.Stderr
	closeFn := func() error { return nil }

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("could not create log dir: %w", err)
		}
		name := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", time.Now().Format("20060102_150405"), command))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) // nolint: gosec
		if err != nil {
			return nil, nil, fmt.Errorf("could not open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = f.Close
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           log.InfoLevel,
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger, closeFn, nil
}

func (a *app) partitioner() *partition.Partitioner {
	return partition.New(a.fs, a.config.BatchLines, a.config.IndexExtension, a.logger)
}

func (a *app) harness() *aggregate.Harness {
	return aggregate.New(a.config.Workers, a.config.ProgressInterval.Duration, a.logger)
}

// outputPath returns flag when set, otherwise name inside the configured
// output dir.
func (a *app) outputPath(flag, name string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if err := a.fs.MkdirAll(a.config.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create output dir: %w", err)
	}
	return filepath.Join(a.config.OutputDir, name), nil
}
