package main

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/firefart/dmarcsurvey/internal/aggregate"
	"github.com/firefart/dmarcsurvey/internal/config"
	"github.com/firefart/dmarcsurvey/internal/dmarc"
	"github.com/firefart/dmarcsurvey/internal/report"
	"github.com/hashicorp/go-multierror"
	"github.com/hokaccha/go-prettyjson"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	var configFile string
	var debug bool

	root := &cobra.Command{
		Use:          "dmarcsurvey",
		Short:        "Survey DMARC, SPF and MX deployment from bulk DNS query results",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.GetConfig(config.Defaults(), configFile)
			if err != nil {
				return fmt.Errorf("could not read config: %w", err)
			}
			a.config = settings

			logger, closeLog, err := newLogger(debug, settings.LogDir, cmd.Name())
			if err != nil {
				return err
			}
			a.logger = logger
			a.closeLog = closeLog
			a.logger.Debug("starting", "command", cmd.CommandPath(), "workers", settings.Workers, "batchLines", settings.BatchLines)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Config File to use")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Print debug output")

	root.AddCommand(
		newPartitionCmd(a),
		newReportCmd(a),
		newExtractCmd(a),
		newMergeCmd(a),
		newParseCmd(),
	)
	return root
}

func newPartitionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "partition <file>...",
		Short: "Build or refresh the partition index of input files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.partitioner()
			for _, file := range args {
				parts, err := p.Partitions(file)
				if err != nil {
					return fmt.Errorf("could not partition %s: %w", file, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d partitions in %s\n", file, len(parts), p.IndexPath(file))
			}
			return nil
		},
	}
}

func newReportCmd(a *app) *cobra.Command {
	var output, save string

	cmd := &cobra.Command{
		Use:   "report <kind> <file>",
		Short: "Count an input file in parallel and render a markdown report",
		Long:  "Available kinds: " + strings.Join(report.Names(), ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := report.Lookup(args[0])
			if err != nil {
				return err
			}
			file := args[1]

			runID := ulid.Make()
			a.logger.Info("starting report", "run", runID, "kind", kind.Name, "file", file)
			tally, err := a.run(cmd, kind, file)
			if err != nil {
				return err
			}

			if save != "" {
				if err := aggregate.WriteSnapshot(a.fs, save, aggregate.NewSnapshot(runID, file, kind.Name, tally)); err != nil {
					return err
				}
				a.logger.Info("snapshot saved", "path", save)
			}

			path, err := a.outputPath(output, kind.Name+"_report.md")
			if err != nil {
				return err
			}
			meta := report.Meta{RunID: runID, Input: file, Date: time.Now()}
			if err := writeFile(a.fs, path, func(w io.Writer) error {
				return report.Render(w, kind, meta, tally)
			}); err != nil {
				return err
			}
			a.logger.Info("report written", "path", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "Report file, defaults to <kind>_report.md in the output dir")
	cmd.Flags().StringVar(&save, "save", "", "Also store the raw counts as a snapshot for merge")
	return cmd
}

func newExtractCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Write TXT answers that look like DMARC but do not parse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tally, err := a.run(cmd, report.Invalid, args[0])
			if err != nil {
				return err
			}
			records := report.InvalidRecords(tally)

			path, err := a.outputPath(output, "invalid_dmarc_records.txt")
			if err != nil {
				return err
			}
			if err := writeFile(a.fs, path, func(w io.Writer) error {
				for _, r := range records {
					if _, err := fmt.Fprintln(w, r); err != nil {
						return err
					}
				}
				return nil
			}); err != nil {
				return err
			}
			a.logger.Info("invalid records written", "count", len(records), "path", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "Output file, defaults to invalid_dmarc_records.txt in the output dir")
	return cmd
}

func newMergeCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge <kind> <snapshot>...",
		Short: "Merge snapshots of several runs and render one report",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			kind, err := report.Lookup(args[0])
			if err != nil {
				return err
			}

			snapshots := make([]*aggregate.Snapshot, 0, len(args)-1)
			for _, path := range args[1:] {
				s, err := aggregate.ReadSnapshot(a.fs, path)
				if err != nil {
					return err
				}
				if s.Kind != kind.Name {
					return fmt.Errorf("snapshot %s is a %q report, not %q", path, s.Kind, kind.Name)
				}
				a.logger.Debug("loaded snapshot", "path", path, "run", s.ID, "source", s.Source, "created", s.Created)
				snapshots = append(snapshots, s)
			}
			tally, err := aggregate.MergeSnapshots(snapshots...)
			if err != nil {
				return err
			}

			path, err := a.outputPath(output, kind.Name+"_report.md")
			if err != nil {
				return err
			}
			meta := report.Meta{RunID: ulid.Make(), Input: strings.Join(args[1:], ", "), Date: time.Now()}
			if err := writeFile(a.fs, path, func(w io.Writer) error {
				return report.Render(w, kind, meta, tally)
			}); err != nil {
				return err
			}
			a.logger.Info("merged report written", "snapshots", len(snapshots), "path", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "Report file, defaults to <kind>_report.md in the output dir")
	return cmd
}

func newParseCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse <record>",
		Short: "Parse a single DMARC record and show its tags and diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printRecord(cmd.OutOrStdout(), args[0], asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the parsed record as JSON")
	return cmd
}

func printRecord(w io.Writer, raw string, asJSON bool) error {
	rec, ok := dmarc.Parse(raw)
	if !ok {
		fmt.Fprintf(w, "not a DMARC record\n%s\n", dmarc.ClassifyNonRecord(raw))
		return nil
	}

	if asJSON {
		b, err := prettyjson.Marshal(rec)
		if err != nil {
			return fmt.Errorf("could not marshal record: %w", err)
		}
		fmt.Fprintln(w, string(b))
	} else {
		fmt.Fprintln(w, rec.Normalize())
		for _, tag := range []struct {
			name  string
			value string
			exp   bool
			valid bool
		}{
			{"p", rec.P.String(), rec.P.Explicit, rec.P.Valid},
			{"sp", rec.SP.String(), rec.SP.Explicit, rec.SP.Valid},
			{"adkim", rec.ADKIM.String(), rec.ADKIM.Explicit, rec.ADKIM.Valid},
			{"aspf", rec.ASPF.String(), rec.ASPF.Explicit, rec.ASPF.Valid},
			{"fo", rec.FO.String(), rec.FO.Explicit, rec.FO.Valid},
			{"pct", rec.PCT.String(), rec.PCT.Explicit, rec.PCT.Valid},
			{"rf", rec.RF.String(), rec.RF.Explicit, rec.RF.Valid},
			{"ri", rec.RI.String(), rec.RI.Explicit, rec.RI.Valid},
			{"rua", rec.RUA.String(), rec.RUA.Explicit, rec.RUA.Valid},
			{"ruf", rec.RUF.String(), rec.RUF.Explicit, rec.RUF.Valid},
		} {
			fmt.Fprintf(w, "  %-6s %-30q explicit=%-5t valid=%t\n", tag.name, tag.value, tag.exp, tag.valid)
		}
		for k, v := range rec.UnknownTags {
			fmt.Fprintf(w, "  unknown tag %s=%q\n", k, v)
		}
	}

	fmt.Fprintf(w, "valid: %t\n", rec.IsValid())
	fmt.Fprintf(w, "remainder ignored: %t\n", rec.RemainderIgnored())
	for _, uri := range slices.Concat(rec.RUA.Value, rec.RUF.Value) {
		if _, err := dmarc.ParseURI(uri); err != nil {
			fmt.Fprintf(w, "invalid report URI %q: %v\n", uri, err)
		}
	}
	for _, warning := range dmarc.Diagnose(raw, rec) {
		fmt.Fprintln(w, warning)
	}
	return nil
}

// run partitions file and runs kind over all partitions.
func (a *app) run(cmd *cobra.Command, kind *report.Kind, file string) (aggregate.Tally, error) {
	parts, err := a.partitioner().Partitions(file)
	if err != nil {
		return nil, fmt.Errorf("could not partition %s: %w", file, err)
	}
	tally, err := aggregate.Run(cmd.Context(), a.harness(), parts, report.Task(kind, report.NewEnv()))
	if err != nil {
		return nil, fmt.Errorf("could not run %s report: %w", kind.Name, err)
	}
	return tally, nil
}

func writeFile(fs afero.Fs, path string, fn func(w io.Writer) error) (err error) {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	return nil
}
