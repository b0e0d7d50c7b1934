package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fiberplan/internal/export"
	"github.com/sells-group/fiberplan/internal/popup"
)

var (
	processOut         string
	processFormat      string
	processStrict      bool
	processConcurrency int
)

var processCmd = &cobra.Command{
	Use:   "process FILE...",
	Short: "Convert KML/KMZ designs into MASTER POP UP files",
	Long: `Processes each design file independently and writes one
MASTER_POP_UP_RESULT_<file>.<ext> per input.

Examples:
  # Excel output next to the current directory
  fiberplan process design.kmz

  # Several files, CSV, four at a time
  fiberplan process a.kml b.kmz c.kml --format csv --concurrency 4 --out results/

  # Fail when FAT or POLE layers are missing
  fiberplan process design.kml --strict`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := popup.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("strict") {
			opts.Strict = processStrict
		}

		formatName := processFormat
		if formatName == "" {
			formatName = cfg.Process.Format
		}
		format, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}

		outDir := processOut
		if outDir == "" {
			outDir = cfg.Process.OutputDir
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return eris.Wrap(err, "process: create output dir")
		}

		concurrency := processConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Process.Concurrency
		}

		results := processFiles(cmd.Context(), args, outDir, format, opts, concurrency)
		formatProcessSummary(os.Stdout, results)

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return eris.Errorf("process: %d of %d files failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processOut, "out", "", "output directory (default from config)")
	processCmd.Flags().StringVar(&processFormat, "format", "", "output format: xlsx, csv, geojson, or shp (default from config)")
	processCmd.Flags().BoolVar(&processStrict, "strict", false, "also require FAT and POLE layers")
	processCmd.Flags().IntVar(&processConcurrency, "concurrency", 0, "max files to process concurrently (default from config)")
	rootCmd.AddCommand(processCmd)
}

// fileResult is the outcome of converting one design file.
type fileResult struct {
	Input   string
	Output  string
	Records int
	Elapsed time.Duration
	Err     error
}

// processFiles converts every file, at most concurrency at a time. A failed
// file does not stop the others; results keep the input order.
func processFiles(ctx context.Context, files []string, outDir string, format export.Format, opts popup.Options, concurrency int) []fileResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]fileResult, len(files))
	var succeeded, failed atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, file := range files {
		g.Go(func() error {
			start := time.Now()
			r := fileResult{Input: file}
			defer func() {
				r.Elapsed = time.Since(start)
				results[i] = r
			}()

			res, err := popup.ProcessDesign(gCtx, file, opts)
			if err != nil {
				failed.Add(1)
				r.Err = err
				zap.L().Error("process: file failed",
					zap.String("file", file),
					zap.Error(err),
				)
				return nil // keep converting the remaining files
			}

			out := filepath.Join(outDir, format.FileName(file))
			if err := export.WriteFile(out, format, res.Records); err != nil {
				failed.Add(1)
				r.Err = err
				zap.L().Error("process: write output",
					zap.String("file", file),
					zap.String("output", out),
					zap.Error(err),
				)
				return nil
			}

			succeeded.Add(1)
			r.Output = out
			r.Records = len(res.Records)
			return nil
		})
	}

	_ = g.Wait()

	zap.L().Info("process: batch complete",
		zap.Int("total", len(files)),
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)

	return results
}

func formatProcessSummary(out io.Writer, results []fileResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INPUT\tRECORDS\tOUTPUT\tELAPSED")
	_, _ = fmt.Fprintln(w, "-----\t-------\t------\t-------")

	for _, r := range results {
		if r.Err != nil {
			_, _ = fmt.Fprintf(w, "%s\t-\tERROR: %v\t%s\n", r.Input, r.Err, r.Elapsed.Round(time.Millisecond))
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Input, r.Records, r.Output, r.Elapsed.Round(time.Millisecond))
	}
	_ = w.Flush()
}
