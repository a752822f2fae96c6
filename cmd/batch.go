package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/qualify"
)

var (
	batchFlags       analysisFlags
	batchInput       string
	batchLimit       int
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Qualify a list of profiles and stream outcomes as NDJSON",
	Long: `Reads one profile reference per line from --input (or stdin), runs each
through the same analysis as "analyze" and writes one JSON outcome per line.
Blank lines and lines starting with # are ignored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		in := cmd.InOrStdin()
		if batchInput != "" && batchInput != "-" {
			f, err := os.Open(batchInput)
			if err != nil {
				return eris.Wrapf(err, "open input %s", batchInput)
			}
			defer f.Close()
			in = f
		}
		refs, err := readRefs(in)
		if err != nil {
			return err
		}
		if batchLimit > 0 && len(refs) > batchLimit {
			refs = refs[:batchLimit]
		}

		env, err := initQualify(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}
		depth := model.Depth(batchFlags.depth)
		opts := batchFlags.options()
		_, err = processBatch(ctx, refs, concurrency, cmd.OutOrStdout(), func(ctx context.Context, ref string) *qualify.Outcome {
			return env.Service.RunAnalysis(ctx, ref, batchFlags.business, depth, opts)
		})
		return err
	},
}

func init() {
	batchFlags.register(batchCmd.Flags())
	batchCmd.Flags().StringVarP(&batchInput, "input", "i", "", "file with one profile per line (default stdin)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of profiles to process (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel analyses (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// readRefs returns the non-empty, non-comment lines of r.
func readRefs(r io.Reader) ([]string, error) {
	var refs []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read profile list")
	}
	return refs, nil
}

// analyzeFunc runs one analysis. It never fails; errors are carried in the
// outcome.
type analyzeFunc func(ctx context.Context, ref string) *qualify.Outcome

// batchSummary counts outcomes by verdict.
type batchSummary struct {
	Succeeded int64
	EarlyExit int64
	Failed    int64
}

// processBatch analyzes refs with at most concurrency in flight and writes
// each outcome to w as a JSON line in completion order.
func processBatch(ctx context.Context, refs []string, concurrency int, w io.Writer, analyze analyzeFunc) (batchSummary, error) {
	var sum batchSummary
	if len(refs) == 0 {
		zap.L().Info("no profiles to process")
		return sum, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("profiles", len(refs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		succeeded, early, failed atomic.Int64
		mu                       sync.Mutex
		enc                      = json.NewEncoder(w)
	)

	for _, ref := range refs {
		g.Go(func() error {
			out := analyze(gctx, ref)

			switch out.Verdict {
			case model.VerdictSuccess:
				succeeded.Add(1)
			case model.VerdictEarlyExit:
				early.Add(1)
			default:
				failed.Add(1)
				zap.L().Warn("analysis failed",
					zap.String("profile", ref),
					zap.String("error_kind", out.ErrorKind),
					zap.String("error", out.Error),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			if err := enc.Encode(out); err != nil {
				return eris.Wrap(err, "batch: write outcome")
			}
			return nil
		})
	}

	err := g.Wait()
	sum = batchSummary{Succeeded: succeeded.Load(), EarlyExit: early.Load(), Failed: failed.Load()}
	zap.L().Info("batch complete",
		zap.Int64("succeeded", sum.Succeeded),
		zap.Int64("early_exit", sum.EarlyExit),
		zap.Int64("failed", sum.Failed),
	)
	if err != nil {
		return sum, eris.Wrap(err, "batch processing")
	}
	return sum, nil
}
