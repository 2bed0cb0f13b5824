package cmd

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/bruin-data/staywarehouse/pkg/batchfile"
	"github.com/bruin-data/staywarehouse/pkg/config"
	"github.com/bruin-data/staywarehouse/pkg/load"
	"github.com/bruin-data/staywarehouse/pkg/logger"
	"github.com/bruin-data/staywarehouse/pkg/path"
	"github.com/bruin-data/staywarehouse/pkg/report"
	"github.com/bruin-data/staywarehouse/pkg/snapshot"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

const defaultDecodeWorkers = 8

func Load(isDebug *bool) *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "load one or more batch files into the warehouse",
		ArgsUsage: "[batch files or directories]",
		Flags: []cli.Flag{
			configFileFlag(),
			outputFlag(),
			&cli.IntFlag{
				Name:  "workers",
				Usage: "the number of batch files decoded in parallel",
				Value: defaultDecodeWorkers,
			},
			&cli.BoolFlag{
				Name:  "continue-on-error",
				Usage: "keep loading the remaining batches after one fails",
			},
		},
		Action: func(c *cli.Context) error {
			defer RecoverFromPanic()

			output := c.String("output")
			format, err := report.ParseFormat(output)
			if err != nil {
				printErrorForOutput(output, err)
				return cli.Exit("", 1)
			}

			if c.Args().Len() == 0 {
				printErrorForOutput(output, errors.New("please give at least one batch file or directory: staywarehouse load <path>"))
				return cli.Exit("", 1)
			}

			fs := afero.NewOsFs()
			cfg, err := loadConfig(fs, c)
			if err != nil {
				printErrorForOutput(output, err)
				return cli.Exit("", 1)
			}
			log := makeLogger(*isDebug, cfg.Log.Level)
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			if cfg.Load.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Load.Timeout)
				defer cancel()
			}

			cmd := &LoadCommand{
				fs:              fs,
				logger:          log,
				workers:         c.Int("workers"),
				continueOnError: c.Bool("continue-on-error"),
			}

			reports, err := cmd.Run(ctx, cfg, c.Args().Slice())
			if err != nil {
				printErrorForOutput(output, err)
				return cli.Exit("", 1)
			}

			if err := (report.Renderer{Format: format}).Render(os.Stdout, reports); err != nil {
				printErrorForOutput(output, err)
				return cli.Exit("", 1)
			}

			if ctx.Err() != nil && format == report.FormatPlain {
				warningPrinter.Println("\nThe load was interrupted, the warehouse stays at the last committed batch.")
			}
			if failed := countFailed(reports); failed > 0 {
				if format == report.FormatPlain {
					errorPrinter.Printf("\n%d of %d batches failed.\n", failed, len(reports))
				}
				return cli.Exit("", 1)
			}
			if format == report.FormatPlain {
				successPrinter.Printf("\nLoaded %d batches.\n", len(reports))
			}
			return nil
		},
	}
}

type LoadCommand struct {
	fs              afero.Fs
	logger          logger.Logger
	workers         int
	continueOnError bool
	// store overrides the configured warehouse.
	store warehouse.Store
}

// Run loads every batch file found under paths, oldest ingestion first.
// Batches without any rows are skipped and get no report.
func (l *LoadCommand) Run(ctx context.Context, cfg *config.Config, paths []string) ([]*load.Report, error) {
	files, err := path.ExpandPaths(l.fs, paths, batchFileSuffixes)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no batch files were found in the given paths")
	}
	l.logger.Debugw("found batch files", "count", len(files))

	batches, err := decodeBatches(ctx, l.fs, files, l.workers)
	if err != nil {
		return nil, err
	}

	opts, err := cfg.LoadOptions()
	if err != nil {
		return nil, err
	}

	store := l.store
	if store == nil {
		store, err = openStore(ctx, cfg.Warehouse)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open the warehouse")
		}
		defer store.Close()
	}

	catalog := warehouse.NewCatalog()
	if err := store.EnsureTables(ctx, catalog.Tables()); err != nil {
		return nil, errors.Wrap(err, "failed to create the warehouse tables")
	}

	coordinator, err := load.NewCoordinator(store, catalog, l.logger, opts)
	if err != nil {
		return nil, err
	}

	reports := make([]*load.Report, 0, len(batches))
	for _, b := range batches {
		if b.batch.Empty() {
			l.logger.Warnw("skipping batch without rows", "file", b.path, "batch", b.batch.ID)
			continue
		}

		rep, err := coordinator.Load(ctx, b.batch)
		reports = append(reports, rep)
		if err == nil {
			continue
		}

		l.logger.Warnw("batch failed", "file", b.path, "error", err)
		if ctx.Err() != nil || !l.continueOnError {
			break
		}
	}
	return reports, nil
}

type decodedBatch struct {
	path  string
	batch *snapshot.Batch
}

// decodeBatches reads the files concurrently and orders the result by ingestion
// time, then by file name.
func decodeBatches(ctx context.Context, fs afero.Fs, files []string, workers int) ([]decodedBatch, error) {
	if workers <= 0 {
		workers = defaultDecodeWorkers
	}

	p := pool.NewWithResults[decodedBatch]().WithErrors().WithContext(ctx).WithMaxGoroutines(workers)
	for _, file := range files {
		p.Go(func(ctx context.Context) (decodedBatch, error) {
			if err := ctx.Err(); err != nil {
				return decodedBatch{}, err
			}
			b, err := batchfile.ReadFile(fs, file)
			if err != nil {
				return decodedBatch{}, err
			}
			return decodedBatch{path: file, batch: b}, nil
		})
	}

	batches, err := p.Wait()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.batch.IngestedAt.Equal(b.batch.IngestedAt) {
			return a.batch.IngestedAt.Before(b.batch.IngestedAt)
		}
		return a.path < b.path
	})
	return batches, nil
}

func countFailed(reports []*load.Report) int {
	return lo.CountBy(reports, func(r *load.Report) bool { return !r.Committed() })
}
