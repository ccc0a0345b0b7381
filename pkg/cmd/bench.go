package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/driftdb/driftdb/internal/docgen"
	"github.com/driftdb/driftdb/internal/planner"
	"github.com/driftdb/driftdb/pkg/cmd/util"
	"github.com/driftdb/driftdb/pkg/fieldpath"
	"github.com/driftdb/driftdb/pkg/logger"
	"github.com/driftdb/driftdb/pkg/matcher"
	"github.com/driftdb/driftdb/pkg/pipeline"
	"github.com/driftdb/driftdb/pkg/storage"
	"github.com/driftdb/driftdb/pkg/storage/memory"
	"github.com/driftdb/driftdb/pkg/telemetry"
)

const benchCollection = "bench"

// regions the seeded documents are spread over and the queries filter by.
const benchRegions = 8

func NewBenchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Seed an in-memory collection with generated documents and benchmark fused aggregation pipelines against it",
		RunE:  runBench,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()

	flags.Int("docs", 10000, "number of documents to seed")
	util.MustBindPFlag("bench.docs", flags.Lookup("docs"))

	flags.Int("workers", 4, "number of concurrent query workers")
	util.MustBindPFlag("bench.workers", flags.Lookup("workers"))

	flags.Int("queries", 100, "number of queries each worker runs")
	util.MustBindPFlag("bench.queries", flags.Lookup("queries"))

	flags.Int64("seed", 1, "seed for the document generator")
	util.MustBindPFlag("bench.seed", flags.Lookup("seed"))

	flags.Bool("indexed", true, "create a compound index so filter and sort both fuse into the scan")
	util.MustBindPFlag("bench.indexed", flags.Lookup("indexed"))

	flags.String("log-format", "text", "the log format to output logs in ('text' or 'json')")
	util.MustBindPFlag("bench.logFormat", flags.Lookup("log-format"))

	flags.String("log-level", "info", "the log level to use ('none', 'debug', 'info', 'warn' or 'error')")
	util.MustBindPFlag("bench.logLevel", flags.Lookup("log-level"))

	flags.Bool("trace-enabled", false, "enable tracing of the planner and export spans over OTLP")
	util.MustBindPFlag("bench.traceEnabled", flags.Lookup("trace-enabled"))

	flags.String("trace-otlp-endpoint", "0.0.0.0:4317", "the grpc endpoint of the trace collector")
	util.MustBindPFlag("bench.traceOTLPEndpoint", flags.Lookup("trace-otlp-endpoint"))

	flags.Float64("trace-sample-ratio", 0.2, "the fraction of traces to sample")
	util.MustBindPFlag("bench.traceSampleRatio", flags.Lookup("trace-sample-ratio"))

	return cmd
}

// benchTemplate is the document template seeded documents are generated from.
func benchTemplate() map[string]any {
	return map[string]any{
		"region": map[string]any{"#CONCAT": []any{
			"r-", map[string]any{"#RAND_INT": []any{0.0, float64(benchRegions)}},
		}},
		"value": map[string]any{"#RAND_NORMAL": []any{100.0, 15.0}},
		"token": map[string]any{"#RAND_STRING": []any{8.0}},
	}
}

func runBench(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := logger.NewLogger(
		viper.GetString("bench.logFormat"),
		viper.GetString("bench.logLevel"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	docs := viper.GetInt("bench.docs")
	workers := viper.GetInt("bench.workers")
	queries := viper.GetInt("bench.queries")
	seed := viper.GetInt64("bench.seed")
	indexed := viper.GetBool("bench.indexed")

	if viper.GetBool("bench.traceEnabled") {
		tp := telemetry.MustNewTracerProvider(
			telemetry.WithOTLPEndpoint(viper.GetString("bench.traceOTLPEndpoint")),
			telemetry.WithSamplingRatio(viper.GetFloat64("bench.traceSampleRatio")),
		)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn("failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	ds := memory.New(memory.WithLogger(log))
	if indexed {
		key := storage.SortKey{
			{Path: fieldpath.MustNew("region")},
			{Path: fieldpath.MustNew("value")},
		}
		if err := ds.CreateIndex(benchCollection, key); err != nil {
			return err
		}
	}

	start := time.Now()
	if err := seedCollection(ctx, ds, docs, workers, seed); err != nil {
		return fmt.Errorf("failed to seed collection: %w", err)
	}
	log.Info("seeded collection",
		zap.Int("docs", docs),
		zap.Bool("indexed", indexed),
		zap.Duration("took", time.Since(start)),
	)

	pln := planner.New(ds, planner.WithLogger(log))

	if err := logPlanSummary(ctx, pln, log); err != nil {
		return err
	}

	start = time.Now()
	returned, err := runQueries(ctx, pln, workers, queries)
	if err != nil {
		return fmt.Errorf("benchmark failed: %w", err)
	}
	elapsed := time.Since(start)

	total := workers * queries
	log.Info("benchmark complete",
		zap.Int("queries", total),
		zap.Int("documents_returned", returned),
		zap.Duration("took", elapsed),
		zap.Float64("queries_per_second", float64(total)/elapsed.Seconds()),
	)
	return nil
}

// logPlanSummary prepares one benchmark pipeline and logs the plan the
// queries will run under, including the engine's own explanation.
func logPlanSummary(ctx context.Context, pln *planner.Planner, log logger.Logger) error {
	filter := storage.Filter{"region": "r-0"}
	m, err := matcher.Compile(filter)
	if err != nil {
		return err
	}
	pipe := pipeline.New(benchCollection,
		pipeline.NewMatch(filter, m),
		pipeline.NewSort(storage.SortKey{{Path: fieldpath.MustNew("value")}}),
	)

	cur, err := pln.Prepare(ctx, pipe)
	if err != nil {
		return err
	}
	defer cur.Close()

	summary, err := cur.PlanSummary(ctx, true)
	if err != nil {
		return err
	}
	log.Info("query plan", zap.Any("summary", summary))
	return nil
}

// seedCollection generates and inserts the documents, split across workers.
// Each worker holds its own template evaluator with a derived seed.
func seedCollection(ctx context.Context, ds *memory.Datastore, docs, workers int, seed int64) error {
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(workers)
	for w := 0; w < workers; w++ {
		share := docs / workers
		if w == workers-1 {
			share += docs % workers
		}
		evaluator := docgen.New(seed + int64(w))

		p.Go(func(ctx context.Context) error {
			batch := make([]map[string]any, 0, share)
			for i := 0; i < share; i++ {
				doc, err := evaluator.Evaluate(benchTemplate())
				if err != nil {
					return err
				}
				batch = append(batch, doc)
			}
			_, err := ds.Insert(ctx, benchCollection, batch...)
			return err
		})
	}
	return p.Wait()
}

// runQueries drives the planner from each worker: filter one region, sort by
// value, keep the top ten. Returns the total number of documents surfaced.
func runQueries(ctx context.Context, pln *planner.Planner, workers, queries int) (int, error) {
	p := pool.NewWithResults[int]().WithErrors().WithContext(ctx).WithMaxGoroutines(workers)
	for w := 0; w < workers; w++ {
		region := fmt.Sprintf("r-%d", w%benchRegions)

		p.Go(func(ctx context.Context) (int, error) {
			returned := 0
			for i := 0; i < queries; i++ {
				n, err := runOne(ctx, pln, region)
				if err != nil {
					return returned, err
				}
				returned += n
			}
			return returned, nil
		})
	}

	counts, err := p.Wait()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func runOne(ctx context.Context, pln *planner.Planner, region string) (int, error) {
	filter := storage.Filter{"region": region}
	m, err := matcher.Compile(filter)
	if err != nil {
		return 0, err
	}

	pipe := pipeline.New(benchCollection,
		pipeline.NewMatch(filter, m),
		pipeline.NewSort(storage.SortKey{{Path: fieldpath.MustNew("value")}}),
		pipeline.NewLimit(10),
	)

	cur, err := pln.Prepare(ctx, pipe)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	docs, err := pipeline.Drain(ctx, pipe.Tail())
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}
