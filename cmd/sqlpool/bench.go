package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/sqlpool/pkg/json"
	"github.com/ajitpratap0/sqlpool/pkg/logger"
	"github.com/ajitpratap0/sqlpool/pkg/metrics"
	"github.com/ajitpratap0/sqlpool/pkg/pool"
)

// benchReport is printed when a benchmark finishes.
type benchReport struct {
	Readers       int           `json:"readers"`
	Duration      time.Duration `json:"duration_ns"`
	Writes        int64         `json:"writes"`
	Reads         int64         `json:"reads"`
	WritesPerSec  float64       `json:"writes_per_sec"`
	ReadsPerSec   float64       `json:"reads_per_sec"`
	PoolGauge     pool.Gauge    `json:"pool"`
	FactoryGauge  pool.Gauge    `json:"connections"`
	AfterClearLow pool.Gauge    `json:"after_clear_low"`
}

func newBenchCommand(flags *globalFlags) *cobra.Command {
	var (
		readers     int
		duration    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run concurrent readers against one writer",
		Long: `Run one writer and N readers for a fixed duration, then report
throughput and the pool gauges.

Example:
  sqlpool bench --db /tmp/bench.db --readers 8 --duration 10s --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(flags)
			if err != nil {
				return err
			}
			defer s.close()
			if metricsAddr != "" && !s.cfg.Metrics.Enabled {
				s.serveMetrics(metricsAddr)
			}
			return runBench(cmd.Context(), s, readers, duration)
		},
	}
	cmd.Flags().IntVar(&readers, "readers", 4, "Number of concurrent readers")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "How long to run")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics on this address while running")
	return cmd
}

func runBench(ctx context.Context, s *session, readers int, duration time.Duration) error {
	if readers <= 0 {
		return fmt.Errorf("readers must be positive")
	}
	const schema = `CREATE TABLE IF NOT EXISTS bench (
		id INTEGER PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return err
	}

	log := logger.WithContext(logger.ContextWithDatabase(ctx, s.cfg.Database.Path)).
		With(zap.String("component", "bench"))
	log.Info("starting benchmark",
		zap.Int("readers", readers),
		zap.Duration("duration", duration))

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	var writes, reads atomic.Int64
	timer := metrics.NewTimer("bench")

	g.Go(func() error {
		for gctx.Err() == nil {
			n := writes.Load()
			if _, err := s.db.Exec(gctx, `INSERT INTO bench(payload, created_at) VALUES (?, ?)`,
				fmt.Sprintf("payload-%d", n), time.Now()); err != nil {
				return benchErr(gctx, err)
			}
			writes.Add(1)
		}
		return nil
	})
	for r := 0; r < readers; r++ {
		g.Go(func() error {
			for i := int64(0); gctx.Err() == nil; i++ {
				var err error
				if i%2 == 0 {
					_, err = s.db.Query(gctx, `SELECT count(*) FROM bench`)
				} else {
					_, err = s.db.Query(gctx, `SELECT payload FROM bench WHERE id = ?`, i%1000+1)
				}
				if err != nil {
					return benchErr(gctx, err)
				}
				reads.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := timer.Stop()

	report := benchReport{
		Readers:      readers,
		Duration:     elapsed,
		Writes:       writes.Load(),
		Reads:        reads.Load(),
		WritesPerSec: float64(writes.Load()) / elapsed.Seconds(),
		ReadsPerSec:  float64(reads.Load()) / elapsed.Seconds(),
		PoolGauge:    s.db.Gauge(),
		FactoryGauge: s.db.FactoryGauge(),
	}
	s.db.Clear(pool.PriorityLow)
	report.AfterClearLow = s.db.Gauge()

	log.Info("benchmark finished",
		zap.String("writes", humanize.Comma(report.Writes)),
		zap.String("reads", humanize.Comma(report.Reads)),
		zap.String("reads_per_sec", humanize.CommafWithDigits(report.ReadsPerSec, 1)))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// benchErr drops errors caused by the run's deadline.
func benchErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
