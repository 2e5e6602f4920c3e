package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlpool/pkg/config"
	"github.com/ajitpratap0/sqlpool/pkg/json"
	"github.com/ajitpratap0/sqlpool/pkg/logger"
	"github.com/ajitpratap0/sqlpool/pkg/observability"
	"github.com/ajitpratap0/sqlpool/pkg/sqlite"
)

var version = "0.1.0"

// globalFlags are shared by every command that opens a database.
type globalFlags struct {
	configFile string
	dbPath     string
	logLevel   string
	trace      bool
}

// session is an opened database plus whatever must be torn down with it.
type session struct {
	cfg      *config.Config
	db       *sqlite.Database
	log      *zap.Logger
	shutdown []func(context.Context) error
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "sqlpool",
		Short: "sqlpool - pooled SQLite access",
		Long: `sqlpool runs statements against a SQLite database through a tiered
connection pool: one read-write primary connection and a bounded set of
reader connections with per-connection prepared statement caches.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "Database path (overrides database.path)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.trace, "trace", false, "Print spans to stdout")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sqlpool v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "exec SQL [ARG...]",
		Short: "Run a write statement on the primary connection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(flags)
			if err != nil {
				return err
			}
			defer s.close()

			result, err := s.db.Exec(cmd.Context(), args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			data, err := json.Marshal(result)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	})

	var format string
	var pretty bool
	queryCmd := &cobra.Command{
		Use:   "query SQL [ARG...]",
		Short: "Run a read statement and print the rows as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := json.ParseFormat(format)
			if err != nil {
				return err
			}
			s, err := open(flags)
			if err != nil {
				return err
			}
			defer s.close()

			rows, err := s.db.Query(cmd.Context(), args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			return json.WriteRows(os.Stdout, rows, f, pretty)
		},
	}
	queryCmd.Flags().StringVarP(&format, "format", "f", string(json.FormatArray), "Output format (json, jsonl)")
	queryCmd.Flags().BoolVar(&pretty, "pretty", false, "Indent JSON output")
	root.AddCommand(queryCmd)

	root.AddCommand(newBenchCommand(flags))

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// open loads configuration, applies flag overrides and opens the database.
func open(flags *globalFlags) (*session, error) {
	cfg := config.NewDefault()
	if flags.configFile != "" {
		loaded, err := config.LoadFile(flags.configFile)
		if err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
		cfg = loaded
	}
	if flags.dbPath != "" {
		cfg.Database.Path = flags.dbPath
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.trace {
		cfg.Tracing.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	if err := logger.Init(cfg.Logger()); err != nil {
		return nil, err
	}
	s := &session{
		cfg: cfg,
		log: logger.Get().With(zap.String("component", "sqlpool-cli")),
	}

	if cfg.Tracing.Enabled {
		shutdown, err := observability.Initialize(cfg.TraceSettings(version))
		if err != nil {
			return nil, err
		}
		s.shutdown = append(s.shutdown, shutdown)
	}

	db, err := sqlite.Open(cfg.SQLite(), sqlite.WithLogger(logger.Named("sqlite")))
	if err != nil {
		s.close()
		return nil, err
	}
	s.db = db

	if cfg.Metrics.Enabled {
		s.serveMetrics(cfg.Metrics.Address)
	}
	return s, nil
}

// serveMetrics exposes the default prometheus registry plus the pool gauge.
func (s *session) serveMetrics(addr string) {
	if err := prometheus.Register(s.db.Collector()); err != nil {
		s.log.Warn("failed to register pool collector", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("metrics server failed", zap.Error(err))
		}
	}()
	s.log.Info("serving metrics", zap.String("address", addr))
	s.shutdown = append(s.shutdown, server.Shutdown)
}

func (s *session) close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("failed to close database", zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, shutdown := range lo.Reverse(s.shutdown) {
		if err := shutdown(ctx); err != nil {
			s.log.Warn("shutdown failed", zap.Error(err))
		}
	}
	_ = logger.Sync()
}

// parseArgs turns command line arguments into statement parameters:
// integers and floats bind as numbers, "null" as NULL, anything else as
// text.
func parseArgs(args []string) []any {
	return lo.Map(args, func(arg string, _ int) any {
		if arg == "null" {
			return nil
		}
		if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(arg, 64); err == nil {
			return f
		}
		return arg
	})
}
