package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/adapters/source"
	"github.com/prospecthq/prospect-engine/pkg/broadband"
	"github.com/prospecthq/prospect-engine/pkg/config"
	"github.com/prospecthq/prospect-engine/pkg/database"
	"github.com/prospecthq/prospect-engine/pkg/epc"
	"github.com/prospecthq/prospect-engine/pkg/geo"
	"github.com/prospecthq/prospect-engine/pkg/logging"
	"github.com/prospecthq/prospect-engine/pkg/metrics"
	"github.com/prospecthq/prospect-engine/pkg/models"
	"github.com/prospecthq/prospect-engine/pkg/planning"
	"github.com/prospecthq/prospect-engine/pkg/repositories"
	"github.com/prospecthq/prospect-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	var (
		sourceName  = flag.String("source", "", "run only this source")
		city        = flag.String("city", "", "restrict the pass to one city")
		postcodes   = flag.String("postcodes", "", "comma-separated postcodes to process")
		propertyID  = flag.String("property", "", "re-enrich one existing record by id")
		limit       = flag.Int("limit", 0, "cap on listings processed (0 = no cap)")
		budgetMins  = flag.Int("time-budget", 0, "minutes before the pass stops early (0 = no budget)")
		sweepOnly   = flag.Bool("sweep-only", false, "run the freshness sweep and exit")
		metricsAddr = flag.String("metrics-addr", "", "serve /metrics on this address during the pass")
	)
	flag.Parse()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting prospect-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.Int("sources", len(cfg.Sources)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	if err := run(ctx, cfg, logger, runFlags{
		source:     *sourceName,
		city:       *city,
		postcodes:  splitList(*postcodes),
		propertyID: *propertyID,
		limit:      *limit,
		budgetMins: *budgetMins,
		sweepOnly:  *sweepOnly,
	}); err != nil {
		logger.Fatal("Run failed", zap.Error(err))
	}
}

type runFlags struct {
	source     string
	city       string
	postcodes  []string
	propertyID string
	limit      int
	budgetMins int
	sweepOnly  bool
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, flags runFlags) error {
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(&cfg.Database, cfg.Database.MigrationsPath, logger); err != nil {
		return err
	}

	repo := repositories.NewPostgresPropertyRepository(db.Pool)
	m := metrics.New()

	tracker := services.NewFreshnessTracker(repo, cfg.Pipeline.StalenessWindow(), logger)
	if flags.sweepOnly {
		n, err := tracker.Sweep(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		m.AddStaleMarked(n)
		logger.Info("Sweep finished", zap.Int("marked_stale", n))
		return nil
	}

	enricher, err := buildEnricher(cfg, logger)
	if err != nil {
		return err
	}

	orch := services.NewOrchestrator(services.OrchestratorDeps{
		Registry:    buildRegistry(cfg, logger),
		Repo:        repo,
		Resolver:    services.NewResolver(repo, logger),
		Enricher:    enricher,
		Freshness:   tracker,
		Metrics:     m,
		Concurrency: cfg.Pipeline.Concurrency,
	}, logger)

	scope := models.Scope{
		Source:     flags.source,
		City:       flags.city,
		Postcodes:  flags.postcodes,
		PropertyID: flags.propertyID,
		Limit:      flags.limit,
	}
	if scope.Limit == 0 {
		scope.Limit = cfg.Pipeline.DefaultLimit
	}
	budget := flags.budgetMins
	if budget == 0 {
		budget = cfg.Pipeline.TimeBudgetMins
	}
	if budget > 0 {
		scope.TimeBudget = time.Duration(budget) * time.Minute
	}

	result, err := orch.RunEnrichmentPass(ctx, scope)
	if err != nil {
		return err
	}

	logger.Info("Pass summary",
		zap.String("run_id", result.RunID),
		zap.Int("processed", result.Processed),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
		zap.Strings("samples", result.Samples),
		zap.Duration("duration", result.Duration))
	return nil
}

// buildRegistry wires one adapter per configured source, in config order.
func buildRegistry(cfg *config.Config, logger *zap.Logger) *source.Registry {
	registry := source.NewRegistry()
	for _, src := range cfg.Sources {
		switch src.Kind {
		case "licensing_register":
			registry.Register(source.NewLicensingAdapter(src.Name, src.BaseURL, logger))
		default:
			registry.Register(source.NewListingFeedAdapter(src.Name, src.BaseURL, logger))
		}
	}
	return registry
}

func buildEnricher(cfg *config.Config, logger *zap.Logger) (*services.Enricher, error) {
	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		// A dead Redis never blocks a pass; the memory tier still works.
		logger.Warn("Redis unavailable, using in-memory geocode cache only", zap.Error(err))
	}
	cache := geo.NewTieredCache(redisClient, time.Duration(cfg.Redis.TTLHours)*time.Hour, logger)

	limiter := geo.NewLimiter(time.Duration(cfg.Geocode.MinIntervalMS) * time.Millisecond)
	timeout := time.Duration(cfg.Geocode.RequestTimeoutMS) * time.Millisecond

	var addressProvider geo.Provider
	if cfg.Geocode.AddressTierEnabled() {
		addressProvider = geo.NewAddressProvider(cfg.Geocode.AddressBaseURL, cfg.Geocode.AddressAPIKey, timeout, limiter, logger)
	}
	postcodeProvider := geo.NewPostcodeProvider(cfg.Geocode.PostcodeBaseURL, timeout, limiter, logger)
	geocoder := geo.NewService(addressProvider, postcodeProvider, cache, logger)

	var dataset *planning.FeatureCollection
	if cfg.Planning.DatasetPath != "" {
		dataset, err = planning.LoadDataset(cfg.Planning.DatasetPath, logger)
		if err != nil {
			return nil, fmt.Errorf("planning dataset failed to load: %w", err)
		}
		logger.Info("Loaded planning dataset",
			zap.String("path", cfg.Planning.DatasetPath),
			zap.Int("features", len(dataset.Features)))
	}

	var epcClient services.EPCSearcher
	if cfg.EPC.Enabled {
		epcClient = epc.NewClient(cfg.EPC.BaseURL, cfg.EPC.AuthEmail, cfg.EPC.AuthKey, logger)
	}
	var broadbandClient services.BroadbandChecker
	if cfg.Broadband.Enabled {
		broadbandClient = broadband.NewClient(cfg.Broadband.BaseURL, cfg.Broadband.APIKey, logger)
	}

	return services.NewEnricher(geocoder, dataset, epcClient, broadbandClient, logger), nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("Metrics server stopped", zap.Error(err))
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
