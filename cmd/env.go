package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scriptify-labs/worker-cli/internal/collector"
	"github.com/scriptify-labs/worker-cli/internal/enrich"
	"github.com/scriptify-labs/worker-cli/internal/pipeline"
	"github.com/scriptify-labs/worker-cli/internal/registry"
	"github.com/scriptify-labs/worker-cli/internal/resilience"
	"github.com/scriptify-labs/worker-cli/internal/runner"
	"github.com/scriptify-labs/worker-cli/internal/store"
	"github.com/scriptify-labs/worker-cli/pkg/keepa"
	"github.com/scriptify-labs/worker-cli/pkg/spapi"
	"github.com/scriptify-labs/worker-cli/pkg/vision"
)

// env bundles everything a command needs to execute runs.
type env struct {
	Store    store.Store
	Runner   *runner.Runner
	Registry *registry.Registry
}

func (e *env) Close() {
	e.Store.Close()
}

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}

// initEnv opens the store and builds the runner with both pipelines
// registered.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		st.Close()
		return nil, err
	}

	r := runner.New(st, runner.Config{
		LogDir:    cfg.Runs.LogDir,
		ResultDir: cfg.Runs.ResultDir,
	})
	r.Register(pipeline.NewScrape(sessionFactory(), scrapeConfig()))
	r.Register(pipeline.NewAnalyze(buildEnricher()))

	return &env{Store: st, Runner: r, Registry: reg}, nil
}

func retryConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
		cfg.Retry.Multiplier,
		cfg.Retry.JitterFraction,
		cfg.Retry.HintSafetyMarginS,
	)
}

func scrapeConfig() pipeline.ScrapeConfig {
	return pipeline.ScrapeConfig{
		Collector: collector.Config{
			TargetPerUnit:  cfg.Collector.ListingsPerCity,
			MaxStallRounds: cfg.Collector.MaxStallRounds,
			SettleWait:     time.Duration(cfg.Collector.SettleWaitSecs) * time.Second,
			PageLoadWait:   time.Duration(cfg.Collector.PageLoadWaitSecs) * time.Second,
			LastNDays:      cfg.Collector.LastNDays,
		},
	}
}

// sessionFactory picks the scrape session driver. Only the capture replay
// driver ships here; without a capture file the scrape job fails fast.
func sessionFactory() pipeline.SessionFactory {
	if cfg.Collector.ReplayFile == "" {
		return nil
	}
	path := cfg.Collector.ReplayFile
	return func(ctx context.Context) (collector.Session, error) {
		return collector.NewReplaySession(path)
	}
}

func buildEnricher() *enrich.Enricher {
	classifier, err := vision.New(vision.Config{
		Strategy:     cfg.Vision.Strategy,
		AnthropicKey: cfg.Vision.AnthropicKey,
		ClaudeModel:  cfg.Vision.ClaudeModel,
		OpenAIKey:    cfg.Vision.OpenAIKey,
		OpenAIModel:  cfg.Vision.OpenAIModel,
		OpenAIBase:   cfg.Vision.OpenAIBase,
		MaxImages:    cfg.Vision.MaxImages,
	})
	if err != nil {
		zap.L().Warn("vision classifier unavailable, items run unclassified", zap.Error(err))
		classifier = nil
	}

	kp := keepa.NewClient(cfg.Keepa.Key,
		keepa.WithBaseURL(cfg.Keepa.BaseURL),
		keepa.WithDomain(cfg.Keepa.Domain),
	)
	sp := spapi.NewClient(cfg.SPAPI.AccessToken,
		spapi.WithBaseURL(cfg.SPAPI.BaseURL),
		spapi.WithMarketplaceID(cfg.SPAPI.MarketplaceID),
		spapi.WithCondition(cfg.SPAPI.Condition),
		spapi.WithCatalogPace(time.Duration(cfg.SPAPI.CatalogPaceMs)*time.Millisecond),
		spapi.WithOffersPace(time.Duration(cfg.SPAPI.OffersPaceMs)*time.Millisecond),
	)

	keepaPace := resilience.NewPacer(time.Duration(cfg.Keepa.PaceMs) * time.Millisecond)

	return enrich.New(classifier, kp, sp, keepaPace, retryConfig(), enrich.Config{
		MarketplaceID: cfg.SPAPI.MarketplaceID,
		Condition:     cfg.SPAPI.Condition,
		TopNProducts:  cfg.Keepa.TopNProducts,
	})
}

// loadResult returns a run's result payload, preferring the live
// checkpoint file over the stored copy.
func loadResult(ctx context.Context, st store.Store, runID string) ([]byte, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.ResultPath != "" {
		if data, err := runner.ReadResult(run.ResultPath); err == nil {
			return data, nil
		}
	}
	if len(run.Result) > 0 {
		return run.Result, nil
	}
	return nil, eris.Errorf("run %s has no result", runID)
}
