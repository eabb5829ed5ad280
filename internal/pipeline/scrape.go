// Package pipeline implements the job types the runner executes.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scriptify-labs/worker-cli/internal/collector"
	"github.com/scriptify-labs/worker-cli/internal/model"
	"github.com/scriptify-labs/worker-cli/internal/runner"
)

// SessionFactory opens a browser session for one scrape run.
type SessionFactory func(ctx context.Context) (collector.Session, error)

// ScrapeInput is the run input for marketplace_scrape.
type ScrapeInput struct {
	Cities          []string `json:"cities"`
	Query           string   `json:"query"`
	ListingsPerCity int      `json:"listings_per_city"`
	LastNDays       int      `json:"last_n_days"`
}

// ScrapeConfig tunes the scrape pipeline beyond per-run input.
type ScrapeConfig struct {
	Collector collector.Config
	// SearchBase is the marketplace origin search URLs are built on.
	SearchBase string
}

// Scrape is the marketplace collection job.
type Scrape struct {
	sessions SessionFactory
	cfg      ScrapeConfig
}

// NewScrape creates the scrape pipeline.
func NewScrape(sessions SessionFactory, cfg ScrapeConfig) *Scrape {
	if cfg.SearchBase == "" {
		cfg.SearchBase = "https://www.facebook.com"
	}
	if cfg.Collector.LinkBase == "" {
		cfg.Collector.LinkBase = cfg.SearchBase
	}
	return &Scrape{sessions: sessions, cfg: cfg}
}

func (p *Scrape) Name() string { return "marketplace_scrape" }

// Run collects listings for every requested city. The result is
// checkpointed after every flush, so an aborted run still leaves its
// partial result on disk.
func (p *Scrape) Run(ctx context.Context, rc *runner.RunContext) (json.RawMessage, error) {
	var input ScrapeInput
	if err := json.Unmarshal(rc.Run.Input, &input); err != nil {
		return nil, runner.Fatal(eris.Wrap(err, "scrape: parse input"))
	}
	if len(input.Cities) == 0 {
		return nil, runner.Fatal(eris.New("scrape: no cities in input"))
	}

	cfg := p.cfg.Collector
	if input.ListingsPerCity > 0 {
		cfg.TargetPerUnit = input.ListingsPerCity
	}
	if input.LastNDays > 0 {
		cfg.LastNDays = input.LastNDays
	}

	if p.sessions == nil {
		return nil, runner.Fatal(eris.New("scrape: no session driver configured"))
	}
	session, err := p.sessions(ctx)
	if err != nil {
		return nil, runner.Fatal(eris.Wrap(err, "scrape: open session"))
	}
	defer session.Close() //nolint:errcheck

	units := make([]collector.Unit, len(input.Cities))
	for i, city := range input.Cities {
		units[i] = collector.Unit{Name: city, URL: p.searchURL(city, input)}
	}

	col := collector.New(session, cfg, func(ctx context.Context, result *model.ScrapeResult) error {
		return rc.Result.Write(result)
	})

	result, err := col.Collect(ctx, units)
	if err != nil {
		if errors.Is(err, collector.ErrSessionExpired) {
			return nil, runner.Fatal(err)
		}
		return nil, err
	}

	if err := rc.Result.Write(result); err != nil {
		return nil, err
	}
	rc.Log.Info("scrape finished",
		zap.Int("total", result.TotalCount),
		zap.Int("cities", len(result.Cities)))

	return json.Marshal(result)
}

func (p *Scrape) searchURL(city string, input ScrapeInput) string {
	u := fmt.Sprintf("%s/marketplace/%s/search", p.cfg.SearchBase, url.PathEscape(city))
	q := url.Values{}
	if input.Query != "" {
		q.Set("query", input.Query)
	}
	if input.LastNDays > 0 {
		q.Set("daysSinceListed", fmt.Sprintf("%d", input.LastNDays))
	}
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}
