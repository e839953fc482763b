package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deepatlas/charging-cli/internal/connector"
	"github.com/deepatlas/charging-cli/internal/fetcher"
	"github.com/deepatlas/charging-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store)
}

func newFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:   cfg.Fetch.Retries,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})
}

func allConnectors(f fetcher.Fetcher) []connector.Connector {
	return []connector.Connector{
		connector.NewBNA(cfg.Sources.BNA, f),
		connector.NewOCM(cfg.Sources.OCM, f),
		connector.NewOSM(cfg.Sources.OSM, f),
	}
}

// connectorsFor resolves the --source flag: empty selects all providers.
func connectorsFor(source string, f fetcher.Fetcher) ([]connector.Connector, error) {
	all := allConnectors(f)
	if source == "" {
		return all, nil
	}
	for _, c := range all {
		if strings.EqualFold(string(c.Source()), source) {
			return []connector.Connector{c}, nil
		}
	}
	return nil, eris.Errorf("unknown source %q (expected BNA, OCM, or OSM)", source)
}
