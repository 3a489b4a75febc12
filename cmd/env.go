package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/galzu/leadfinder/internal/audit"
	"github.com/galzu/leadfinder/internal/enrich"
	"github.com/galzu/leadfinder/internal/ingest"
	"github.com/galzu/leadfinder/internal/scoring"
	"github.com/galzu/leadfinder/internal/store"
	"github.com/galzu/leadfinder/pkg/graph"
	"github.com/galzu/leadfinder/pkg/places"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "leads.db"
		}
		s, err = store.NewSQLite(path)
	case "postgres":
		s, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func initResolver(s store.Store) *ingest.Resolver {
	return ingest.NewResolver(s, scoring.Score)
}

func auditConfig() audit.Config {
	acfg := audit.DefaultConfig()
	if cfg.Audit.TimeoutSecs > 0 {
		acfg.Timeout = time.Duration(cfg.Audit.TimeoutSecs) * time.Second
	}
	if cfg.Audit.MaxBytes > 0 {
		acfg.MaxBytes = cfg.Audit.MaxBytes
	}
	if cfg.Audit.DelayMillis > 0 {
		acfg.Delay = time.Duration(cfg.Audit.DelayMillis) * time.Millisecond
	}
	return acfg
}

func initAuditor() *audit.Auditor {
	return audit.New(auditConfig())
}

func initGraph() (graph.Client, error) {
	if cfg.Graph.AccessToken == "" {
		return nil, eris.New("graph access token is required (LEADFINDER_GRAPH_ACCESS_TOKEN)")
	}
	opts := []graph.Option{}
	if cfg.Graph.BaseURL != "" {
		opts = append(opts, graph.WithBaseURL(cfg.Graph.BaseURL))
	}
	return graph.NewClient(cfg.Graph.AccessToken, opts...), nil
}

func initPlaces() (places.Client, error) {
	if cfg.Places.Key == "" {
		return nil, eris.New("places API key is required (LEADFINDER_PLACES_KEY)")
	}
	opts := []places.Option{}
	if cfg.Places.BaseURL != "" {
		opts = append(opts, places.WithBaseURL(cfg.Places.BaseURL))
	}
	return places.NewClient(cfg.Places.Key, opts...), nil
}

func initEnricher() *enrich.Fetcher {
	timeout := time.Duration(cfg.Enrich.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return enrich.NewFetcher(timeout, cfg.Enrich.Workers)
}
