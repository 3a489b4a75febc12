package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galzu/leadfinder/internal/lead"
	"github.com/galzu/leadfinder/internal/store"
	"github.com/galzu/leadfinder/pkg/places"
)

var (
	mapsNiche      string
	mapsLocation   string
	mapsMaxResults int
	mapsNoEnrich   bool
	mapsNoAudit    bool
)

var mapsCmd = &cobra.Command{
	Use:   "maps --niche <niche> --location <area>",
	Short: "Source leads from Google Maps text search",
	Long:  `Runs a Places text search for a niche in an area (e.g. --niche electrician --location brunswick), optionally mines each business website for a contact email, ingests the listings as leads, and audits the new websites.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		query := strings.TrimSpace(mapsNiche)
		if query == "" {
			return eris.New("--niche is required")
		}
		if loc := strings.TrimSpace(mapsLocation); loc != "" {
			query += " in " + loc
		}

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		client, err := initPlaces()
		if err != nil {
			return err
		}

		written, err := runMapsSearch(ctx, s, client, query)
		if err != nil {
			return err
		}
		cmd.Printf("ingested %d map listings for %q\n", written, query)
		return nil
	},
}

func runMapsSearch(ctx context.Context, s store.Store, client places.Client, query string) (int, error) {
	run, err := s.CreateRun(ctx, "maps-search", map[string]any{
		"query": query, "max_results": mapsMaxResults,
	})
	if err != nil {
		return 0, err
	}

	written, searchErr := mapsSearch(ctx, s, client, query)

	status := store.RunStatusOK
	errMsg := ""
	if searchErr != nil {
		status = store.RunStatusError
		errMsg = searchErr.Error()
	}
	if err := s.FinishRun(ctx, run.ID, status, errMsg); err != nil {
		zap.L().Error("finish run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	return written, searchErr
}

func mapsSearch(ctx context.Context, s store.Store, client places.Client, query string) (int, error) {
	found, err := client.TextSearch(ctx, query, mapsMaxResults)
	if err != nil {
		return 0, err
	}
	zap.L().Info("places search complete", zap.String("query", query), zap.Int("places", len(found)))

	emails := make([]string, len(found))
	if cfg.Enrich.Enabled && !mapsNoEnrich {
		urls := make([]string, len(found))
		for i, p := range found {
			urls[i] = p.WebsiteURI
		}
		emails = initEnricher().EmailsFromSites(ctx, urls)
	}

	rows := make([]lead.RawRow, len(found))
	for i, p := range found {
		rows[i] = lead.MapListingRow{
			Name:       p.DisplayName.Text,
			ProfileURL: p.GoogleMapsURI,
			Website:    p.WebsiteURI,
			Phone:      p.NationalPhoneNumber,
			Email:      emails[i],
			Location:   p.FormattedAddress,
		}.Raw()
	}

	written, err := initResolver(s).IngestBatch(ctx, lead.SourceGoogleMaps, rows)
	if err != nil {
		return written, err
	}

	// Fresh listings get their websites checked right away so the list
	// surface can rank on website quality without a separate sweep.
	if written > 0 && !mapsNoAudit {
		if _, err := auditSweep(ctx, s, initAuditor(), written); err != nil {
			zap.L().Warn("post-import audit sweep failed", zap.Error(err))
		}
	}
	return written, nil
}

func init() {
	mapsCmd.Flags().StringVar(&mapsNiche, "niche", "", "business niche to search for (required)")
	mapsCmd.Flags().StringVar(&mapsLocation, "location", "", "area to search in")
	mapsCmd.Flags().IntVar(&mapsMaxResults, "max-results", 40, "max places to pull (0 = one page)")
	mapsCmd.Flags().BoolVar(&mapsNoEnrich, "no-enrich", false, "skip website email enrichment")
	mapsCmd.Flags().BoolVar(&mapsNoAudit, "no-audit", false, "skip auditing just-imported websites")
	rootCmd.AddCommand(mapsCmd)
}
