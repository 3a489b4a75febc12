package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galzu/leadfinder/internal/audit"
	"github.com/galzu/leadfinder/internal/store"
)

var (
	auditMaxSites    int
	auditTimeoutSecs int
	auditSleepMillis int
	auditMaxBytes    int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit websites of leads not yet checked",
	Long:  "Fetches each unaudited lead's website once, scores its quality, and records a verdict. Leads without a website get the no_website verdict and are not re-fetched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		limit := auditMaxSites
		if limit <= 0 {
			limit = cfg.Audit.BatchLimit
		}

		acfg := auditConfig()
		if cmd.Flags().Changed("timeout") {
			acfg.Timeout = time.Duration(auditTimeoutSecs) * time.Second
		}
		if cmd.Flags().Changed("sleep") {
			acfg.Delay = time.Duration(auditSleepMillis) * time.Millisecond
		}
		if cmd.Flags().Changed("max-bytes") {
			acfg.MaxBytes = auditMaxBytes
		}

		audited, err := runAuditSweep(ctx, s, audit.New(acfg), limit)
		if err != nil {
			return err
		}
		cmd.Printf("audited %d lead websites\n", audited)
		return nil
	},
}

// runAuditSweep audits up to limit unaudited leads under run bookkeeping.
func runAuditSweep(ctx context.Context, s store.Store, a *audit.Auditor, limit int) (int, error) {
	run, err := s.CreateRun(ctx, "audit-websites", map[string]any{"limit": limit})
	if err != nil {
		return 0, err
	}

	audited, sweepErr := auditSweep(ctx, s, a, limit)

	status := store.RunStatusOK
	errMsg := ""
	if sweepErr != nil {
		status = store.RunStatusError
		errMsg = sweepErr.Error()
	}
	if err := s.FinishRun(ctx, run.ID, status, errMsg); err != nil {
		zap.L().Error("finish run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	return audited, sweepErr
}

func auditSweep(ctx context.Context, s store.Store, a *audit.Auditor, limit int) (int, error) {
	candidates, err := s.LeadsNeedingAudit(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		zap.L().Info("no leads need a website audit")
		return 0, nil
	}

	targets := make([]audit.Target, len(candidates))
	for i, c := range candidates {
		targets[i] = audit.Target{ID: c.ID, URL: c.Website}
	}

	saved := 0
	for _, outcome := range a.AuditAll(ctx, targets) {
		if err := s.SaveWebsiteAudit(ctx, outcome.ID, outcome.Result); err != nil {
			return saved, err
		}
		saved++
	}
	zap.L().Info("audit sweep complete", zap.Int("audited", saved))
	return saved, nil
}

func init() {
	auditCmd.Flags().IntVar(&auditMaxSites, "max-sites", 0, "max leads to audit (default from config)")
	auditCmd.Flags().IntVar(&auditTimeoutSecs, "timeout", 0, "per-site fetch timeout in seconds")
	auditCmd.Flags().IntVar(&auditSleepMillis, "sleep", 0, "delay between fetches in milliseconds")
	auditCmd.Flags().IntVar(&auditMaxBytes, "max-bytes", 0, "max HTML bytes inspected per site")
	rootCmd.AddCommand(auditCmd)
}
