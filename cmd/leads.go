package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/galzu/leadfinder/internal/lead"
	"github.com/galzu/leadfinder/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List, update, and summarize leads",
}

var (
	listQuery    string
	listStatus   string
	listSource   string
	listMinScore int
	listVerdict  string
	listLimit    int
	listJSON     bool
)

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads, best first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		filter := store.Filter{
			Query:          listQuery,
			Status:         listStatus,
			Source:         listSource,
			WebsiteVerdict: listVerdict,
			Limit:          listLimit,
		}
		if cmd.Flags().Changed("min-score") {
			filter.MinScore = &listMinScore
		}

		leads, err := s.ListLeads(ctx, filter)
		if err != nil {
			return err
		}

		if listJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(leads)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSCORE\tSTATUS\tHANDLE\tSOURCE\tWEBSITE\tVERDICT")
		for _, l := range leads {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				l.ID, fmtScore(l.Score), l.Status, l.Handle, l.Source, l.Website, l.WebsiteVerdict)
		}
		return w.Flush()
	},
}

var (
	updateStatus string
	updateNotes  string
	updateTags   string
)

var leadsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a lead's status, notes, or tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid lead id %q", args[0])
		}

		var patch lead.OperatorPatch
		if cmd.Flags().Changed("status") {
			patch.Status = &updateStatus
		}
		if cmd.Flags().Changed("notes") {
			patch.Notes = &updateNotes
		}
		if cmd.Flags().Changed("tags") {
			tags := splitTags(updateTags)
			patch.Tags = &tags
		}
		if patch.Empty() {
			return fmt.Errorf("nothing to update: pass --status, --notes, or --tags")
		}

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		l, err := initResolver(s).UpdateOperator(ctx, id, patch)
		if err != nil {
			return err
		}
		if l == nil {
			return fmt.Errorf("lead %d not found", id)
		}
		cmd.Printf("lead %d: status=%s tags=%v\n", l.ID, l.Status, l.Tags)
		return nil
	},
}

var statsSource string

var leadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Lead counts by workflow status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		counts, err := s.StatusCounts(ctx, statsSource)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		total := 0
		for status, n := range counts {
			fmt.Fprintf(w, "%s\t%d\n", status, n)
			total += n
		}
		fmt.Fprintf(w, "total\t%d\n", total)
		return w.Flush()
	},
}

func fmtScore(score *int) string {
	if score == nil {
		return "-"
	}
	return strconv.Itoa(*score)
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if tags == nil {
		tags = []string{}
	}
	return tags
}

func init() {
	leadsListCmd.Flags().StringVarP(&listQuery, "query", "q", "", "substring search over text fields")
	leadsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by workflow status")
	leadsListCmd.Flags().StringVar(&listSource, "source", "", "filter by source")
	leadsListCmd.Flags().IntVar(&listMinScore, "min-score", 0, "minimum quality score (unscored leads excluded)")
	leadsListCmd.Flags().StringVar(&listVerdict, "verdict", "", "filter by website verdict")
	leadsListCmd.Flags().IntVar(&listLimit, "limit", 50, "max leads to list")
	leadsListCmd.Flags().BoolVar(&listJSON, "json", false, "output JSON")

	leadsUpdateCmd.Flags().StringVar(&updateStatus, "status", "", "new workflow status")
	leadsUpdateCmd.Flags().StringVar(&updateNotes, "notes", "", "operator notes")
	leadsUpdateCmd.Flags().StringVar(&updateTags, "tags", "", "comma-separated tags (replaces existing)")

	leadsStatsCmd.Flags().StringVar(&statsSource, "source", "", "restrict counts to one source")

	leadsCmd.AddCommand(leadsListCmd, leadsUpdateCmd, leadsStatsCmd)
	rootCmd.AddCommand(leadsCmd)
}
