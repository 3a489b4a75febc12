package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galzu/leadfinder/internal/lead"
	"github.com/galzu/leadfinder/internal/store"
	"github.com/galzu/leadfinder/pkg/graph"
)

var (
	commentersIGUserID     string
	commentersMediaLimit   int
	commentersCommentLimit int
	commentersMaxUsers     int
	commentersNoEnrich     bool
)

var commentersCmd = &cobra.Command{
	Use:   "commenters",
	Short: "Source leads from commenters on your recent posts",
	Long:  "Pulls comments on the configured account's recent media via the Graph API, enriches commenter profiles through business discovery, and ingests them as leads tagged ig_commenter.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if commentersIGUserID == "" {
			commentersIGUserID = cfg.Graph.IGUserID
		}
		if commentersIGUserID == "" {
			cmd.PrintErrln("an IG user id is required (--ig-user-id or LEADFINDER_GRAPH_IG_USER_ID)")
			return cmd.Help()
		}

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		client, err := initGraph()
		if err != nil {
			return err
		}

		written, err := runCommenterPull(ctx, s, client)
		if err != nil {
			return err
		}
		cmd.Printf("ingested %d commenters\n", written)
		return nil
	},
}

func runCommenterPull(ctx context.Context, s store.Store, client graph.Client) (int, error) {
	run, err := s.CreateRun(ctx, "ig-commenters", map[string]any{
		"ig_user_id": commentersIGUserID, "media_limit": commentersMediaLimit,
		"comments_limit": commentersCommentLimit, "max_users": commentersMaxUsers,
	})
	if err != nil {
		return 0, err
	}

	written, pullErr := commenterPull(ctx, s, client)

	status := store.RunStatusOK
	errMsg := ""
	if pullErr != nil {
		status = store.RunStatusError
		errMsg = pullErr.Error()
	}
	if err := s.FinishRun(ctx, run.ID, status, errMsg); err != nil {
		zap.L().Error("finish run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	return written, pullErr
}

func commenterPull(ctx context.Context, s store.Store, client graph.Client) (int, error) {
	log := zap.L().With(zap.String("component", "commenters"))

	media, err := client.RecentMedia(ctx, commentersIGUserID, commentersMediaLimit)
	if err != nil {
		return 0, err
	}
	log.Info("fetched recent media", zap.Int("posts", len(media)))

	// One row per unique commenter; the latest comment wins as snippet.
	seen := make(map[string]bool)
	var rows []lead.RawRow
	for _, m := range media {
		if commentersMaxUsers > 0 && len(rows) >= commentersMaxUsers {
			break
		}
		comments, err := client.Comments(ctx, m.ID, commentersCommentLimit)
		if err != nil {
			// A deleted or restricted post should not sink the whole pull.
			log.Warn("skipping media", zap.String("media_id", m.ID), zap.Error(err))
			continue
		}
		for _, c := range comments {
			if c.Username == "" || seen[c.Username] {
				continue
			}
			if commentersMaxUsers > 0 && len(rows) >= commentersMaxUsers {
				break
			}
			seen[c.Username] = true

			row := lead.SocialCommentRow{
				Username: c.Username,
				Comment:  c.Text,
			}
			if !commentersNoEnrich {
				if p, err := client.BusinessDiscovery(ctx, commentersIGUserID, c.Username); err == nil {
					row.Name = p.Name
					row.Bio = p.Biography
					row.Website = p.Website
					if p.FollowersCount > 0 {
						row.Followers = strconv.Itoa(p.FollowersCount)
					}
				} else {
					// Non-business accounts are not discoverable; keep the bare comment.
					log.Debug("business discovery failed", zap.String("username", c.Username), zap.Error(err))
				}
			}
			rows = append(rows, row.Raw())
		}
	}

	return initResolver(s).IngestBatch(ctx, lead.SourceInstagram, rows)
}

func init() {
	commentersCmd.Flags().StringVar(&commentersIGUserID, "ig-user-id", "", "IG business account id (default from config)")
	commentersCmd.Flags().IntVar(&commentersMediaLimit, "media-limit", 10, "recent posts to scan")
	commentersCmd.Flags().IntVar(&commentersCommentLimit, "comments-limit", 100, "comments to pull per post")
	commentersCmd.Flags().IntVar(&commentersMaxUsers, "max-users", 0, "cap on distinct commenters ingested (0 = no cap)")
	commentersCmd.Flags().BoolVar(&commentersNoEnrich, "no-enrich", false, "skip business discovery profile enrichment")
	rootCmd.AddCommand(commentersCmd)
}
