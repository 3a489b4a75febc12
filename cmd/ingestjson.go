package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/galzu/leadfinder/internal/lead"
)

// ingestPayload is the wire shape browser-side collectors post: a source
// tag plus the rows it gathered.
type ingestPayload struct {
	Source string        `json:"source"`
	Leads  []lead.RawRow `json:"leads"`
}

var ingestJSONCmd = &cobra.Command{
	Use:   "ingest-json [file]",
	Short: "Ingest a JSON lead payload from a file or stdin",
	Long:  `Reads a {"source": ..., "leads": [...]} payload (as emitted by the browser collector) from the given file, or from stdin when no file is given, and upserts the rows.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var r io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return eris.Wrap(err, "ingest-json: open payload")
			}
			defer f.Close() //nolint:errcheck
			r = f
		}

		var payload ingestPayload
		if err := json.NewDecoder(r).Decode(&payload); err != nil {
			return eris.Wrap(err, "ingest-json: decode payload")
		}
		if len(payload.Leads) == 0 {
			return eris.New("ingest-json: payload has no leads")
		}
		if payload.Source == "" {
			payload.Source = lead.SourceManual
		}

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		written, err := initResolver(s).IngestBatch(ctx, payload.Source, payload.Leads)
		if err != nil {
			return err
		}
		cmd.Printf("ingested %d of %d rows (source %s)\n", written, len(payload.Leads), payload.Source)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestJSONCmd)
}
