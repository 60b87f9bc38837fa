// Package cli provides output helpers for the helpdesk command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/helpdesk/internal/models"
	"github.com/hyperjump/helpdesk/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteQueryResults writes retrieval results to w in the given format.
func WriteQueryResults(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s#%d\t%s\n", r.Rank, r.Score, shortID(r.DocID), r.ChunkIndex, utils.TruncateWords(oneLine(r.Text), 12))
		}
		return nil
	default:
		writeQueryResultsText(w, response)
		return nil
	}
}

func writeQueryResultsText(w io.Writer, response *models.QueryResponse) {
	fmt.Fprintf(w, "\nFound %d results for tenant %s in %dms\n\n", response.Total, response.TenantID, response.QueryTime)
	for _, r := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", r.Rank, r.Score)
		fmt.Fprintf(w, "Document: %s (chunk %d)\n", r.DocID, r.ChunkIndex)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Text, 200))
	}
}

// WriteRunSummary writes an ingestion run summary. Text output ends with the
// "Ingested N vectors in Xs" line operators grep for.
func WriteRunSummary(w io.Writer, summary *models.RunSummary, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, summary)
	case OutputCompact:
		fmt.Fprintf(w, "%s\tdone=%d\tskipped=%d\tfailed=%d\tpoints=%d\t%.2fs\n",
			summary.RunID, summary.Done, summary.Skipped, summary.Failed, summary.Points, summary.Duration.Seconds())
		return nil
	default:
		for _, o := range summary.Outcomes {
			line := fmt.Sprintf("%-8s %s", o.State, o.Path)
			if o.State == models.StateDone {
				line += fmt.Sprintf(" (%d chunks)", o.Chunks)
			}
			if o.Error != "" {
				line += ": " + o.Error
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintf(w, "\n%d documents: %d done, %d skipped, %d failed (%.1f docs/s, %.1f vectors/s)\n",
			summary.Documents, summary.Done, summary.Skipped, summary.Failed, summary.DocsPerSec, summary.VectorsPerSec)
		if summary.Aborted {
			fmt.Fprintf(w, "Run aborted: %s\n", summary.Error)
		}
		fmt.Fprintf(w, "Ingested %d vectors in %.2fs\n", summary.Points, summary.Duration.Seconds())
		return nil
	}
}

// WriteStatus writes the knowledge base status.
func WriteStatus(w io.Writer, status *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "collection:         %s (%s)\n", status.Collection, status.IndexType)
	fmt.Fprintf(w, "points:             %d   # vectors in the collection\n", status.Points)
	if status.IndexError != "" {
		fmt.Fprintf(w, "index_error:        %s\n", status.IndexError)
	}
	fmt.Fprintf(w, "model:              %s (%d dims)\n", status.Model, status.Dimensions)
	fmt.Fprintf(w, "tenants:            %d\n", status.Tenants)
	fmt.Fprintf(w, "ingestion_runs:     %d\n", status.Runs)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + snapshots on disk\n", *status.DiskUsageBytes)
	}
	if c := status.Config; c != nil && format == OutputText {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "chunk_size:         %d\n", c.ChunkSize)
		fmt.Fprintf(w, "chunk_overlap:      %d\n", c.ChunkOverlap)
		fmt.Fprintf(w, "workers:            %d\n", c.Workers)
		fmt.Fprintf(w, "distance:           %s\n", c.Distance)
		if c.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
		}
		if c.VectorSnapshotPath != "" {
			fmt.Fprintf(w, "snapshot_path:      %s\n", c.VectorSnapshotPath)
		}
	}
	if len(status.RecentRuns) > 0 && format == OutputText {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# recent runs")
		for _, r := range status.RecentRuns {
			state := "ok"
			if r.Aborted {
				state = "aborted"
			}
			fmt.Fprintf(w, "%s  %s  %d docs, %d points, %.2fs, %s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"), shortID(r.RunID), r.Documents, r.Points, r.Duration.Seconds(), state)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
