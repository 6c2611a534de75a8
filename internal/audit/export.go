package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// Exporter renders audit timeline rows as CSV.
type Exporter struct{}

// NewExporter constructs a CSV exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// WriteCSV encodes the rows with a header line. Before/after snapshots are
// emitted as raw JSON text.
func (e *Exporter) WriteCSV(rows []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"occurred_at", "entity", "entity_id", "action", "actor_id", "before", "after"}); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.Entity,
			row.EntityID,
			row.Action,
			strconv.FormatInt(row.ActorID, 10),
			snapshotText(row.Before),
			snapshotText(row.After),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func snapshotText(raw []byte) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return string(raw)
}
