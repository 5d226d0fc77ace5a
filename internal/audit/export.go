package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

var csvHeader = []string{"id", "created_at", "user_id", "action", "resource", "ip_address", "user_agent", "session_id", "details"}

// WriteCSV renders entries as CSV with details encoded as a JSON column.
func WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return nil, fmt.Errorf("audit: encode details for %s: %w", e.ID, err)
		}
		record := []string{
			e.ID,
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.UserID,
			string(e.Action),
			e.Resource,
			e.IPAddress,
			e.UserAgent,
			e.SessionID,
			string(details),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
