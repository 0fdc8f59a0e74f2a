package calllog

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/hive/internal/state"
	"github.com/ShayCichocki/hive/pkg/models"
)

// ModelStats aggregates recent call history per model. Only models with
// at least minSamples calls inside the window are returned.
func (s *Store) ModelStats(window time.Duration, minSamples int) ([]models.ModelStats, error) {
	cutoff := state.FormatTime(time.Now().Add(-window))

	rows, err := s.db.Query(`
		SELECT model,
			COUNT(*) AS call_count,
			AVG(duration_ms) AS avg_latency_ms,
			AVG(ok) AS success_rate,
			AVG(cost_estimate) AS avg_cost
		FROM calls
		WHERE timestamp > ?
		GROUP BY model
		HAVING COUNT(*) >= ?
		ORDER BY model
	`, cutoff, minSamples)
	if err != nil {
		return nil, fmt.Errorf("query model stats: %w", err)
	}
	defer rows.Close()

	var out []models.ModelStats
	for rows.Next() {
		var st models.ModelStats
		if err := rows.Scan(&st.Model, &st.CallCount, &st.AvgLatencyMs, &st.SuccessRate, &st.AvgCost); err != nil {
			return nil, fmt.Errorf("scan model stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// RecentCalls returns up to limit most recent call records, newest first.
// The router only consumes ModelStats.
func (s *Store) RecentCalls(limit int) ([]models.CallRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, provider, model, caller, prompt, response,
			input_tokens, output_tokens, cost_estimate, duration_ms, ok,
			COALESCE(error, '')
		FROM calls
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	defer rows.Close()

	var out []models.CallRecord
	for rows.Next() {
		var rec models.CallRecord
		var ts, provider string
		var okInt int
		if err := rows.Scan(&rec.ID, &ts, &provider, &rec.Model, &rec.Caller,
			&rec.Prompt, &rec.Response, &rec.InputTokens, &rec.OutputTokens,
			&rec.CostEstimate, &rec.DurationMs, &okInt, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		rec.Provider = models.Provider(provider)
		rec.OK = okInt == 1
		if t, err := state.ParseTime(ts); err == nil {
			rec.Timestamp = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
