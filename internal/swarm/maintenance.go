package swarm

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/hive/internal/state"
	"github.com/ShayCichocki/hive/pkg/models"
)

// GetSwarmStatus returns per-status task counts for one swarm.
func (s *Store) GetSwarmStatus(swarmID string) (models.SwarmStatus, error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(*) FROM swarm_tasks
		WHERE swarm_id = ? GROUP BY status
	`, swarmID)
	if err != nil {
		return models.SwarmStatus{}, fmt.Errorf("query swarm status: %w", err)
	}
	defer rows.Close()

	var status models.SwarmStatus
	for rows.Next() {
		var st string
		var count int
		if err := rows.Scan(&st, &count); err != nil {
			return models.SwarmStatus{}, fmt.Errorf("scan swarm status: %w", err)
		}
		status.Total += count
		switch models.TaskStatus(st) {
		case models.TaskStatusPending:
			status.Pending = count
		case models.TaskStatusClaimed:
			status.Claimed = count
		case models.TaskStatusRunning:
			status.Running = count
		case models.TaskStatusDone:
			status.Done = count
		case models.TaskStatusFailed:
			status.Failed = count
		}
	}
	return status, rows.Err()
}

// IsSwarmComplete reports whether every task is terminal and at least
// one task exists.
func (s *Store) IsSwarmComplete(swarmID string) (bool, error) {
	status, err := s.GetSwarmStatus(swarmID)
	if err != nil {
		return false, err
	}
	return status.Complete(), nil
}

// GetSwarmResults returns each task's result in seq order.
func (s *Store) GetSwarmResults(swarmID string) ([]*models.SwarmTask, error) {
	return s.GetSwarmTasks(swarmID)
}

// GetStaleTasks returns claimed or running tasks whose claim is older
// than the cutoff. An external scheduler resets these to recover
// workers that disappeared.
func (s *Store) GetStaleTasks(staleAfter time.Duration) ([]*models.SwarmTask, error) {
	cutoff := state.FormatTime(time.Now().Add(-staleAfter))
	rows, err := s.db.Query(selectTask+`
		WHERE status IN ('claimed', 'running') AND claimed_at < ?
		ORDER BY claimed_at
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// CleanCompletedSwarms deletes rows of swarms where every task is
// terminal and the newest completion is older than the retention
// cutoff. Returns the number of deleted task rows.
func (s *Store) CleanCompletedSwarms(retention time.Duration) (int64, error) {
	cutoff := state.FormatTime(time.Now().Add(-retention))
	res, err := s.db.Exec(`
		DELETE FROM swarm_tasks WHERE swarm_id IN (
			SELECT swarm_id FROM swarm_tasks
			GROUP BY swarm_id
			HAVING SUM(CASE WHEN status NOT IN ('done', 'failed') THEN 1 ELSE 0 END) = 0
				AND MAX(completed_at) < ?
		)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clean completed swarms: %w", err)
	}
	return res.RowsAffected()
}
