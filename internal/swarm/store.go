// Package swarm persists DAGs of subtasks and provides the atomic
// claim/complete/fail/reset state machine shared by the executor and
// external workers.
package swarm

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/hive/internal/state"
	"github.com/ShayCichocki/hive/pkg/models"
)

// TaskNotFoundError indicates an operation referenced a non-existent
// task id.
type TaskNotFoundError struct {
	ID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.ID)
}

// Migrations is the swarm-task schema. The message bus shares this
// database and owns versions 2+.
var Migrations = []state.Migration{
	{Version: 1, SQL: migrationV1Tasks},
}

const migrationV1Tasks = `
CREATE TABLE IF NOT EXISTS swarm_tasks (
	id TEXT PRIMARY KEY,
	swarm_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	description TEXT NOT NULL,
	prompt TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	agent_id TEXT,
	model TEXT,
	strategy TEXT,
	mode TEXT NOT NULL DEFAULT 'inline',
	result TEXT,
	error TEXT,
	created_at TEXT NOT NULL,
	claimed_at TEXT,
	completed_at TEXT,
	metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_swarm_tasks_swarm_id ON swarm_tasks(swarm_id);
CREATE INDEX IF NOT EXISTS idx_swarm_tasks_status ON swarm_tasks(status);
CREATE INDEX IF NOT EXISTS idx_swarm_tasks_status_claimed ON swarm_tasks(status, claimed_at);
`

// TaskSpec describes one task at swarm-creation time.
type TaskSpec struct {
	Description string
	Prompt      string
	Strategy    models.Strategy
	Mode        models.TaskMode
	Metadata    map[string]any
}

// Store owns the swarm task table. Only workers that successfully claim
// a task may transition it.
type Store struct {
	db    *state.DB
	hooks *hookRegistry
}

// New creates a store over an opened database.
func New(db *state.DB) *Store {
	return &Store{db: db, hooks: newHookRegistry()}
}

// NewSwarmID generates a random hex swarm identifier.
func NewSwarmID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// CreateSwarm inserts all tasks inside a single transaction with
// seq = index and status pending, preserving insertion order. A swarm
// id is generated when empty.
func (s *Store) CreateSwarm(swarmID string, specs []TaskSpec) (string, []string, error) {
	if len(specs) == 0 {
		return "", nil, fmt.Errorf("create swarm: no tasks given")
	}
	if swarmID == "" {
		swarmID = NewSwarmID()
	}

	now := state.FormatTime(time.Now())
	taskIDs := make([]string, len(specs))

	err := s.db.Transaction(func(tx *sql.Tx) error {
		for i, spec := range specs {
			id := models.TaskID(swarmID, i)
			taskIDs[i] = id

			mode := spec.Mode
			if mode == "" {
				mode = models.ModeInline
			}

			meta, err := marshalMetadata(spec.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata for task %d: %w", i, err)
			}

			_, err = tx.Exec(`
				INSERT INTO swarm_tasks (id, swarm_id, seq, description, prompt,
					status, strategy, mode, created_at, metadata)
				VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?)
			`, id, swarmID, i, spec.Description, spec.Prompt,
				string(spec.Strategy), string(mode), now, meta)
			if err != nil {
				return fmt.Errorf("insert task %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	return swarmID, taskIDs, nil
}

// ClaimTask atomically claims the next eligible pending task for the
// agent. Without checkDeps the lowest-seq pending task is taken; with
// checkDeps only tasks whose depends_on entries are all done qualify.
// Returns (nil, nil) when nothing is claimable.
func (s *Store) ClaimTask(swarmID, agentID string, checkDeps bool) (*models.SwarmTask, error) {
	pending, err := s.tasksByStatus(swarmID, models.TaskStatusPending)
	if err != nil {
		return nil, err
	}

	var doneSeqs map[int]bool
	if checkDeps {
		done, err := s.tasksByStatus(swarmID, models.TaskStatusDone)
		if err != nil {
			return nil, err
		}
		doneSeqs = make(map[int]bool, len(done))
		for _, t := range done {
			doneSeqs[t.Seq] = true
		}
	}

	for _, task := range pending {
		if checkDeps && !depsSatisfied(task.DependsOn(), doneSeqs) {
			continue
		}

		// The conditional update on status is the one true
		// serialization point for task ownership.
		now := state.FormatTime(time.Now())
		res, err := s.db.Exec(`
			UPDATE swarm_tasks
			SET status = 'claimed', agent_id = ?, claimed_at = ?
			WHERE id = ? AND status = 'pending'
		`, agentID, now, task.ID)
		if err != nil {
			return nil, fmt.Errorf("claim task %s: %w", task.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim task %s: %w", task.ID, err)
		}
		if affected == 0 {
			// Lost the race; try the next candidate.
			continue
		}

		claimed, err := s.GetTask(task.ID)
		if err != nil {
			return nil, err
		}
		s.hooks.emit(TaskEvent{Type: EventClaim, Task: claimed})
		return claimed, nil
	}

	return nil, nil
}

// ClaimTaskByID atomically claims one specific pending task. The
// executor uses this so each level goroutine owns exactly the subtask
// it is about to run; swarm-level ClaimTask serves external workers.
func (s *Store) ClaimTaskByID(taskID, agentID string) (*models.SwarmTask, error) {
	now := state.FormatTime(time.Now())
	res, err := s.db.Exec(`
		UPDATE swarm_tasks
		SET status = 'claimed', agent_id = ?, claimed_at = ?
		WHERE id = ? AND status = 'pending'
	`, agentID, now, taskID)
	if err != nil {
		return nil, fmt.Errorf("claim task %s: %w", taskID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim task %s: %w", taskID, err)
	}
	if affected == 0 {
		return nil, nil
	}

	claimed, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	s.hooks.emit(TaskEvent{Type: EventClaim, Task: claimed})
	return claimed, nil
}

func depsSatisfied(deps []int, doneSeqs map[int]bool) bool {
	for _, d := range deps {
		if !doneSeqs[d] {
			return false
		}
	}
	return true
}

// MarkRunning moves a claimed task to running.
func (s *Store) MarkRunning(taskID string) error {
	res, err := s.db.Exec(`
		UPDATE swarm_tasks SET status = 'running'
		WHERE id = ? AND status = 'claimed'
	`, taskID)
	if err != nil {
		return fmt.Errorf("mark running %s: %w", taskID, err)
	}
	return s.requireTransition(res, taskID)
}

// CompleteTask moves a claimed or running task to done with its result.
func (s *Store) CompleteTask(taskID, result string) error {
	now := state.FormatTime(time.Now())
	res, err := s.db.Exec(`
		UPDATE swarm_tasks
		SET status = 'done', result = ?, completed_at = ?,
			claimed_at = COALESCE(claimed_at, ?)
		WHERE id = ? AND status IN ('claimed', 'running')
	`, result, now, now, taskID)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	if err := s.requireTransition(res, taskID); err != nil {
		return err
	}

	task, err := s.GetTask(taskID)
	if err == nil {
		s.hooks.emit(TaskEvent{Type: EventComplete, Task: task})
	}
	return nil
}

// FailTask moves a non-terminal task to failed with an error message.
func (s *Store) FailTask(taskID, errMsg string) error {
	now := state.FormatTime(time.Now())
	res, err := s.db.Exec(`
		UPDATE swarm_tasks
		SET status = 'failed', error = ?, completed_at = ?,
			claimed_at = COALESCE(claimed_at, ?)
		WHERE id = ? AND status IN ('pending', 'claimed', 'running')
	`, errMsg, now, now, taskID)
	if err != nil {
		return fmt.Errorf("fail task %s: %w", taskID, err)
	}
	if err := s.requireTransition(res, taskID); err != nil {
		return err
	}

	task, err := s.GetTask(taskID)
	if err == nil {
		s.hooks.emit(TaskEvent{Type: EventFail, Task: task})
	}
	return nil
}

// ResetTask forces a non-terminal task back to pending, clearing its
// owner. Terminal states never transition.
func (s *Store) ResetTask(taskID string) error {
	res, err := s.db.Exec(`
		UPDATE swarm_tasks
		SET status = 'pending', agent_id = NULL, claimed_at = NULL
		WHERE id = ? AND status NOT IN ('done', 'failed')
	`, taskID)
	if err != nil {
		return fmt.Errorf("reset task %s: %w", taskID, err)
	}
	if err := s.requireTransition(res, taskID); err != nil {
		return err
	}

	task, err := s.GetTask(taskID)
	if err == nil {
		s.hooks.emit(TaskEvent{Type: EventReset, Task: task})
	}
	return nil
}

// requireTransition distinguishes "no such task" from "invalid state".
func (s *Store) requireTransition(res sql.Result, taskID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", taskID, err)
	}
	if affected == 1 {
		return nil
	}
	if _, err := s.GetTask(taskID); err != nil {
		return err
	}
	return fmt.Errorf("task %s is not in a valid state for this transition", taskID)
}

// GetTask returns one task by id.
func (s *Store) GetTask(taskID string) (*models.SwarmTask, error) {
	row := s.db.QueryRow(selectTask+" WHERE id = ?", taskID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, &TaskNotFoundError{ID: taskID}
	}
	return task, err
}

// GetSwarmTasks returns every task in a swarm in seq order.
func (s *Store) GetSwarmTasks(swarmID string) ([]*models.SwarmTask, error) {
	rows, err := s.db.Query(selectTask+" WHERE swarm_id = ? ORDER BY seq", swarmID)
	if err != nil {
		return nil, fmt.Errorf("query swarm %s: %w", swarmID, err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// tasksByStatus returns a swarm's tasks with the given status, seq order.
func (s *Store) tasksByStatus(swarmID string, status models.TaskStatus) ([]*models.SwarmTask, error) {
	rows, err := s.db.Query(selectTask+" WHERE swarm_id = ? AND status = ? ORDER BY seq", swarmID, string(status))
	if err != nil {
		return nil, fmt.Errorf("query swarm %s by status: %w", swarmID, err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

const selectTask = `
	SELECT id, swarm_id, seq, description, COALESCE(prompt, ''), status,
		COALESCE(agent_id, ''), COALESCE(model, ''), COALESCE(strategy, ''),
		mode, COALESCE(result, ''), COALESCE(error, ''), created_at,
		claimed_at, completed_at, COALESCE(metadata, '')
	FROM swarm_tasks`

// rowScanner abstracts sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.SwarmTask, error) {
	var t models.SwarmTask
	var status, mode, strategy, createdAt, meta string
	var claimedAt, completedAt sql.NullString

	err := row.Scan(&t.ID, &t.SwarmID, &t.Seq, &t.Description, &t.Prompt,
		&status, &t.AgentID, &t.Model, &strategy, &mode, &t.Result, &t.Error,
		&createdAt, &claimedAt, &completedAt, &meta)
	if err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	t.Strategy = models.Strategy(strategy)
	t.Mode = models.TaskMode(mode)
	if ts, err := state.ParseTime(createdAt); err == nil {
		t.CreatedAt = ts
	}
	t.ClaimedAt = state.ParseNullableTime(claimedAt)
	t.CompletedAt = state.ParseNullableTime(completedAt)
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
			t.Metadata = nil
		}
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*models.SwarmTask, error) {
	var out []*models.SwarmTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func marshalMetadata(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
