// Package bus is the persisted agent message bus: channel and direct
// messaging with per-agent read cursors, typed messages, and TTL
// expiry. It shares the swarm database.
package bus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ShayCichocki/hive/internal/state"
	"github.com/ShayCichocki/hive/pkg/models"
)

// Migrations is the message-bus schema; the swarm store owns version 1
// of the shared database.
var Migrations = []state.Migration{
	{Version: 2, SQL: migrationV2Messages},
}

const migrationV2Messages = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel TEXT NOT NULL,
	sender TEXT NOT NULL,
	recipient TEXT,
	type TEXT NOT NULL DEFAULT 'data',
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL,
	expires_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel);
CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);

CREATE TABLE IF NOT EXISTS read_cursors (
	agent_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	last_read_id INTEGER NOT NULL DEFAULT 0,
	last_read_at TEXT NOT NULL,
	PRIMARY KEY (agent_id, channel)
);
`

// Bus owns the messages table and the per-agent read cursors.
type Bus struct {
	db *state.DB
}

// New creates a bus over an opened database.
func New(db *state.DB) *Bus {
	return &Bus{db: db}
}

// PostOptions describe one message.
type PostOptions struct {
	// Channel is required.
	Channel string
	// Sender is required.
	Sender string
	// Recipient is empty for broadcast.
	Recipient string
	// Type defaults to data.
	Type models.MessageType
	// Payload is stored as-is when a string, JSON-serialized otherwise.
	Payload any
	// TTLMinutes sets expiry when non-nil. Zero means expired on
	// creation: the message is persisted but never visible.
	TTLMinutes *int
}

// PostMessage validates and persists one message, returning its id.
func (b *Bus) PostMessage(opts PostOptions) (int64, error) {
	if opts.Channel == "" {
		return 0, fmt.Errorf("post message: channel is required")
	}
	if opts.Sender == "" {
		return 0, fmt.Errorf("post message: sender is required")
	}

	msgType := opts.Type
	if msgType == "" {
		msgType = models.MessageData
	}
	if !msgType.Valid() {
		return 0, fmt.Errorf("post message: invalid type %q", msgType)
	}

	payload, err := serializePayload(opts.Payload)
	if err != nil {
		return 0, fmt.Errorf("post message: %w", err)
	}

	now := time.Now()
	var expiresAt any
	if opts.TTLMinutes != nil {
		expiresAt = state.FormatTime(now.Add(time.Duration(*opts.TTLMinutes) * time.Minute))
	}

	res, err := b.db.Exec(`
		INSERT INTO messages (channel, sender, recipient, type, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, opts.Channel, opts.Sender, nullable(opts.Recipient), string(msgType),
		payload, state.FormatTime(now), expiresAt)
	if err != nil {
		return 0, fmt.Errorf("post message: %w", err)
	}

	return res.LastInsertId()
}

// ReadOptions filter a channel read.
type ReadOptions struct {
	// AgentID enables cursor tracking: only messages after the agent's
	// last read on this channel are returned, and the cursor advances.
	AgentID string
	// Type restricts to one message type.
	Type models.MessageType
	// Since restricts to messages created strictly after this time.
	Since *time.Time
	// Limit caps the result; 50 by default.
	Limit int
}

// ReadMessages returns unexpired messages on a channel in insertion
// order. With an AgentID, only broadcast messages and those addressed
// to the agent appear, and the agent's cursor advances past the last
// returned message.
func (b *Bus) ReadMessages(channel string, opts ReadOptions) ([]models.Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	now := state.FormatTime(time.Now())
	query := `
		SELECT id, channel, sender, COALESCE(recipient, ''), type, payload, created_at, expires_at
		FROM messages
		WHERE channel = ? AND (expires_at IS NULL OR expires_at > ?)`
	args := []any{channel, now}

	if opts.AgentID != "" {
		cursor, err := b.cursor(opts.AgentID, channel)
		if err != nil {
			return nil, err
		}
		query += " AND (recipient IS NULL OR recipient = ?) AND id > ?"
		args = append(args, opts.AgentID, cursor)
	}
	if opts.Type != "" {
		query += " AND type = ?"
		args = append(args, string(opts.Type))
	}
	if opts.Since != nil {
		query += " AND created_at > ?"
		args = append(args, state.FormatTime(*opts.Since))
	}

	// id is the tie-break so same-timestamp messages read back in
	// insertion order.
	query += " ORDER BY created_at ASC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	if opts.AgentID != "" && len(messages) > 0 {
		last := messages[len(messages)-1].ID
		if err := b.advanceCursor(opts.AgentID, channel, last); err != nil {
			return nil, err
		}
	}

	return messages, nil
}

// DirectChannel returns the canonical channel name for a pair of
// agents, independent of direction.
func DirectChannel(first, second string) string {
	pair := []string{first, second}
	sort.Strings(pair)
	return "dm:" + strings.Join(pair, ":")
}

// SendDirect posts a message addressed to one recipient on the pair's
// direct channel.
func (b *Bus) SendDirect(sender, recipient string, payload any, opts PostOptions) (int64, error) {
	opts.Channel = DirectChannel(sender, recipient)
	opts.Sender = sender
	opts.Recipient = recipient
	opts.Payload = payload
	return b.PostMessage(opts)
}

// ReadDirect returns unread messages addressed to the agent. With
// fromAgent set, only that pair's channel is read; otherwise every
// channel with messages for the agent is drained, advancing each
// channel's cursor.
func (b *Bus) ReadDirect(agentID, fromAgent string, opts ReadOptions) ([]models.Message, error) {
	if fromAgent != "" {
		opts.AgentID = agentID
		return b.ReadMessages(DirectChannel(agentID, fromAgent), opts)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	now := state.FormatTime(time.Now())
	query := `
		SELECT m.id, m.channel, m.sender, COALESCE(m.recipient, ''), m.type, m.payload, m.created_at, m.expires_at
		FROM messages m
		LEFT JOIN read_cursors rc ON rc.agent_id = ? AND rc.channel = m.channel
		WHERE m.recipient = ? AND (m.expires_at IS NULL OR m.expires_at > ?)
			AND m.id > COALESCE(rc.last_read_id, 0)`
	args := []any{agentID, agentID, now}

	if opts.Type != "" {
		query += " AND m.type = ?"
		args = append(args, string(opts.Type))
	}
	if opts.Since != nil {
		query += " AND m.created_at > ?"
		args = append(args, state.FormatTime(*opts.Since))
	}

	query += " ORDER BY m.created_at ASC, m.id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("read direct: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Advance one cursor per channel that produced messages.
	lastPerChannel := map[string]int64{}
	for _, m := range messages {
		if m.ID > lastPerChannel[m.Channel] {
			lastPerChannel[m.Channel] = m.ID
		}
	}
	for channel, last := range lastPerChannel {
		if err := b.advanceCursor(agentID, channel, last); err != nil {
			return nil, err
		}
	}

	return messages, nil
}

// signalTTLMinutes and contextTTLMinutes bound the helper message
// lifetimes.
const (
	signalTTLMinutes  = 60
	contextTTLMinutes = 120
)

// BroadcastSignal posts a signal message with a one-hour TTL.
func (b *Bus) BroadcastSignal(channel, sender, signal string, data any) (int64, error) {
	ttl := signalTTLMinutes
	return b.PostMessage(PostOptions{
		Channel:    channel,
		Sender:     sender,
		Type:       models.MessageSignal,
		Payload:    map[string]any{"signal": signal, "data": data},
		TTLMinutes: &ttl,
	})
}

// ShareContext posts a context key/value with a two-hour TTL.
func (b *Bus) ShareContext(channel, sender, key string, value any) (int64, error) {
	ttl := contextTTLMinutes
	return b.PostMessage(PostOptions{
		Channel:    channel,
		Sender:     sender,
		Type:       models.MessageContext,
		Payload:    map[string]any{"key": key, "value": value},
		TTLMinutes: &ttl,
	})
}

// GetContext returns the newest unexpired context value for a key on a
// channel, or nil when none exists. The key match happens in SQL, not
// by scanning history.
func (b *Bus) GetContext(channel, key string) (any, error) {
	now := state.FormatTime(time.Now())
	row := b.db.QueryRow(`
		SELECT payload FROM messages
		WHERE channel = ? AND type = 'context'
			AND (expires_at IS NULL OR expires_at > ?)
			AND json_extract(payload, '$.key') = ?
		ORDER BY id DESC LIMIT 1
	`, channel, now, key)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get context: %w", err)
	}

	var parsed struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("parse context payload: %w", err)
	}
	return parsed.Value, nil
}

// CleanExpired deletes every expired message and returns the count.
func (b *Bus) CleanExpired() (int64, error) {
	res, err := b.db.Exec(`DELETE FROM messages WHERE expires_at IS NOT NULL AND expires_at < ?`,
		state.FormatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("clean expired: %w", err)
	}
	return res.RowsAffected()
}

// cursor returns the agent's last-read id on a channel (0 when unset).
func (b *Bus) cursor(agentID, channel string) (int64, error) {
	row := b.db.QueryRow(`
		SELECT last_read_id FROM read_cursors WHERE agent_id = ? AND channel = ?
	`, agentID, channel)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	return id, nil
}

// advanceCursor upserts the agent's read position on a channel.
func (b *Bus) advanceCursor(agentID, channel string, lastID int64) error {
	_, err := b.db.Exec(`
		INSERT INTO read_cursors (agent_id, channel, last_read_id, last_read_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id, channel) DO UPDATE SET
			last_read_id = excluded.last_read_id,
			last_read_at = excluded.last_read_at
	`, agentID, channel, lastID, state.FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

// serializePayload stores strings as-is and everything else as JSON.
func serializePayload(payload any) (string, error) {
	switch v := payload.(type) {
	case nil:
		return "", fmt.Errorf("payload is required")
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("serialize payload: %w", err)
		}
		return string(data), nil
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		var msgType, createdAt string
		var expiresAt sql.NullString
		if err := rows.Scan(&m.ID, &m.Channel, &m.Sender, &m.Recipient,
			&msgType, &m.Payload, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = models.MessageType(msgType)
		if ts, err := state.ParseTime(createdAt); err == nil {
			m.CreatedAt = ts
		}
		m.ExpiresAt = state.ParseNullableTime(expiresAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
