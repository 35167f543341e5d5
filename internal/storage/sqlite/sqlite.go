package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meszmate/roster-core/internal/domain"
)

type DB struct {
	db *sql.DB
}

// New opens (and creates if needed) the database at dbPath.
func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; readers queue behind it.
	db.SetMaxOpenConns(1)

	store := &DB{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			account TEXT NOT NULL,
			conversation TEXT NOT NULL,
			id TEXT NOT NULL,
			is_placeholder INTEGER NOT NULL DEFAULT 0,
			stanza_id TEXT,
			kind TEXT NOT NULL,
			target_kind TEXT,
			target_id TEXT,
			sender_user TEXT NOT NULL DEFAULT '',
			sender_occupant TEXT NOT NULL DEFAULT '',
			recipient TEXT,
			timestamp INTEGER NOT NULL,
			payload TEXT NOT NULL,
			UNIQUE (account, conversation, id, kind, sender_user, sender_occupant)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(account, conversation, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_stanza_id ON messages(account, conversation, stanza_id)`,

		`CREATE TABLE IF NOT EXISTS mam_sync (
			account TEXT NOT NULL,
			conversation TEXT NOT NULL,
			last_stanza_id TEXT,
			last_timestamp INTEGER,
			last_synced INTEGER NOT NULL,
			PRIMARY KEY (account, conversation)
		)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// SaveMessages appends msgs to the log of conversation. Records already in
// the log are skipped, so redelivered stanzas are harmless.
func (d *DB) SaveMessages(ctx context.Context, account domain.UserID, conversation domain.RoomID, msgs []domain.MessageLike) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO messages (
			account, conversation, id, is_placeholder, stanza_id, kind, target_kind, target_id,
			sender_user, sender_occupant, recipient, timestamp, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		payload, err := json.Marshal(msg.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of %s: %w", msg.ID, err)
		}

		var targetKind, targetID sql.NullString
		if msg.Target != nil {
			targetKind = sql.NullString{String: string(msg.Target.Kind), Valid: true}
			targetID = sql.NullString{String: msg.Target.ID, Valid: true}
		}

		_, err = stmt.ExecContext(ctx,
			string(account), string(conversation), string(msg.ID), msg.ID.IsPlaceholder(),
			nullString(string(msg.StanzaID)), string(msg.Payload.Kind()), targetKind, targetID,
			string(msg.From.User), string(msg.From.Occupant), nullString(msg.To),
			msg.Timestamp.UnixMilli(), string(payload),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
		}
	}

	return tx.Commit()
}

// LoadMessages returns the log of conversation in timestamp order.
func (d *DB) LoadMessages(ctx context.Context, account domain.UserID, conversation domain.RoomID) ([]domain.MessageLike, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, stanza_id, kind, target_kind, target_id, sender_user, sender_occupant, recipient, timestamp, payload
		FROM messages
		WHERE account = ? AND conversation = ?
		ORDER BY timestamp, rowid
	`, string(account), string(conversation))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.MessageLike
	for rows.Next() {
		var (
			msg                   domain.MessageLike
			id, kind, payload     string
			senderUser, senderOcc string
			stanzaID, recipient   sql.NullString
			targetKind, targetID  sql.NullString
			ts                    int64
		)
		if err := rows.Scan(&id, &stanzaID, &kind, &targetKind, &targetID, &senderUser, &senderOcc, &recipient, &ts, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.ID = domain.MessageLikeID(id)
		msg.StanzaID = domain.StanzaID(stanzaID.String)
		msg.From = domain.ParticipantID{User: domain.UserID(senderUser), Occupant: domain.OccupantID(senderOcc)}
		msg.To = recipient.String
		msg.Timestamp = time.UnixMilli(ts).UTC()
		if targetKind.Valid {
			msg.Target = &domain.MessageTargetID{Kind: domain.TargetKind(targetKind.String), ID: targetID.String}
		}
		msg.Payload, err = domain.DecodePayload(domain.PayloadKind(kind), []byte(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to decode message %s: %w", id, err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// DeleteMessages removes the log of conversation.
func (d *DB) DeleteMessages(ctx context.Context, account domain.UserID, conversation domain.RoomID) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM messages WHERE account = ? AND conversation = ?", string(account), string(conversation))
	return err
}

// GetMessageCount returns the number of records across all logs.
func (d *DB) GetMessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count)
	return count, err
}

// MessageExists reports whether a record with stanzaID is in the log of
// conversation.
func (d *DB) MessageExists(ctx context.Context, account domain.UserID, conversation domain.RoomID, stanzaID domain.StanzaID) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, `
		SELECT 1 FROM messages WHERE account = ? AND conversation = ? AND stanza_id = ? LIMIT 1
	`, string(account), string(conversation), string(stanzaID)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return one == 1, nil
}

// MAMSync records how far the archive of a conversation has been loaded.
type MAMSync struct {
	Account       domain.UserID
	Conversation  domain.RoomID
	LastStanzaID  domain.StanzaID
	LastTimestamp time.Time
	LastSynced    time.Time
}

// GetMAMSync returns nil if the conversation was never synced.
func (d *DB) GetMAMSync(ctx context.Context, account domain.UserID, conversation domain.RoomID) (*MAMSync, error) {
	var (
		sync       MAMSync
		lastID     sql.NullString
		lastTS     sql.NullInt64
		lastSynced int64
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT last_stanza_id, last_timestamp, last_synced
		FROM mam_sync
		WHERE account = ? AND conversation = ?
	`, string(account), string(conversation)).Scan(&lastID, &lastTS, &lastSynced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sync.Account = account
	sync.Conversation = conversation
	sync.LastStanzaID = domain.StanzaID(lastID.String)
	if lastTS.Valid {
		sync.LastTimestamp = time.UnixMilli(lastTS.Int64).UTC()
	}
	sync.LastSynced = time.Unix(lastSynced, 0).UTC()
	return &sync, nil
}

// SaveMAMSync stores the archive position of a conversation.
func (d *DB) SaveMAMSync(ctx context.Context, sync MAMSync) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO mam_sync (account, conversation, last_stanza_id, last_timestamp, last_synced)
		VALUES (?, ?, ?, ?, ?)
	`, string(sync.Account), string(sync.Conversation), nullString(string(sync.LastStanzaID)),
		sync.LastTimestamp.UnixMilli(), time.Now().Unix())
	return err
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
