package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const upsertConversationSQL = `
	INSERT INTO conversations (peer_id, name, avatar, unread_count, last_message_at, last_message_preview, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(peer_id) DO UPDATE SET
		name = CASE WHEN excluded.name != '' THEN excluded.name ELSE conversations.name END,
		avatar = CASE WHEN excluded.avatar != '' THEN excluded.avatar ELSE conversations.avatar END,
		unread_count = excluded.unread_count,
		last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
		last_message_preview = CASE WHEN excluded.last_message_at >= conversations.last_message_at
			THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
		updated_at = excluded.updated_at`

// UpsertConversation inserts or updates a conversation record. Empty names
// and avatars never overwrite known ones, and an older last message never
// replaces a newer preview.
func (db *DB) UpsertConversation(c *Conversation) error {
	_, err := db.Exec(upsertConversationSQL,
		c.PeerID, c.Name, c.Avatar, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, time.Now().UnixMilli())
	return err
}

// ReplaceConversations stores the contact list fetched from the backend in
// a single transaction. Conversations the backend no longer lists are
// dropped together with their messages.
func (db *DB) ReplaceConversations(convs []Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`CREATE TEMP TABLE IF NOT EXISTS keep_peers (peer_id TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("temp table: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM keep_peers`); err != nil {
		return fmt.Errorf("reset temp table: %w", err)
	}
	for _, c := range convs {
		if _, err := tx.Exec(upsertConversationSQL,
			c.PeerID, c.Name, c.Avatar, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now); err != nil {
			return fmt.Errorf("upsert conversation %q: %w", c.PeerID, err)
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO keep_peers (peer_id) VALUES (?)`, c.PeerID); err != nil {
			return fmt.Errorf("keep %q: %w", c.PeerID, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE peer_id NOT IN (SELECT peer_id FROM keep_peers)
		AND peer_id NOT IN (SELECT peer_id FROM outbox WHERE status != 'sent')`); err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE peer_id NOT IN (SELECT peer_id FROM keep_peers)
		AND peer_id NOT IN (SELECT peer_id FROM outbox WHERE status != 'sent')`); err != nil {
		return fmt.Errorf("prune conversations: %w", err)
	}
	return tx.Commit()
}

// ListConversations returns conversations sorted by last message timestamp descending.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT peer_id, COALESCE(NULLIF(name, ''), peer_id), avatar, unread_count, last_message_at, last_message_preview
		FROM conversations
		ORDER BY last_message_at DESC, peer_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.PeerID, &c.Name, &c.Avatar, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// ConversationPeers returns the peer ids of every cached conversation.
func (db *DB) ConversationPeers() ([]string, error) {
	rows, err := db.Query(`SELECT peer_id FROM conversations ORDER BY peer_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var peers []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// GetConversation returns a single conversation, or nil if it is not cached.
func (db *DB) GetConversation(peerID string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT peer_id, COALESCE(NULLIF(name, ''), peer_id), avatar, unread_count, last_message_at, last_message_preview
		FROM conversations WHERE peer_id = ?`, peerID).
		Scan(&c.PeerID, &c.Name, &c.Avatar, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// TouchConversation records a new last message for peerID, creating the
// conversation if needed. When unread is true the unread counter grows.
func (db *DB) TouchConversation(peerID, preview string, at int64, unread bool) error {
	inc := 0
	if unread {
		inc = 1
	}
	_, err := db.Exec(`
		INSERT INTO conversations (peer_id, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			unread_count = conversations.unread_count + ?,
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= conversations.last_message_at
				THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			updated_at = excluded.updated_at`,
		peerID, inc, at, Truncate(preview, 100), time.Now().UnixMilli(), inc)
	return err
}

// MarkRead clears the unread counter of a conversation.
func (db *DB) MarkRead(peerID string) error {
	_, err := db.Exec(`UPDATE conversations SET unread_count = 0, updated_at = ? WHERE peer_id = ?`,
		time.Now().UnixMilli(), peerID)
	return err
}

// DeleteConversation removes a conversation with its messages and any
// undelivered outbox entries.
func (db *DB) DeleteConversation(peerID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM messages WHERE peer_id = ?`,
		`DELETE FROM outbox WHERE peer_id = ?`,
		`DELETE FROM conversations WHERE peer_id = ?`,
	} {
		if _, err := tx.Exec(q, peerID); err != nil {
			return fmt.Errorf("delete conversation %q: %w", peerID, err)
		}
	}
	return tx.Commit()
}

// Truncate shortens s to at most maxLen runes.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
