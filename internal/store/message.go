package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const upsertMessageSQL = `
	INSERT INTO messages (peer_id, msg_id, client_msg_id, sender_id, receiver_id, body, reply_to, attachments, from_me, status, timestamp, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(peer_id, msg_id) DO UPDATE SET
		client_msg_id = CASE WHEN excluded.client_msg_id != '' THEN excluded.client_msg_id ELSE messages.client_msg_id END,
		body = excluded.body,
		reply_to = excluded.reply_to,
		attachments = excluded.attachments,
		status = excluded.status,
		timestamp = excluded.timestamp`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertMessage(x execer, m *Message) error {
	atts, err := encodeAttachments(m.Attachments)
	if err != nil {
		return err
	}
	status := m.Status
	if status == "" {
		status = StatusConfirmed
	}
	_, err = x.Exec(upsertMessageSQL,
		m.PeerID, m.MsgID, m.ClientMsgID, m.SenderID, m.ReceiverID, m.Body, m.ReplyTo, atts,
		m.FromMe, status, m.Timestamp, time.Now().UnixMilli())
	return err
}

// UpsertMessage inserts or updates a message (idempotent on peer_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	return upsertMessage(db, m)
}

// UpsertMessages stores a fetched history page in one transaction.
func (db *DB) UpsertMessages(msgs []Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range msgs {
		if err := upsertMessage(tx, &msgs[i]); err != nil {
			return fmt.Errorf("upsert message %q: %w", msgs[i].MsgID, err)
		}
	}
	return tx.Commit()
}

const messageColumns = `id, peer_id, msg_id, client_msg_id, sender_id, receiver_id, body, reply_to, attachments, from_me, status, timestamp`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner, extra ...any) (Message, error) {
	var m Message
	var atts string
	dest := append([]any{&m.ID, &m.PeerID, &m.MsgID, &m.ClientMsgID, &m.SenderID, &m.ReceiverID,
		&m.Body, &m.ReplyTo, &atts, &m.FromMe, &m.Status, &m.Timestamp}, extra...)
	if err := s.Scan(dest...); err != nil {
		return m, err
	}
	var err error
	m.Attachments, err = decodeAttachments(atts)
	return m, err
}

// ListMessages returns messages for a peer using keyset pagination by
// timestamp, newest first.
func (db *DB) ListMessages(peerID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE peer_id = ? AND timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, peerID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage looks a message up by its server id.
func (db *DB) GetMessage(msgID string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE msg_id = ? LIMIT 1`, msgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByClientID looks a message up by the client id it was sent
// with. Messages received from others carry no client id.
func (db *DB) GetMessageByClientID(clientMsgID string) (*Message, error) {
	if clientMsgID == "" {
		return nil, nil
	}
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE client_msg_id = ? LIMIT 1`, clientMsgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMessage removes a message by server id. It reports whether a row
// was removed.
func (db *DB) DeleteMessage(msgID string) (bool, error) {
	res, err := db.Exec(`DELETE FROM messages WHERE msg_id = ?`, msgID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
