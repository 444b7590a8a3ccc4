package store

import (
	"database/sql"
	"errors"
	"time"
)

// QueueOutbox adds a message to the send outbox.
func (db *DB) QueueOutbox(e *OutboxEntry) error {
	atts, err := encodeAttachments(e.Attachments)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO outbox (client_msg_id, peer_id, body, reply_to, attachments, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'queued', ?, ?)`,
		e.ClientMsgID, e.PeerID, e.Body, e.ReplyTo, atts, now, now)
	return err
}

// MarkOutboxSending updates an outbox entry to 'sending' status and counts the attempt.
func (db *DB) MarkOutboxSending(clientMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sending', attempts = attempts + 1, updated_at = ? WHERE client_msg_id = ?`, now, clientMsgID)
	return err
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server message ID.
func (db *DB) MarkOutboxSent(clientMsgID, serverMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_msg_id = ?, error_message = '', updated_at = ? WHERE client_msg_id = ?`, serverMsgID, now, clientMsgID)
	return err
}

// MarkOutboxFailed moves an outbox entry to 'failed' with an error message.
// An entry already acknowledged as 'sent' is left alone; it reports whether
// the entry changed.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE client_msg_id = ? AND status != 'sent'`, errMsg, now, clientMsgID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RequeueOutbox moves a failed entry back to 'queued'. It reports whether
// the entry was in the failed state.
func (db *DB) RequeueOutbox(clientMsgID string) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE outbox SET status = 'queued', error_message = '', updated_at = ? WHERE client_msg_id = ? AND status = 'failed'`, now, clientMsgID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ResetInterruptedOutbox marks entries left in 'sending' by a previous run
// as failed: whether the backend stored them is unknown, so the user decides.
func (db *DB) ResetInterruptedOutbox() (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = 'interrupted by daemon restart', updated_at = ? WHERE status = 'sending'`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOutbox removes an outbox entry regardless of its state.
func (db *DB) DeleteOutbox(clientMsgID string) error {
	_, err := db.Exec(`DELETE FROM outbox WHERE client_msg_id = ?`, clientMsgID)
	return err
}

const outboxColumns = `id, client_msg_id, peer_id, body, reply_to, attachments, status, error_message, server_msg_id, attempts, created_at`

func scanOutbox(s scanner) (OutboxEntry, error) {
	var e OutboxEntry
	var atts string
	if err := s.Scan(&e.ID, &e.ClientMsgID, &e.PeerID, &e.Body, &e.ReplyTo, &atts, &e.Status,
		&e.ErrorMessage, &e.ServerMsgID, &e.Attempts, &e.CreatedAt); err != nil {
		return e, err
	}
	var err error
	e.Attachments, err = decodeAttachments(atts)
	return e, err
}

// GetOutbox returns one outbox entry, or nil if it does not exist.
func (db *DB) GetOutbox(clientMsgID string) (*OutboxEntry, error) {
	e, err := scanOutbox(db.QueryRow(`SELECT `+outboxColumns+` FROM outbox WHERE client_msg_id = ?`, clientMsgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PendingOutbox returns outbox entries that are still queued.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	return db.listOutbox(`WHERE status = 'queued' ORDER BY created_at ASC, id ASC`)
}

// UndeliveredOutbox returns queued, sending and failed entries for a peer,
// oldest first. These are the entries a history reload must keep visible.
func (db *DB) UndeliveredOutbox(peerID string) ([]OutboxEntry, error) {
	return db.listOutbox(`WHERE peer_id = ? AND status != 'sent' ORDER BY created_at ASC, id ASC`, peerID)
}

func (db *DB) listOutbox(where string, args ...any) ([]OutboxEntry, error) {
	rows, err := db.Query(`SELECT `+outboxColumns+` FROM outbox `+where, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
