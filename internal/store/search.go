package store

// SearchMessages performs a full-text search on message bodies, newest first.
func (db *DB) SearchMessages(query string, peerID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.id, m.peer_id, m.msg_id, m.client_msg_id, m.sender_id, m.receiver_id, m.body,
		       m.reply_to, m.attachments, m.from_me, m.status, m.timestamp,
		       snippet(messages_fts, '<<', '>>', '...', -1, 16)
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.docid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if peerID != "" {
		q += " AND m.peer_id = ?"
		args = append(args, peerID)
	}
	q += " ORDER BY m.timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		r.Message, err = scanMessage(rows, &r.Snippet)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
