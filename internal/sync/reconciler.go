package sync

import (
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/rishta/internal/store"
)

// Checkpoint keys.
const (
	CheckpointContacts = "contacts_synced_at"
)

// Reconciler manages sync checkpoints.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logger}
}

// UpdateCheckpoint updates a sync checkpoint value.
func (r *Reconciler) UpdateCheckpoint(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := r.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetCheckpoint retrieves a sync checkpoint value. A missing key yields "".
func (r *Reconciler) GetCheckpoint(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// LastContactSync returns when the contact list was last fetched.
func (r *Reconciler) LastContactSync() (time.Time, bool) {
	v, err := r.GetCheckpoint(CheckpointContacts)
	if err != nil || v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		r.logger.Warn("malformed checkpoint", zap.String("key", CheckpointContacts), zap.String("value", v))
		return time.Time{}, false
	}
	return t, true
}
