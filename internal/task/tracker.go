package task

import (
	"time"

	"github.com/google/uuid"

	"agentdeck/internal/storage"
	"agentdeck/pkg/logger"
)

// Tracker writes an audit trail of external calls to storage. A nil
// tracker is valid and records nothing.
type Tracker struct {
	db *storage.DB
}

// NewTracker wraps the store. db may be nil.
func NewTracker(db *storage.DB) *Tracker {
	return &Tracker{db: db}
}

// Begin records the start of an external call and returns the record id
// to complete it with.
func (t *Tracker) Begin(serviceID, sessionID string) string {
	if t == nil || t.db == nil {
		return ""
	}
	id := uuid.NewString()
	err := t.db.InsertTaskRecord(storage.TaskRecord{
		ID:        id,
		ServiceID: serviceID,
		SessionID: sessionID,
		State:     string(StateSubmitted),
		StartedAt: time.Now(),
	})
	if err != nil {
		logger.Warn().Err(err).Str("service", serviceID).Msg("Failed to record task start")
		return ""
	}
	return id
}

// Finish records the terminal outcome for a started record.
func (t *Tracker) Finish(recordID string, snap Snapshot, callErr error) {
	if t == nil || t.db == nil || recordID == "" {
		return
	}
	var errMsg *string
	if callErr != nil {
		s := callErr.Error()
		errMsg = &s
	}
	if err := t.db.CompleteTaskRecord(recordID, snap.TaskID, snap.ContextID, string(snap.State), errMsg); err != nil {
		logger.Warn().Err(err).Str("record", recordID).Msg("Failed to record task outcome")
	}
}

// History returns the audit rows for a service, oldest first.
func (t *Tracker) History(serviceID string) ([]storage.TaskRecord, error) {
	if t == nil || t.db == nil {
		return nil, nil
	}
	return t.db.ListTaskRecords(serviceID)
}
