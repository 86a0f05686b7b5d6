package editor

import (
	"time"

	"github.com/google/uuid"

	"lootforge/internal/edit"
)

type Action string

const (
	ActionApply Action = "apply"
	ActionUndo  Action = "undo"
	ActionRedo  Action = "redo"
)

// AuditEntry is one line of the chronological edit history across all documents.
type AuditEntry struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Action      Action    `json:"action"`
	Op          edit.Kind `json:"op"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

func (m *Manager) record(id string, action Action, op edit.Operation) {
	entry := AuditEntry{
		ID:          uuid.NewString(),
		DocumentID:  id,
		Action:      action,
		Op:          op.Kind(),
		Description: op.String(),
		At:          m.now(),
	}
	m.auditMu.Lock()
	m.audit = append(m.audit, entry)
	if over := len(m.audit) - m.auditCap; over > 0 {
		// oldest first out
		m.audit = append([]AuditEntry(nil), m.audit[over:]...)
	}
	m.auditMu.Unlock()
	if m.observer != nil {
		m.observer.ObserveEdit(action, op.Kind())
	}
}

// AuditLog returns the retained audit entries, oldest first.
func (m *Manager) AuditLog() []AuditEntry {
	if m == nil {
		return nil
	}
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}
