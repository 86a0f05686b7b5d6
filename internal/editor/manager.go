package editor

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"lootforge/internal/edit"
	"lootforge/internal/loot"
)

// DefaultAuditCap bounds the audit log when no cap is configured.
const DefaultAuditCap = 500

// EditLog is the persisted operation history of one document.
type EditLog struct {
	DocumentID     string    `json:"document_id"`
	Operations     edit.List `json:"operations"`
	LastModifiedAt time.Time `json:"last_modified_at"`
}

// Loader supplies the original structure of a document the manager has not seen yet.
type Loader interface {
	LoadOriginal(id string) (loot.Structure, bool)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(id string) (loot.Structure, bool)

func (f LoaderFunc) LoadOriginal(id string) (loot.Structure, bool) { return f(id) }

// Observer receives edit and view-cache events, typically to feed metrics.
type Observer interface {
	ObserveEdit(action Action, kind edit.Kind)
	ObserveView(hit bool)
}

type Option func(*Manager)

func WithAuditCap(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.auditCap = n
		}
	}
}

func WithLoader(l Loader) Option {
	return func(m *Manager) { m.loader = l }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// docState is everything the manager tracks for one document. Fields are guarded by mu.
type docState struct {
	mu          sync.Mutex
	original    loot.Structure
	hasOriginal bool
	ops         []edit.Operation
	redo        []edit.Operation
	view        loot.Structure
	viewValid   bool
	modified    time.Time
}

// Manager owns per-document edit state: the cached original, the operation log, the
// redo stack and the lazily derived edited view. Calls on one document are serialised
// by that document's lock; different documents never contend.
type Manager struct {
	mu   sync.RWMutex
	docs map[string]*docState

	preview atomic.Bool

	auditMu  sync.Mutex
	audit    []AuditEntry
	auditCap int

	loader   Loader
	observer Observer
	now      func() time.Time
}

func New(opts ...Option) *Manager {
	m := &Manager{
		docs:     make(map[string]*docState),
		auditCap: DefaultAuditCap,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) state(id string, create bool) *docState {
	if m == nil || id == "" {
		return nil
	}
	m.mu.RLock()
	st := m.docs[id]
	m.mu.RUnlock()
	if st != nil || !create {
		return st
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if st = m.docs[id]; st == nil {
		st = &docState{}
		m.docs[id] = st
	}
	return st
}

// Open caches original as the base of id unless one is already cached.
func (m *Manager) Open(id string, original loot.Structure) {
	id = strings.TrimSpace(id)
	if m == nil || id == "" {
		return
	}
	st := m.state(id, true)
	st.mu.Lock()
	if !st.hasOriginal {
		st.original = original
		st.hasOriginal = true
		st.viewValid = false
	}
	st.mu.Unlock()
}

// ReloadOriginal replaces the cached base of id after an external reload. The log is kept
// and replayed against the new base on the next read; stale indices become no-ops.
func (m *Manager) ReloadOriginal(id string, original loot.Structure) {
	id = strings.TrimSpace(id)
	if m == nil || id == "" {
		return
	}
	st := m.state(id, true)
	st.mu.Lock()
	st.original = original
	st.hasOriginal = true
	st.viewValid = false
	st.mu.Unlock()
}

// Original returns the cached base of id, consulting the loader when needed.
func (m *Manager) Original(id string) (loot.Structure, bool) {
	id = strings.TrimSpace(id)
	if m == nil || id == "" {
		return loot.Structure{}, false
	}
	st := m.state(id, m.loader != nil)
	if st == nil {
		return loot.Structure{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !m.ensureOriginal(id, st) {
		return loot.Structure{}, false
	}
	return st.original, true
}

// ensureOriginal must be called with st.mu held.
func (m *Manager) ensureOriginal(id string, st *docState) bool {
	if st.hasOriginal {
		return true
	}
	if m.loader == nil {
		return false
	}
	s, ok := m.loader.LoadOriginal(id)
	if !ok {
		return false
	}
	st.original = s
	st.hasOriginal = true
	return true
}

// ApplyOperation appends op to the log of id, clears its redo history and invalidates
// the cached view. It reports false only for an empty id or a nil op.
func (m *Manager) ApplyOperation(id string, op edit.Operation) bool {
	id = strings.TrimSpace(id)
	if m == nil || id == "" || op == nil {
		return false
	}
	st := m.state(id, true)
	st.mu.Lock()
	st.redo = nil
	m.appendLocked(st, op)
	st.mu.Unlock()
	m.record(id, ActionApply, op)
	return true
}

func (m *Manager) appendLocked(st *docState, op edit.Operation) {
	st.ops = append(st.ops, op)
	st.viewValid = false
	st.modified = m.now()
}

// Undo moves the last operation of id onto the redo stack.
func (m *Manager) Undo(id string) bool {
	id = strings.TrimSpace(id)
	if m == nil || id == "" {
		return false
	}
	st := m.state(id, false)
	if st == nil {
		return false
	}
	st.mu.Lock()
	n := len(st.ops)
	if n == 0 {
		st.mu.Unlock()
		return false
	}
	op := st.ops[n-1]
	st.ops = st.ops[: n-1 : n-1]
	st.redo = append(st.redo, op)
	st.viewValid = false
	st.modified = m.now()
	st.mu.Unlock()
	m.record(id, ActionUndo, op)
	return true
}

// Redo re-applies the most recently undone operation of id. Unlike ApplyOperation it
// keeps the rest of the redo stack.
func (m *Manager) Redo(id string) bool {
	id = strings.TrimSpace(id)
	if m == nil || id == "" {
		return false
	}
	st := m.state(id, false)
	if st == nil {
		return false
	}
	st.mu.Lock()
	n := len(st.redo)
	if n == 0 {
		st.mu.Unlock()
		return false
	}
	op := st.redo[n-1]
	st.redo = st.redo[: n-1 : n-1]
	m.appendLocked(st, op)
	st.mu.Unlock()
	m.record(id, ActionRedo, op)
	return true
}

// EditedView returns the structure derived from the original of id and its log.
// The result is cached until the next change to that document.
func (m *Manager) EditedView(id string) (loot.Structure, bool) {
	id = strings.TrimSpace(id)
	if m == nil || id == "" {
		return loot.Structure{}, false
	}
	st := m.state(id, m.loader != nil)
	if st == nil {
		return loot.Structure{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.viewValid {
		m.observeView(true)
		return st.view, true
	}
	if !m.ensureOriginal(id, st) {
		return loot.Structure{}, false
	}
	m.observeView(false)
	if len(st.ops) == 0 {
		st.view = st.original
	} else {
		st.view = edit.ApplyAll(st.original, st.ops)
	}
	st.viewValid = true
	return st.view, true
}

// View returns the edited view when preview mode is on and the original otherwise.
func (m *Manager) View(id string) (loot.Structure, bool) {
	if m.PreviewMode() {
		return m.EditedView(id)
	}
	return m.Original(id)
}

// HasEdits reports whether id has recorded or undone operations.
func (m *Manager) HasEdits(id string) bool {
	st := m.state(strings.TrimSpace(id), false)
	if st == nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.ops) > 0 || len(st.redo) > 0
}

func (m *Manager) CanUndo(id string) bool {
	st := m.state(strings.TrimSpace(id), false)
	if st == nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.ops) > 0
}

func (m *Manager) CanRedo(id string) bool {
	st := m.state(strings.TrimSpace(id), false)
	if st == nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.redo) > 0
}

// Operations returns a copy of the log of id.
func (m *Manager) Operations(id string) []edit.Operation {
	st := m.state(strings.TrimSpace(id), false)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]edit.Operation(nil), st.ops...)
}

// EditedIDs lists documents with a non-empty log, sorted.
func (m *Manager) EditedIDs() []string {
	if m == nil {
		return nil
	}
	var ids []string
	for id, st := range m.snapshot() {
		st.mu.Lock()
		if len(st.ops) > 0 {
			ids = append(ids, id)
		}
		st.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// ClearEdits drops the log, redo stack and view of id; the cached original stays.
func (m *Manager) ClearEdits(id string) {
	st := m.state(strings.TrimSpace(id), false)
	if st == nil {
		return
	}
	st.mu.Lock()
	st.ops = nil
	st.redo = nil
	st.view = loot.Structure{}
	st.viewValid = false
	st.mu.Unlock()
}

// Reset forgets every document and turns preview mode off.
func (m *Manager) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.docs = make(map[string]*docState)
	m.mu.Unlock()
	m.preview.Store(false)
}

// PreviewMode is advisory: it tells consumers whether to prefer edited views.
func (m *Manager) PreviewMode() bool {
	return m != nil && m.preview.Load()
}

func (m *Manager) SetPreviewMode(on bool) {
	if m != nil {
		m.preview.Store(on)
	}
}

// GetAllEdits exports the log of every document that has one.
func (m *Manager) GetAllEdits() map[string]EditLog {
	out := make(map[string]EditLog)
	if m == nil {
		return out
	}
	for id, st := range m.snapshot() {
		st.mu.Lock()
		if len(st.ops) > 0 {
			out[id] = EditLog{
				DocumentID:     id,
				Operations:     append(edit.List(nil), st.ops...),
				LastModifiedAt: st.modified,
			}
		}
		st.mu.Unlock()
	}
	return out
}

// LoadEdits installs persisted logs. Each listed document gets exactly the given
// operations and an empty redo stack; other documents are untouched.
func (m *Manager) LoadEdits(logs map[string]EditLog) {
	if m == nil {
		return
	}
	for key, log := range logs {
		id := strings.TrimSpace(log.DocumentID)
		if id == "" {
			id = strings.TrimSpace(key)
		}
		if id == "" {
			continue
		}
		st := m.state(id, true)
		st.mu.Lock()
		st.ops = nil
		for _, op := range log.Operations {
			if op != nil {
				st.ops = append(st.ops, op)
			}
		}
		st.redo = nil
		st.viewValid = false
		st.modified = log.LastModifiedAt
		st.mu.Unlock()
	}
}

func (m *Manager) snapshot() map[string]*docState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*docState, len(m.docs))
	for id, st := range m.docs {
		out[id] = st
	}
	return out
}

func (m *Manager) observeView(hit bool) {
	if m.observer != nil {
		m.observer.ObserveView(hit)
	}
}
