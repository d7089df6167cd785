// Package flow tracks per-user interaction state over the record list:
// which record is being edited and which one is waiting for a delete
// confirmation. The state is presentation-only and never touches the store.
package flow

import (
	"strings"
	"sync"

	"masraf/internal/core"
)

// FormSnapshot captures the editable fields of a record at the moment an
// edit starts, so a save can be rejected when nothing actually changed.
type FormSnapshot struct {
	Name     string
	Price    string
	Category core.Category
}

// SnapshotOf freezes the editable fields of r.
func SnapshotOf(r core.Record) FormSnapshot {
	return FormSnapshot{Name: r.Name, Price: r.Price, Category: r.Category}
}

// Changed reports whether the submitted form differs from the snapshot.
// Comparison is exact on the entered text; "10" and "10.00" count as a
// change even though they parse to the same amount.
func (f FormSnapshot) Changed(name, price string, category core.Category) bool {
	return f.Name != strings.TrimSpace(name) || f.Price != strings.TrimSpace(price) || f.Category != category
}

// Tracker holds the interaction state of one user's list. At most one
// record is in edit mode and at most one is pending delete, and those are
// never the same record.
type Tracker struct {
	mu            sync.Mutex
	editing       string
	editSnapshot  FormSnapshot
	pendingDelete string
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// StartEdit puts id into edit mode, replacing any previous edit. A pending
// delete on the same record is cancelled first.
func (t *Tracker) StartEdit(id string, r core.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingDelete == id {
		t.pendingDelete = ""
	}
	t.editing = id
	t.editSnapshot = SnapshotOf(r)
}

// Editing returns the id currently in edit mode, or "".
func (t *Tracker) Editing() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.editing
}

// EditSnapshot returns the frozen form for the record in edit mode. The
// second result is false when id is not being edited.
func (t *Tracker) EditSnapshot(id string) (FormSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.editing == "" || t.editing != id {
		return FormSnapshot{}, false
	}
	return t.editSnapshot, true
}

// FinishEdit leaves edit mode after a successful save.
func (t *Tracker) FinishEdit(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.editing == id {
		t.editing = ""
		t.editSnapshot = FormSnapshot{}
	}
}

// CancelEdit discards the edit without saving.
func (t *Tracker) CancelEdit(id string) {
	t.FinishEdit(id)
}

// MarkPendingDelete arms the delete confirmation for id, replacing any
// previous mark. An edit in progress on the same record is cancelled first.
func (t *Tracker) MarkPendingDelete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.editing == id {
		t.editing = ""
		t.editSnapshot = FormSnapshot{}
	}
	t.pendingDelete = id
}

// PendingDelete returns the id awaiting confirmation, or "".
func (t *Tracker) PendingDelete() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingDelete
}

// Confirmed reports whether id is armed for deletion and clears the mark.
// The mark is consumed whether or not the delete that follows succeeds.
func (t *Tracker) Confirmed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingDelete != id || id == "" {
		return false
	}
	t.pendingDelete = ""
	return true
}

// CancelDelete disarms the confirmation for id.
func (t *Tracker) CancelDelete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingDelete == id {
		t.pendingDelete = ""
	}
}

// Forget clears any state referring to id, used after the record is gone.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.editing == id {
		t.editing = ""
		t.editSnapshot = FormSnapshot{}
	}
	if t.pendingDelete == id {
		t.pendingDelete = ""
	}
}

// Registry hands out one tracker per user.
type Registry struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
}

func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]*Tracker)}
}

// For returns the tracker for owner, creating it on first use.
func (r *Registry) For(owner string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[owner]
	if !ok {
		t = NewTracker()
		r.trackers[owner] = t
	}
	return t
}

// Drop releases the tracker for owner, typically on sign-out.
func (r *Registry) Drop(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trackers, owner)
}
