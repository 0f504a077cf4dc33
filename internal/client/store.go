package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrMutationPending rejects a second mutation while one is in flight.
	ErrMutationPending = errors.New("a change to this item is still being saved")
	// ErrNotInStore is returned for ids the store does not hold.
	ErrNotInStore = errors.New("item not found in store")
)

// SyncStatus is the tag of SyncState.
type SyncStatus int

const (
	StatusSynced SyncStatus = iota
	StatusPending
	StatusError
)

func (s SyncStatus) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusPending:
		return "pending"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("SyncStatus(%d)", int(s))
}

// SyncState tells how a local entry relates to the server copy. TempID is set
// only while a create is pending; Err only in StatusError.
type SyncState struct {
	Status SyncStatus
	TempID string
	Err    error
}

func Synced() SyncState                     { return SyncState{Status: StatusSynced} }
func Pending() SyncState                    { return SyncState{Status: StatusPending} }
func PendingCreate(tempID string) SyncState { return SyncState{Status: StatusPending, TempID: tempID} }
func Failed(err error) SyncState            { return SyncState{Status: StatusError, Err: err} }

func (s SyncState) IsPending() bool { return s.Status == StatusPending }

// Entry is an item with its sync state.
type Entry[T any] struct {
	Value T
	State SyncState
}

func newTempID() string {
	return "temp-" + uuid.NewString()
}

// optimistic holds the ordered local list shared by the concrete stores.
// indexOf, snapshot, replaceAll, begin, remove and insert expect mu held.
type optimistic[T any] struct {
	mu       sync.Mutex
	items    []Entry[T]
	deleting map[string]struct{}
	lastErr  error
	idOf     func(*T) string
}

func (o *optimistic[T]) indexOf(id string) int {
	for i := range o.items {
		if o.idOf(&o.items[i].Value) == id {
			return i
		}
	}
	return -1
}

func (o *optimistic[T]) snapshot() []Entry[T] {
	return append([]Entry[T](nil), o.items...)
}

func (o *optimistic[T]) replaceAll(values []T) {
	o.items = make([]Entry[T], len(values))
	for i, v := range values {
		o.items[i] = Entry[T]{Value: v, State: Synced()}
	}
	o.lastErr = nil
}

// begin locates an entry for mutation.
func (o *optimistic[T]) begin(id string) (int, error) {
	if _, ok := o.deleting[id]; ok {
		return -1, ErrMutationPending
	}
	idx := o.indexOf(id)
	if idx < 0 {
		return -1, ErrNotInStore
	}
	if o.items[idx].State.IsPending() {
		return -1, ErrMutationPending
	}
	return idx, nil
}

func (o *optimistic[T]) remove(idx int) {
	o.items = append(o.items[:idx], o.items[idx+1:]...)
}

func (o *optimistic[T]) insert(idx int, e Entry[T]) {
	if idx < 0 || idx > len(o.items) {
		idx = len(o.items)
	}
	o.items = append(o.items, Entry[T]{})
	copy(o.items[idx+1:], o.items[idx:])
	o.items[idx] = e
}

// create runs an optimistic insert of local under a temporary id.
func (o *optimistic[T]) create(local T, setID func(*T, string), call func() (*T, error)) (*T, error) {
	tempID := newTempID()
	setID(&local, tempID)

	o.mu.Lock()
	o.items = append(o.items, Entry[T]{Value: local, State: PendingCreate(tempID)})
	o.mu.Unlock()

	saved, err := call()

	o.mu.Lock()
	defer o.mu.Unlock()
	idx := o.indexOf(tempID)
	if err != nil {
		if idx >= 0 {
			o.remove(idx)
		}
		o.lastErr = err
		return nil, err
	}
	entry := Entry[T]{Value: *saved, State: Synced()}
	if idx >= 0 {
		o.items[idx] = entry
	} else {
		o.items = append(o.items, entry)
	}
	return saved, nil
}

// update applies change locally, then confirms or restores.
func (o *optimistic[T]) update(id string, change func(*T), call func() (*T, error)) (*T, error) {
	o.mu.Lock()
	idx, err := o.begin(id)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	before := o.items[idx].Value
	local := before
	change(&local)
	o.items[idx] = Entry[T]{Value: local, State: Pending()}
	o.mu.Unlock()

	saved, err := call()

	o.mu.Lock()
	defer o.mu.Unlock()
	idx = o.indexOf(id)
	if err != nil {
		if idx >= 0 {
			o.items[idx] = Entry[T]{Value: before, State: Failed(err)}
		}
		o.lastErr = err
		return nil, err
	}
	if idx >= 0 {
		o.items[idx] = Entry[T]{Value: *saved, State: Synced()}
	}
	return saved, nil
}

// destroy removes the entry locally and reinserts it at its old position on failure.
func (o *optimistic[T]) destroy(id string, call func() error) error {
	o.mu.Lock()
	idx, err := o.begin(id)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	before := o.items[idx].Value
	o.remove(idx)
	if o.deleting == nil {
		o.deleting = make(map[string]struct{})
	}
	o.deleting[id] = struct{}{}
	o.mu.Unlock()

	err = call()

	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.deleting, id)
	if err != nil {
		o.insert(idx, Entry[T]{Value: before, State: Failed(err)})
		o.lastErr = err
		return err
	}
	return nil
}

func (o *optimistic[T]) get(id string) (Entry[T], bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx := o.indexOf(id)
	if idx < 0 {
		return Entry[T]{}, false
	}
	return o.items[idx], true
}

func (o *optimistic[T]) list() []Entry[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot()
}

func (o *optimistic[T]) load(values []T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replaceAll(values)
}

func (o *optimistic[T]) fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastErr = err
}

func (o *optimistic[T]) lastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}
