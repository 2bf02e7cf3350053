package offline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/crewsync/crewsync/internal/connectivity"
	"github.com/crewsync/crewsync/internal/status"
	"github.com/crewsync/crewsync/internal/store"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID   *int64 `json:"id,omitempty"`
	Key  string `json:"-"`
	Text string `json:"text"`
}

var noteKind = Kind[note]{
	Name:   "notes",
	Key:    func(n note) string { return n.Key },
	SetKey: func(n *note, key string) { n.Key = key },
	ID:     func(n note) *int64 { return n.ID },
	SetID:  func(n *note, id int64) { n.ID = &id },
	Validate: func(n note) error {
		if n.Text == "" {
			return errors.New("text is required")
		}
		return nil
	},
}

// fakeRemote is an in-memory Remote[note] with fault injection.
type fakeRemote struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]note

	creates, updates, deletes, lists int
	inflight, maxInflight            int

	failCreate, failUpdate, failDelete, failList error
	latency                                      time.Duration
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{items: make(map[int64]note)}
}

func (f *fakeRemote) enter() func() {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	latency := f.latency
	f.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}
	return func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}
}

func (f *fakeRemote) List(ctx context.Context) ([]note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.failList != nil {
		return nil, f.failList
	}
	out := make([]note, 0, len(f.items))
	for id := int64(1); id <= f.nextID; id++ {
		if n, ok := f.items[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeRemote) Create(ctx context.Context, n note) (note, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failCreate != nil {
		return note{}, f.failCreate
	}
	f.nextID++
	id := f.nextID
	n.ID = &id
	n.Key = ""
	f.items[id] = n
	return n, nil
}

func (f *fakeRemote) Update(ctx context.Context, id int64, n note) (note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.failUpdate != nil {
		return note{}, f.failUpdate
	}
	if _, ok := f.items[id]; !ok {
		return note{}, &RemoteError{Op: "update", Entity: "notes", Code: CodeNotFound, Err: fmt.Errorf("note %d", id)}
	}
	n.ID = &id
	n.Key = ""
	f.items[id] = n
	return n, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.failDelete != nil {
		return f.failDelete
	}
	if _, ok := f.items[id]; !ok {
		return &RemoteError{Op: "delete", Entity: "notes", Code: CodeNotFound, Err: fmt.Errorf("note %d", id)}
	}
	delete(f.items, id)
	return nil
}

func (f *fakeRemote) counts() (creates, updates, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates, f.deletes
}

func (f *fakeRemote) set(fn func(f *fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

var errServer = &RemoteError{Op: "create", Entity: "notes", Code: CodeServer, Err: errors.New("status 500")}

type fixture struct {
	db      *store.DB
	remote  *fakeRemote
	monitor *connectivity.Monitor
	repo    *Repository[note]
}

func newFixture(t *testing.T, connected bool, opts ...RepositoryOption) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema(context.Background()))

	remote := newFakeRemote()
	monitor := connectivity.NewMonitor(connected, nil)
	return &fixture{
		db:      db,
		remote:  remote,
		monitor: monitor,
		repo:    NewRepository(noteKind, Remote[note](remote), db, monitor, opts...),
	}
}

// drain collects the states already published to ch.
func drain(ch <-chan status.Status) []status.State {
	var states []status.State
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return states
			}
			states = append(states, s.State)
		case <-time.After(20 * time.Millisecond):
			return states
		}
	}
}
