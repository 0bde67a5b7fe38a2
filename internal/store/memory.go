package store

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/zauberware/smshog/internal/ids"
	"github.com/zauberware/smshog/internal/ordered"
)

// defaultFlushInterval is the safety-net snapshot interval used when
// persistence is enabled without an explicit interval.
const defaultFlushInterval = 30 * time.Second

// MemoryStore is an in-memory implementation of [Store].
//
// Messages are keyed by ID. Each entry also records an insertion sequence
// number, which breaks ties between messages with identical timestamps.
//
// With [WithSnapshot], the store loads the snapshot file on construction and
// runs a [Flusher] that rewrites it after mutations and on a timer. Call
// [MemoryStore.Close] to stop the flusher and write a final snapshot.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]entry
	seq      uint64

	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
	observers []func(Change)

	snapshotPath  string
	flushInterval time.Duration
	flushHook     func(err error, elapsed time.Duration)
	flushMu       sync.Mutex
	flusher       *Flusher
}

type entry struct {
	msg Message
	seq uint64
}

// Option configures a [MemoryStore].
type Option func(*MemoryStore)

// WithClock sets the time source used to timestamp accepted messages.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator replaces the message ID generator. Generated IDs must be
// unique for the lifetime of the store.
func WithIDGenerator(gen func() string) Option {
	return func(m *MemoryStore) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithLogger sets the logger for load and flush failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *MemoryStore) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver registers a function called after every mutation, outside
// the store lock. Observers must not block.
func WithObserver(fn func(Change)) Option {
	return func(m *MemoryStore) {
		if fn != nil {
			m.observers = append(m.observers, fn)
		}
	}
}

// WithSnapshot enables persistence to the JSON file at path. The store is
// flushed after every mutation and additionally every interval; a zero
// interval selects the 30 second default.
func WithSnapshot(path string, interval time.Duration) Option {
	return func(m *MemoryStore) {
		m.snapshotPath = path
		m.flushInterval = interval
	}
}

// WithFlushHook registers a function called after each snapshot write
// attempt with its outcome and duration.
func WithFlushHook(fn func(err error, elapsed time.Duration)) Option {
	return func(m *MemoryStore) {
		m.flushHook = fn
	}
}

// NewMemoryStore creates a new [MemoryStore].
//
// Without [WithSnapshot] the store never touches disk and needs no cleanup.
// With it, the snapshot is loaded (a missing or unreadable file is logged
// and the store starts empty) and the background flusher is started.
func NewMemoryStore(opts ...Option) *MemoryStore {
	m := &MemoryStore{
		messages: make(map[string]entry),
		now:      time.Now,
		newID:    ids.NewMessageID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.snapshotPath == "" {
		return m
	}

	m.load()

	interval := m.flushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	m.flusher = NewFlusher(interval, m.Flush, m.logger)
	m.flusher.Start(context.Background())

	return m
}

// Accept stores a new message and returns it.
func (m *MemoryStore) Accept(phoneNumber, body string, attrs ordered.Map, meta *Metadata) Message {
	msg := Message{
		ID:                m.newID(),
		PhoneNumber:       phoneNumber,
		Message:           body,
		Timestamp:         m.now(),
		MessageAttributes: attrs.Clone(),
	}
	if meta != nil {
		md := *meta
		msg.Metadata = &md
	}

	m.mu.Lock()
	m.seq++
	m.messages[msg.ID] = entry{msg: msg, seq: m.seq}
	m.mu.Unlock()

	out := msg.clone()
	m.changed(Change{Kind: ChangeAccepted, ID: msg.ID, Message: &out, At: msg.Timestamp})
	return msg.clone()
}

// Get returns a copy of the message with the given ID.
func (m *MemoryStore) Get(id string) (Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.messages[id]
	if !ok {
		return Message{}, false
	}
	return e.msg.clone(), true
}

// List returns copies of all messages, most recent first.
func (m *MemoryStore) List() []Message {
	m.mu.RLock()
	entries := make([]entry, 0, len(m.messages))
	for _, e := range m.messages {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	slices.SortFunc(entries, func(a, b entry) int {
		if c := b.msg.Timestamp.Compare(a.msg.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	out := make([]Message, len(entries))
	for i, e := range entries {
		out[i] = e.msg.clone()
	}
	return out
}

// Len returns the number of stored messages.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// Remove deletes the message with the given ID. It reports false, and
// changes nothing, if no such message exists.
func (m *MemoryStore) Remove(id string) bool {
	m.mu.Lock()
	_, ok := m.messages[id]
	if ok {
		delete(m.messages, id)
	}
	m.mu.Unlock()

	if ok {
		m.changed(Change{Kind: ChangeRemoved, ID: id, At: m.now()})
	}
	return ok
}

// Clear deletes all messages.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	m.messages = make(map[string]entry)
	m.mu.Unlock()

	m.changed(Change{Kind: ChangeCleared, At: m.now()})
}

// Flush writes the current contents to the snapshot file synchronously.
// It is a no-op when persistence is disabled.
//
// Flushes are serialized, and each one takes its copy of the store after
// acquiring the flush lock, so a later flush never loses to an earlier one.
func (m *MemoryStore) Flush() error {
	if m.snapshotPath == "" {
		return nil
	}

	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	start := time.Now()
	err := writeSnapshot(m.snapshotPath, m.List())
	if m.flushHook != nil {
		m.flushHook(err, time.Since(start))
	}
	if err != nil {
		m.logger.Error("snapshot flush failed", "path", m.snapshotPath, "error", err)
	}
	return err
}

// Close stops the background flusher and writes a final snapshot.
// Safe to call when persistence is disabled and safe to call more than once.
func (m *MemoryStore) Close() error {
	if m.flusher == nil {
		return nil
	}
	m.flusher.Stop()
	return m.Flush()
}

// load replaces the store contents with the snapshot file, if any.
// The snapshot is ordered newest first, so sequence numbers are assigned in
// reverse to reproduce that order for equal timestamps.
func (m *MemoryStore) load() {
	msgs, err := loadSnapshot(m.snapshotPath)
	if err != nil {
		m.logger.Error("snapshot load failed, starting empty", "path", m.snapshotPath, "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == "" {
			continue
		}
		m.seq++
		m.messages[msgs[i].ID] = entry{msg: msgs[i], seq: m.seq}
	}
	m.logger.Info("snapshot loaded", "path", m.snapshotPath, "messages", len(m.messages))
}

// changed schedules a snapshot write and notifies observers.
func (m *MemoryStore) changed(c Change) {
	if m.flusher != nil {
		m.flusher.Trigger()
	}
	for _, fn := range m.observers {
		fn(c)
	}
}
