package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ridebook/internal/repository"
	"ridebook/internal/service"
)

// ──────────────────────────────────────────────
// MOCK RECORD STORE
// ──────────────────────────────────────────────

// MockRecordStore is an in-memory RecordStore. AtomicUpdate holds the store
// mutex while fn runs, so concurrent updates of one path serialise.
type MockRecordStore struct {
	mu     sync.Mutex
	docs   map[string]json.RawMessage
	writes map[string]int

	// Counters for verification
	GetCallCount          int32
	SetCallCount          int32
	UpdateCallCount       int32
	AtomicUpdateCallCount int32

	// Error injection, keyed by path
	GetErrors   map[string]error
	WriteErrors map[string]error

	// BeforeAtomicUpdate runs under the store lock before fn sees the
	// document. It may edit docs to simulate a concurrent writer.
	BeforeAtomicUpdate func(path string, docs map[string]json.RawMessage)
}

// NewMockRecordStore creates a new mock record store.
func NewMockRecordStore() *MockRecordStore {
	return &MockRecordStore{
		docs:        make(map[string]json.RawMessage),
		writes:      make(map[string]int),
		GetErrors:   make(map[string]error),
		WriteErrors: make(map[string]error),
	}
}

// Put stores a raw JSON document (for test setup). It is not counted as a write.
func (m *MockRecordStore) Put(path, doc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = compact(json.RawMessage(doc))
}

// Doc returns the document at path decoded into a generic map (for test assertions).
func (m *MockRecordStore) Doc(path string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[path]
	if !ok {
		return nil
	}
	var doc map[string]any
	_ = json.Unmarshal(raw, &doc)
	return doc
}

// Writes returns how many times path was written.
func (m *MockRecordStore) Writes(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[path]
}

// TotalWrites returns the number of writes over all paths.
func (m *MockRecordStore) TotalWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.writes {
		total += n
	}
	return total
}

func (m *MockRecordStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.GetErrors[path]; err != nil {
		return nil, err
	}
	raw, ok := m.docs[path]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return append(json.RawMessage(nil), raw...), nil
}

func (m *MockRecordStore) Set(ctx context.Context, path string, value any) error {
	atomic.AddInt32(&m.SetCallCount, 1)
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(path, data)
}

func (m *MockRecordStore) Update(ctx context.Context, path string, fields map[string]any) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	merged, err := repository.MergeFields(m.docs[path], fields)
	if err != nil {
		return err
	}
	return m.write(path, merged)
}

func (m *MockRecordStore) AtomicUpdate(ctx context.Context, path string, fn repository.UpdateFunc) error {
	atomic.AddInt32(&m.AtomicUpdateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.BeforeAtomicUpdate != nil {
		m.BeforeAtomicUpdate(path, m.docs)
	}

	var current json.RawMessage
	if raw, ok := m.docs[path]; ok {
		current = append(json.RawMessage(nil), raw...)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return m.write(path, next)
}

// write must be called with mu held.
func (m *MockRecordStore) write(path string, data json.RawMessage) error {
	if err := m.WriteErrors[path]; err != nil {
		return err
	}
	m.docs[path] = compact(data)
	m.writes[path]++
	return nil
}

func compact(raw json.RawMessage) json.RawMessage {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, _ := json.Marshal(v)
	return out
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStoreInterface.
type MockLockStore struct {
	mu     sync.Mutex
	locks  map[string]mockLock
	tokens int

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error
}

type mockLock struct {
	token  string
	expiry time.Time
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]mockLock),
	}
}

func (m *MockLockStore) AcquireUserLock(ctx context.Context, userID string, ttl time.Duration) (string, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if lock, exists := m.locks[userID]; exists && time.Now().Before(lock.expiry) {
		return "", false, nil
	}
	m.tokens++
	token := fmt.Sprintf("token-%d", m.tokens)
	m.locks[userID] = mockLock{token: token, expiry: time.Now().Add(ttl)}
	return token, true, nil
}

func (m *MockLockStore) ReleaseUserLock(ctx context.Context, userID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[userID].token == token {
		delete(m.locks, userID)
	}
	return nil
}

// Hold takes the lock of a user as another batch would (for test setup).
func (m *MockLockStore) Hold(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[userID] = mockLock{token: "held", expiry: time.Now().Add(time.Hour)}
}

// IsLocked checks if a user is locked (for test assertions).
func (m *MockLockStore) IsLocked(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, exists := m.locks[userID]
	return exists && time.Now().Before(lock.expiry)
}

// ──────────────────────────────────────────────
// MOCK PUBLISHER
// ──────────────────────────────────────────────

// PublishedMessage is one message seen by MockPublisher.
type PublishedMessage struct {
	Topic        string
	Notification service.Notification
}

// MockPublisher records published notifications.
type MockPublisher struct {
	mu       sync.Mutex
	messages []PublishedMessage

	// Error injection
	PublishError error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(topic string, message interface{}) error {
	if m.PublishError != nil {
		return m.PublishError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	notification, _ := message.(service.Notification)
	m.messages = append(m.messages, PublishedMessage{Topic: topic, Notification: notification})
	return nil
}

// Messages returns the messages published to topic.
func (m *MockPublisher) Messages(topic string) []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []PublishedMessage
	for _, msg := range m.messages {
		if msg.Topic == topic {
			result = append(result, msg)
		}
	}
	return result
}
