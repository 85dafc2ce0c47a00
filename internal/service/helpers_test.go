package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"habitpoints/internal/database"
	"habitpoints/internal/models"
	"habitpoints/internal/repository"
	"habitpoints/pkg/logger"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestRepo(t *testing.T) *repository.DocumentRepository {
	t.Helper()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "habits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.RunMigrations(context.Background())
	require.NoError(t, err)
	return repository.NewDocumentRepository(db, 0)
}

// newTestStore returns a loaded store over a fresh SQLite document repository
func newTestStore(t *testing.T, opts ...Option) (*Store, *repository.DocumentRepository) {
	t.Helper()
	repo := newTestRepo(t)
	base := []Option{WithIDGenerator(sequentialIDs()), WithClock(func() time.Time { return fixedNow })}
	s := NewStore(repo, logger.Discard(), append(base, opts...)...)
	s.Load(context.Background())
	return s, repo
}

// memoryDocs is an in-memory DocumentStore with failure injection
type memoryDocs struct {
	mu      sync.Mutex
	docs    map[string][]byte
	saveErr error
	saves   int
}

func newMemoryDocs() *memoryDocs {
	return &memoryDocs{docs: map[string][]byte{}}
}

func (m *memoryDocs) Load(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, &repository.StorageError{Kind: repository.KindCorrupt, Key: key, Err: err}
	}
	return true, nil
}

func (m *memoryDocs) Save(_ context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.docs[key] = data
	return nil
}

func (m *memoryDocs) SaveAll(ctx context.Context, docs map[string]any) error {
	for key, value := range docs {
		if err := m.Save(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryDocs) RemoveAll(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.docs, key)
	}
	return nil
}

func (m *memoryDocs) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[key]
	return ok
}

// captureMetrics records what the store reports
type captureMetrics struct {
	mu            sync.Mutex
	observed      map[string][]bool
	persistErrors []string
	remoteWrites  map[string][]bool
	available     bool
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{observed: map[string][]bool{}, remoteWrites: map[string][]bool{}}
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observed[op] = append(c.observed[op], success)
}

func (c *captureMetrics) PersistError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistErrors = append(c.persistErrors, kind)
}

func (c *captureMetrics) RemoteWrite(op string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteWrites[op] = append(c.remoteWrites[op], success)
}

func (c *captureMetrics) SetRemoteAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = available
}

func (c *captureMetrics) SetOutboxDepth(int) {}

func (c *captureMetrics) persistErrorKinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.persistErrors...)
}

// fakeRemote is an in-memory RemoteBackend
type fakeRemote struct {
	mu       sync.Mutex
	pingErr  error
	listErr  error
	writeErr error
	children []models.Child
	items    []models.RewardPunishItem
	records  []models.PointRecord
	calls    []string
	upserted models.Snapshot
	block    chan struct{}
}

func (f *fakeRemote) record(call string) error {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.writeErr
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeRemote) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

func (f *fakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeRemote) ListChildren(context.Context) ([]models.Child, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Child{}, f.children...), f.listErr
}

func (f *fakeRemote) ListItems(context.Context) ([]models.RewardPunishItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RewardPunishItem{}, f.items...), f.listErr
}

func (f *fakeRemote) ListRecords(context.Context) ([]models.PointRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PointRecord{}, f.records...), f.listErr
}

func (f *fakeRemote) InsertChild(_ context.Context, c models.Child) error {
	return f.record("insert_child:" + c.ID)
}

func (f *fakeRemote) UpdateChild(_ context.Context, c models.Child) error {
	return f.record(fmt.Sprintf("update_child:%s:%d", c.ID, c.Points))
}

func (f *fakeRemote) DeleteChild(_ context.Context, id string) error {
	return f.record("delete_child:" + id)
}

func (f *fakeRemote) InsertItem(_ context.Context, item models.RewardPunishItem) error {
	return f.record("insert_item:" + item.ID)
}

func (f *fakeRemote) DeleteItem(_ context.Context, id string) error {
	return f.record("delete_item:" + id)
}

func (f *fakeRemote) InsertRecord(_ context.Context, rec models.PointRecord) error {
	return f.record("insert_record:" + rec.ID)
}

func (f *fakeRemote) DeleteRecord(_ context.Context, id string) error {
	return f.record("delete_record:" + id)
}

func (f *fakeRemote) UpsertChildren(_ context.Context, children []models.Child) error {
	f.mu.Lock()
	f.upserted.Children = children
	f.mu.Unlock()
	return f.record("upsert_children")
}

func (f *fakeRemote) UpsertItems(_ context.Context, items []models.RewardPunishItem) error {
	f.mu.Lock()
	f.upserted.RewardItems = items
	f.mu.Unlock()
	return f.record("upsert_items")
}

func (f *fakeRemote) UpsertRecords(_ context.Context, records []models.PointRecord) error {
	f.mu.Lock()
	f.upserted.Records = records
	f.mu.Unlock()
	return f.record("upsert_records")
}
