package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"habitpoints/internal/models"
)

// RemoteBackend is the hosted tabular backend used in hybrid mode
type RemoteBackend interface {
	Ping(ctx context.Context) error
	ListChildren(ctx context.Context) ([]models.Child, error)
	ListItems(ctx context.Context) ([]models.RewardPunishItem, error)
	ListRecords(ctx context.Context) ([]models.PointRecord, error)
	InsertChild(ctx context.Context, child models.Child) error
	UpdateChild(ctx context.Context, child models.Child) error
	DeleteChild(ctx context.Context, id string) error
	InsertItem(ctx context.Context, item models.RewardPunishItem) error
	DeleteItem(ctx context.Context, id string) error
	InsertRecord(ctx context.Context, rec models.PointRecord) error
	DeleteRecord(ctx context.Context, id string) error
	UpsertChildren(ctx context.Context, children []models.Child) error
	UpsertItems(ctx context.Context, items []models.RewardPunishItem) error
	UpsertRecords(ctx context.Context, records []models.PointRecord) error
}

// ConnectionState is the coordinator's view of the remote backend
type ConnectionState string

const (
	StateChecking    ConnectionState = "checking"
	StateAvailable   ConnectionState = "available"
	StateUnavailable ConnectionState = "unavailable"
	// StateLocal is reported when no remote backend is configured.
	StateLocal ConnectionState = "local"
)

// SyncStatus tracks the last SyncToCloud call
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// Status is the connectivity and sync state exposed to consumers
type Status struct {
	State               ConnectionState `json:"state"`
	Online              bool            `json:"online"`
	Loading             bool            `json:"loading"`
	SyncStatus          SyncStatus      `json:"syncStatus"`
	LastSyncAt          *time.Time      `json:"lastSyncAt,omitempty"`
	LastError           string          `json:"lastError,omitempty"`
	PendingRemoteWrites int             `json:"pendingRemoteWrites"`
}

// LocalStatus is the status of a store running without a remote backend
func LocalStatus() Status {
	return Status{State: StateLocal, SyncStatus: SyncIdle}
}

// CoordinatorConfig holds the coordinator's timeouts and queue size
type CoordinatorConfig struct {
	ProbeTimeout   time.Duration
	RequestTimeout time.Duration
	OutboxSize     int
}

func (c *CoordinatorConfig) applyDefaults() {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = 256
	}
}

// Coordinator decides whether the remote backend or local storage is the
// source of truth and forwards local mutations to the remote backend while
// it is available. It embeds the Store, so every store operation is
// available on it unchanged.
type Coordinator struct {
	*Store

	remote  RemoteBackend
	logger  logrus.FieldLogger
	cfg     CoordinatorConfig
	metrics MetricsRecorder
	outbox  *outbox

	mu         sync.RWMutex
	state      ConnectionState
	loading    bool
	syncStatus SyncStatus
	lastSyncAt time.Time
	lastError  string
}

// NewCoordinator wires a coordinator around store. Call Start before use and
// Close when done.
func NewCoordinator(store *Store, remote RemoteBackend, logger logrus.FieldLogger, cfg CoordinatorConfig) *Coordinator {
	cfg.applyDefaults()
	c := &Coordinator{
		Store:      store,
		remote:     remote,
		logger:     logger.WithField("component", "coordinator"),
		cfg:        cfg,
		metrics:    store.metrics,
		state:      StateChecking,
		syncStatus: SyncIdle,
	}
	c.outbox = newOutbox(cfg.OutboxSize, cfg.RequestTimeout, c.logger, c.metrics, c.recordRemoteError)
	store.addHook(c.forward)
	return c
}

// Start launches the outbox worker and runs the initial connection check.
// It returns once the source of truth has been decided.
func (c *Coordinator) Start(ctx context.Context) error {
	c.outbox.start()
	c.checkConnection(ctx)
	return ctx.Err()
}

// Close stops the outbox worker and waits for it to exit. Queued remote
// writes that have not been sent are dropped.
func (c *Coordinator) Close() {
	c.outbox.close()
}

// HandleOnline re-runs the connection check; on success the remote data
// replaces local state.
func (c *Coordinator) HandleOnline(ctx context.Context) {
	c.logger.Info("Network online, checking remote backend")
	c.checkConnection(ctx)
}

// HandleOffline marks the remote backend unavailable. Mutations stay local.
func (c *Coordinator) HandleOffline() {
	c.setState(StateUnavailable)
	c.logger.Warn("Network offline, using local storage only")
}

// ProbeAndTransition probes the backend and calls HandleOnline or
// HandleOffline when reachability differs from the current state.
func (c *Coordinator) ProbeAndTransition(ctx context.Context) {
	state := c.State()
	if state == StateChecking {
		return
	}

	reachable := c.probe(ctx) == nil
	switch {
	case reachable && state != StateAvailable:
		c.HandleOnline(ctx)
	case !reachable && state == StateAvailable:
		c.HandleOffline()
	}
}

// State returns the current connection state
func (c *Coordinator) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns connectivity and sync flags
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		State:               c.state,
		Online:              c.state == StateAvailable,
		Loading:             c.loading,
		SyncStatus:          c.syncStatus,
		LastError:           c.lastError,
		PendingRemoteWrites: c.outbox.pending(),
	}
	if !c.lastSyncAt.IsZero() {
		t := c.lastSyncAt
		st.LastSyncAt = &t
	}
	return st
}

// ExportData tags the export with the storage type in use.
func (c *Coordinator) ExportData() (string, error) {
	storageType := "local"
	if c.State() == StateAvailable {
		storageType = "hybrid"
	}
	return c.Store.exportWithStorageType(storageType)
}

// SyncToCloud pushes the whole local state to the remote backend. Rows are
// upserted by id so local values win; rows that exist only remotely are
// left alone.
func (c *Coordinator) SyncToCloud(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateAvailable {
		c.syncStatus = SyncError
		c.lastError = ErrRemoteUnavailable.Error()
		c.mu.Unlock()
		return ErrRemoteUnavailable
	}
	if c.syncStatus == SyncSyncing {
		c.mu.Unlock()
		return ErrSyncInProgress
	}
	c.syncStatus = SyncSyncing
	c.mu.Unlock()

	start := time.Now()
	err := c.pushSnapshot(ctx, c.Store.Snapshot())
	c.metrics.Observe(ctx, "sync_to_cloud", err == nil, time.Since(start))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.syncStatus = SyncError
		c.lastError = err.Error()
		c.logger.WithError(err).Error("Sync to remote failed")
		return fmt.Errorf("failed to sync to remote: %w", err)
	}
	c.syncStatus = SyncSuccess
	c.lastSyncAt = time.Now().UTC()
	c.lastError = ""
	c.logger.Info("Synced local data to remote")
	return nil
}

func (c *Coordinator) pushSnapshot(ctx context.Context, snap models.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	// Children first so records never reference a missing child row.
	if err := c.remote.UpsertChildren(ctx, snap.Children); err != nil {
		return err
	}
	items := append(append([]models.RewardPunishItem{}, snap.RewardItems...), snap.PunishmentItems...)
	if err := c.remote.UpsertItems(ctx, items); err != nil {
		return err
	}
	return c.remote.UpsertRecords(ctx, snap.Records)
}

func (c *Coordinator) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()
	return c.remote.Ping(ctx)
}

func (c *Coordinator) checkConnection(ctx context.Context) {
	c.mu.Lock()
	c.state = StateChecking
	c.loading = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
	}()

	if err := c.probe(ctx); err != nil {
		c.logger.WithError(err).Warn("Remote backend unreachable, loading from local storage")
		c.loadFromLocal(ctx)
		return
	}

	if err := c.loadFromRemote(ctx); err != nil {
		c.logger.WithError(err).Error("Failed to load from remote backend, loading from local storage")
		c.recordRemoteError(err)
		c.loadFromLocal(ctx)
		return
	}

	c.setState(StateAvailable)
	c.logger.Info("Remote backend available")
}

func (c *Coordinator) loadFromLocal(ctx context.Context) {
	c.Store.Load(ctx)
	c.setState(StateUnavailable)
}

// loadFromRemote fetches the three tables concurrently and, when all
// succeed, replaces local state with them. Replace also writes the local
// backup copy.
func (c *Coordinator) loadFromRemote(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var (
		children []models.Child
		items    []models.RewardPunishItem
		records  []models.PointRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		children, err = c.remote.ListChildren(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = c.remote.ListItems(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = c.remote.ListRecords(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	snap := models.Snapshot{Children: children, Records: records}
	for _, item := range items {
		switch item.Type {
		case models.ItemTypeReward:
			snap.RewardItems = append(snap.RewardItems, item)
		case models.ItemTypePunishment:
			snap.PunishmentItems = append(snap.PunishmentItems, item)
		default:
			return fmt.Errorf("item %s: %w", item.ID, models.ErrUnknownItemType)
		}
	}

	c.Store.Replace(ctx, snap)
	c.logger.WithFields(logrus.Fields{
		"children": len(snap.Children),
		"items":    len(items),
		"records":  len(snap.Records),
	}).Info("Loaded data from remote backend")
	return nil
}

func (c *Coordinator) setState(state ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.metrics.SetRemoteAvailable(state == StateAvailable)
	c.logger.WithField("state", state).Debug("Connection state changed")
}

func (c *Coordinator) recordRemoteError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	c.mu.Lock()
	c.lastError = err.Error()
	c.mu.Unlock()
}

// forward turns a store change into a queued remote write. It runs with the
// store lock held, so it must not block or call back into the store.
func (c *Coordinator) forward(change Change) {
	if c.State() != StateAvailable {
		return
	}

	var op remoteOp
	switch change.Kind {
	case ChangeChildAdded:
		child := change.Child
		op = remoteOp{name: "insert_child", subject: child.ID, fn: func(ctx context.Context) error { return c.remote.InsertChild(ctx, child) }}
	case ChangeChildUpdated:
		child := change.Child
		op = remoteOp{name: "update_child", subject: child.ID, fn: func(ctx context.Context) error { return c.remote.UpdateChild(ctx, child) }}
	case ChangeChildDeleted:
		id := change.ID
		op = remoteOp{name: "delete_child", subject: id, fn: func(ctx context.Context) error { return c.remote.DeleteChild(ctx, id) }}
	case ChangeItemAdded:
		item := change.Item
		op = remoteOp{name: "insert_item", subject: item.ID, fn: func(ctx context.Context) error { return c.remote.InsertItem(ctx, item) }}
	case ChangeItemDeleted:
		id := change.ID
		op = remoteOp{name: "delete_item", subject: id, fn: func(ctx context.Context) error { return c.remote.DeleteItem(ctx, id) }}
	case ChangeRecordAdded:
		rec := change.Record
		op = remoteOp{name: "insert_record", subject: rec.ID, fn: func(ctx context.Context) error { return c.remote.InsertRecord(ctx, rec) }}
	case ChangeRecordDeleted:
		id := change.ID
		op = remoteOp{name: "delete_record", subject: id, fn: func(ctx context.Context) error { return c.remote.DeleteRecord(ctx, id) }}
	default:
		// Clear, import and remote reloads stay local.
		return
	}

	c.outbox.enqueue(op)
}
