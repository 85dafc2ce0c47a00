package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"habitpoints/internal/models"
	"habitpoints/internal/repository"
	"habitpoints/internal/validation"
)

var (
	ErrNameRequired      = errors.New("name is required")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidPoints     = errors.New("invalid points")
	ErrInvalidImport     = errors.New("invalid import data")
	ErrUnknownItemType   = models.ErrUnknownItemType
	ErrChildNotFound     = errors.New("child not found")
	ErrChildIDRequired   = errors.New("child id is required")
	ErrRemoteUnavailable = errors.New("remote backend unavailable")
	ErrSyncInProgress    = errors.New("sync already in progress")
)

// DocumentStore is the local persistence the store writes through to
type DocumentStore interface {
	Load(ctx context.Context, key string, dst any) (bool, error)
	Save(ctx context.Context, key string, value any) error
	SaveAll(ctx context.Context, docs map[string]any) error
	RemoveAll(ctx context.Context, keys ...string) error
}

// MetricsRecorder receives operation outcomes
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	PersistError(kind string)
	RemoteWrite(operation string, success bool)
	SetRemoteAvailable(available bool)
	SetOutboxDepth(depth int)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) PersistError(string)                                  {}
func (noopMetrics) RemoteWrite(string, bool)                             {}
func (noopMetrics) SetRemoteAvailable(bool)                              {}
func (noopMetrics) SetOutboxDepth(int)                                   {}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for record dates and export times
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides how entity ids are minted
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithChangeHook registers fn to be called after every mutation
func WithChangeHook(fn func(Change)) Option {
	return func(s *Store) { s.hooks = append(s.hooks, fn) }
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Store owns the children, catalog and records in memory and writes each
// changed collection through to local persistence. All methods are safe for
// concurrent use; mutations are serialized.
type Store struct {
	mu      sync.Mutex
	state   models.Snapshot
	loaded  bool
	local   DocumentStore
	logger  logrus.FieldLogger
	metrics MetricsRecorder
	now     func() time.Time
	newID   func() string
	hooks   []func(Change)
}

// NewStore creates an empty, not yet loaded store
func NewStore(local DocumentStore, logger logrus.FieldLogger, opts ...Option) *Store {
	s := &Store{
		local:   local,
		logger:  logger,
		metrics: noopMetrics{},
		now:     time.Now,
		newID:   newUUID,
	}
	s.state.Normalize()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) addHook(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Load reads all four collections from local persistence. Missing or
// unreadable documents leave the collection empty. Persistence is enabled
// once Load returns.
func (s *Store) Load(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var next models.Snapshot
	s.loadKey(ctx, repository.KeyChildren, &next.Children)
	s.loadKey(ctx, repository.KeyRewardItems, &next.RewardItems)
	s.loadKey(ctx, repository.KeyPunishmentItems, &next.PunishmentItems)
	s.loadKey(ctx, repository.KeyRecords, &next.Records)
	next.Normalize()

	s.state = next
	s.loaded = true
	s.metrics.Observe(ctx, "load", true, time.Since(start))

	s.logger.WithFields(logrus.Fields{
		"children": len(next.Children),
		"records":  len(next.Records),
	}).Info("Loaded data from local storage")
}

func (s *Store) loadKey(ctx context.Context, key string, dst any) {
	if _, err := s.local.Load(ctx, key, dst); err != nil {
		// A type mismatch can leave a partially decoded collection behind.
		reflect.ValueOf(dst).Elem().SetZero()
		kind := repository.KindOf(err)
		s.metrics.PersistError(string(kind))
		s.logger.WithError(err).WithField("key", key).Warn("Failed to load local data, using empty default")
	}
}

// Loaded reports whether initial loading has completed
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// persist writes one collection. Must be called with s.mu held.
func (s *Store) persist(ctx context.Context, key string) {
	if !s.loaded {
		s.logger.WithField("key", key).Debug("Skipping save before initial load")
		return
	}

	var value any
	switch key {
	case repository.KeyChildren:
		value = s.state.Children
	case repository.KeyRewardItems:
		value = s.state.RewardItems
	case repository.KeyPunishmentItems:
		value = s.state.PunishmentItems
	case repository.KeyRecords:
		value = s.state.Records
	}

	if err := s.local.Save(ctx, key, value); err != nil {
		s.metrics.PersistError(string(repository.KindOf(err)))
		s.logger.WithError(err).WithField("key", key).Error("Failed to save to local storage")
	}
}

func (s *Store) persistAll(ctx context.Context) {
	if !s.loaded {
		return
	}
	docs := map[string]any{
		repository.KeyChildren:        s.state.Children,
		repository.KeyRewardItems:     s.state.RewardItems,
		repository.KeyPunishmentItems: s.state.PunishmentItems,
		repository.KeyRecords:         s.state.Records,
	}
	if err := s.local.SaveAll(ctx, docs); err != nil {
		s.metrics.PersistError(string(repository.KindOf(err)))
		s.logger.WithError(err).Error("Failed to save snapshot to local storage")
	}
}

// emit notifies hooks. Must be called with s.mu held so hooks observe
// changes in mutation order.
func (s *Store) emit(c Change) {
	for _, fn := range s.hooks {
		fn(c)
	}
}

// Children returns a copy of the children in insertion order
func (s *Store) Children() []models.Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Child{}, s.state.Children...)
}

// RewardItems returns a copy of the reward catalog
func (s *Store) RewardItems() []models.RewardPunishItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RewardPunishItem{}, s.state.RewardItems...)
}

// PunishmentItems returns a copy of the punishment catalog
func (s *Store) PunishmentItems() []models.RewardPunishItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RewardPunishItem{}, s.state.PunishmentItems...)
}

// Records returns a copy of all records, newest first
func (s *Store) Records() []models.PointRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PointRecord{}, s.state.Records...)
}

// Snapshot returns a copy of the whole state
func (s *Store) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() models.Snapshot {
	return models.Snapshot{
		Children:        append([]models.Child{}, s.state.Children...),
		RewardItems:     append([]models.RewardPunishItem{}, s.state.RewardItems...),
		PunishmentItems: append([]models.RewardPunishItem{}, s.state.PunishmentItems...),
		Records:         append([]models.PointRecord{}, s.state.Records...),
	}
}

// Child looks up a child by id
func (s *Store) Child(id string) (models.Child, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.childIndex(id)
	if idx < 0 {
		return models.Child{}, false
	}
	return s.state.Children[idx], true
}

// ChildRecords returns the records of one child, newest first
func (s *Store) ChildRecords(childID string) []models.PointRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := []models.PointRecord{}
	for _, r := range s.state.Records {
		if r.ChildID == childID {
			records = append(records, r)
		}
	}
	return records
}

// Stats returns dashboard totals
func (s *Store) Stats() models.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ComputeStats(s.state)
}

func (s *Store) childIndex(id string) int {
	for i, c := range s.state.Children {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// validateName maps a name validation failure onto ErrNameRequired for a
// blank name and ErrInvalidName otherwise.
func validateName(name string) error {
	err := validation.ValidateName(name)
	if err == nil {
		return nil
	}
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	var verr validation.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("%w: %s", ErrInvalidName, verr.Message)
	}
	return fmt.Errorf("%w: %v", ErrInvalidName, err)
}

func validatePoints(points int) error {
	err := validation.ValidatePoints(points)
	if err == nil {
		return nil
	}
	var verr validation.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("%w: %s", ErrInvalidPoints, verr.Message)
	}
	return fmt.Errorf("%w: %v", ErrInvalidPoints, err)
}

// AddChild creates a child with zero points. Duplicate names are allowed.
func (s *Store) AddChild(ctx context.Context, in models.ChildInput) (models.Child, error) {
	start := time.Now()
	if err := validateName(in.Name); err != nil {
		s.metrics.Observe(ctx, "add_child", false, time.Since(start))
		return models.Child{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	child := models.Child{ID: s.newID(), Name: in.Name, Avatar: in.Avatar, Points: 0}
	s.state.Children = append(s.state.Children, child)
	s.persist(ctx, repository.KeyChildren)
	s.emit(Change{Kind: ChangeChildAdded, Child: child, ID: child.ID})

	s.metrics.Observe(ctx, "add_child", true, time.Since(start))
	s.logger.WithField("child_id", child.ID).Infof("Added child: %s", child.Name)
	return child, nil
}

// UpdateChild replaces the child with the same id wholesale, points
// included. It reports false when no such child exists.
func (s *Store) UpdateChild(ctx context.Context, child models.Child) (bool, error) {
	start := time.Now()
	if err := validateName(child.Name); err != nil {
		s.metrics.Observe(ctx, "update_child", false, time.Since(start))
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.childIndex(child.ID)
	if idx < 0 {
		s.metrics.Observe(ctx, "update_child", false, time.Since(start))
		return false, nil
	}
	s.state.Children[idx] = child
	s.persist(ctx, repository.KeyChildren)
	s.emit(Change{Kind: ChangeChildUpdated, Child: child, ID: child.ID})

	s.metrics.Observe(ctx, "update_child", true, time.Since(start))
	s.logger.WithField("child_id", child.ID).Infof("Updated child: %s", child.Name)
	return true, nil
}

// PatchChild applies patch to the child with id in a single critical
// section. Points change only when the patch sets them.
func (s *Store) PatchChild(ctx context.Context, id string, patch models.ChildPatch) (models.Child, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.childIndex(id)
	if idx < 0 {
		s.metrics.Observe(ctx, "update_child", false, time.Since(start))
		return models.Child{}, ErrChildNotFound
	}

	child := patch.Apply(s.state.Children[idx])
	if err := validateName(child.Name); err != nil {
		s.metrics.Observe(ctx, "update_child", false, time.Since(start))
		return models.Child{}, err
	}

	s.state.Children[idx] = child
	s.persist(ctx, repository.KeyChildren)
	s.emit(Change{Kind: ChangeChildUpdated, Child: child, ID: child.ID})

	s.metrics.Observe(ctx, "update_child", true, time.Since(start))
	s.logger.WithField("child_id", child.ID).Infof("Updated child: %s", child.Name)
	return child, nil
}

// DeleteChild removes the child and all of its records
func (s *Store) DeleteChild(ctx context.Context, id string) bool {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.childIndex(id)
	if idx < 0 {
		s.metrics.Observe(ctx, "delete_child", false, time.Since(start))
		return false
	}
	s.state.Children = append(s.state.Children[:idx:idx], s.state.Children[idx+1:]...)

	kept := make([]models.PointRecord, 0, len(s.state.Records))
	removed := 0
	for _, r := range s.state.Records {
		if r.ChildID == id {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.state.Records = kept

	s.persist(ctx, repository.KeyChildren)
	s.persist(ctx, repository.KeyRecords)
	s.emit(Change{Kind: ChangeChildDeleted, ID: id})

	s.metrics.Observe(ctx, "delete_child", true, time.Since(start))
	s.logger.WithFields(logrus.Fields{"child_id": id, "records": removed}).Info("Deleted child")
	return true
}

// AddRewardItem adds a reward to the catalog. Points are stored positive.
func (s *Store) AddRewardItem(ctx context.Context, in models.ItemInput) (models.RewardPunishItem, error) {
	return s.addItem(ctx, in, models.ItemTypeReward)
}

// AddPunishmentItem adds a punishment to the catalog. Points are stored
// negative whatever sign was entered.
func (s *Store) AddPunishmentItem(ctx context.Context, in models.ItemInput) (models.RewardPunishItem, error) {
	return s.addItem(ctx, in, models.ItemTypePunishment)
}

func (s *Store) addItem(ctx context.Context, in models.ItemInput, itemType models.ItemType) (models.RewardPunishItem, error) {
	start := time.Now()
	op := "add_" + string(itemType) + "_item"
	if err := validateName(in.Name); err != nil {
		s.metrics.Observe(ctx, op, false, time.Since(start))
		return models.RewardPunishItem{}, err
	}
	if err := validatePoints(in.Points); err != nil {
		s.metrics.Observe(ctx, op, false, time.Since(start))
		return models.RewardPunishItem{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := models.RewardPunishItem{
		ID:     s.newID(),
		Name:   in.Name,
		Icon:   in.Icon,
		Points: itemType.Normalize(in.Points),
		Type:   itemType,
	}
	key := repository.KeyRewardItems
	if itemType == models.ItemTypeReward {
		s.state.RewardItems = append(s.state.RewardItems, item)
	} else {
		key = repository.KeyPunishmentItems
		s.state.PunishmentItems = append(s.state.PunishmentItems, item)
	}
	s.persist(ctx, key)
	s.emit(Change{Kind: ChangeItemAdded, Item: item, ID: item.ID})

	s.metrics.Observe(ctx, op, true, time.Since(start))
	s.logger.WithFields(logrus.Fields{"item_id": item.ID, "type": itemType}).Infof("Added item: %s", item.Name)
	return item, nil
}

// DeleteRewardItem removes a reward from the catalog. Existing records keep
// their copied name and points.
func (s *Store) DeleteRewardItem(ctx context.Context, id string) bool {
	return s.deleteItem(ctx, id, models.ItemTypeReward)
}

// DeletePunishmentItem removes a punishment from the catalog
func (s *Store) DeletePunishmentItem(ctx context.Context, id string) bool {
	return s.deleteItem(ctx, id, models.ItemTypePunishment)
}

func (s *Store) deleteItem(ctx context.Context, id string, itemType models.ItemType) bool {
	start := time.Now()
	op := "delete_" + string(itemType) + "_item"
	s.mu.Lock()
	defer s.mu.Unlock()

	items := &s.state.RewardItems
	key := repository.KeyRewardItems
	if itemType == models.ItemTypePunishment {
		items = &s.state.PunishmentItems
		key = repository.KeyPunishmentItems
	}

	idx := -1
	for i, item := range *items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.metrics.Observe(ctx, op, false, time.Since(start))
		return false
	}
	*items = append((*items)[:idx:idx], (*items)[idx+1:]...)
	s.persist(ctx, key)
	s.emit(Change{Kind: ChangeItemDeleted, ID: id})

	s.metrics.Observe(ctx, op, true, time.Since(start))
	s.logger.WithFields(logrus.Fields{"item_id": id, "type": itemType}).Info("Deleted item")
	return true
}

// AddRecord prepends a record and adds its points to the child's balance.
// A record for an unknown child is still stored, with no balance change.
func (s *Store) AddRecord(ctx context.Context, in models.RecordInput) (models.PointRecord, error) {
	start := time.Now()
	if !in.Type.Valid() {
		s.metrics.Observe(ctx, "add_record", false, time.Since(start))
		return models.PointRecord{}, fmt.Errorf("%w: %q", ErrUnknownItemType, in.Type)
	}
	if err := validation.ValidateID("childId", in.ChildID); err != nil {
		s.metrics.Observe(ctx, "add_record", false, time.Since(start))
		return models.PointRecord{}, fmt.Errorf("%w: %v", ErrChildIDRequired, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := models.PointRecord{
		ID:       s.newID(),
		ChildID:  in.ChildID,
		ItemID:   in.ItemID,
		ItemName: in.ItemName,
		Points:   in.Points,
		Type:     in.Type,
		Date:     s.now().UTC().Truncate(time.Millisecond),
	}
	s.state.Records = append([]models.PointRecord{rec}, s.state.Records...)
	s.persist(ctx, repository.KeyRecords)
	s.emit(Change{Kind: ChangeRecordAdded, Record: rec, ID: rec.ID})

	log := s.logger.WithFields(logrus.Fields{"record_id": rec.ID, "child_id": rec.ChildID})
	if idx := s.childIndex(rec.ChildID); idx >= 0 {
		s.state.Children[idx].Points += rec.Points
		s.persist(ctx, repository.KeyChildren)
		s.emit(Change{Kind: ChangeChildUpdated, Child: s.state.Children[idx], ID: rec.ChildID})
	} else {
		log.Warn("Record added for unknown child, balance unchanged")
	}

	s.metrics.Observe(ctx, "add_record", true, time.Since(start))
	log.Infof("Added record: %s", rec.ItemName)
	return rec, nil
}

// DeleteRecord reverses the record's effect on its child's balance and
// removes it. The balance step is skipped when the child no longer exists.
func (s *Store) DeleteRecord(ctx context.Context, id string) bool {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.state.Records {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.metrics.Observe(ctx, "delete_record", false, time.Since(start))
		return false
	}
	rec := s.state.Records[idx]

	if ci := s.childIndex(rec.ChildID); ci >= 0 {
		s.state.Children[ci].Points -= rec.Points
		s.persist(ctx, repository.KeyChildren)
		s.emit(Change{Kind: ChangeChildUpdated, Child: s.state.Children[ci], ID: rec.ChildID})
	}

	s.state.Records = append(s.state.Records[:idx:idx], s.state.Records[idx+1:]...)
	s.persist(ctx, repository.KeyRecords)
	s.emit(Change{Kind: ChangeRecordDeleted, Record: rec, ID: id})

	s.metrics.Observe(ctx, "delete_record", true, time.Since(start))
	s.logger.WithFields(logrus.Fields{"record_id": id, "child_id": rec.ChildID}).Info("Deleted record")
	return true
}

// ClearAllData empties every collection and removes the persisted copies.
func (s *Store) ClearAllData(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = models.Snapshot{}
	s.state.Normalize()

	success := true
	if err := s.local.RemoveAll(ctx, repository.AllKeys...); err != nil {
		success = false
		s.metrics.PersistError(string(repository.KindOf(err)))
		s.logger.WithError(err).Error("Failed to remove local data")
	}
	s.emit(Change{Kind: ChangeCleared})

	s.metrics.Observe(ctx, "clear", success, time.Since(start))
	s.logger.Info("Cleared all data")
}

// Replace swaps in a whole snapshot and persists all four collections.
// It also completes initial loading.
func (s *Store) Replace(ctx context.Context, snap models.Snapshot) {
	start := time.Now()
	snap.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = snap
	s.loaded = true
	s.persistAll(ctx)
	s.emit(Change{Kind: ChangeReplaced})

	s.metrics.Observe(ctx, "replace", true, time.Since(start))
	s.logger.WithFields(logrus.Fields{
		"children": len(snap.Children),
		"records":  len(snap.Records),
	}).Info("Replaced all data")
}
