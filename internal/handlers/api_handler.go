package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"habitpoints/internal/models"
	"habitpoints/internal/service"
)

// AppStore is the domain store surface the API serves. Both *service.Store
// and *service.Coordinator satisfy it.
type AppStore interface {
	Snapshot() models.Snapshot
	Children() []models.Child
	RewardItems() []models.RewardPunishItem
	PunishmentItems() []models.RewardPunishItem
	Records() []models.PointRecord
	Child(id string) (models.Child, bool)
	ChildRecords(childID string) []models.PointRecord
	Stats() models.Stats

	AddChild(ctx context.Context, in models.ChildInput) (models.Child, error)
	PatchChild(ctx context.Context, id string, patch models.ChildPatch) (models.Child, error)
	DeleteChild(ctx context.Context, id string) bool
	AddRewardItem(ctx context.Context, in models.ItemInput) (models.RewardPunishItem, error)
	AddPunishmentItem(ctx context.Context, in models.ItemInput) (models.RewardPunishItem, error)
	DeleteRewardItem(ctx context.Context, id string) bool
	DeletePunishmentItem(ctx context.Context, id string) bool
	AddRecord(ctx context.Context, in models.RecordInput) (models.PointRecord, error)
	DeleteRecord(ctx context.Context, id string) bool
	ClearAllData(ctx context.Context)

	ExportData() (string, error)
	ImportData(ctx context.Context, text string) error
}

// HybridControl exposes the coordinator's connectivity and sync operations
type HybridControl interface {
	Status() service.Status
	SyncToCloud(ctx context.Context) error
}

// APIHandler serves the JSON API
type APIHandler struct {
	store  AppStore
	hybrid HybridControl
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewAPIHandler creates the API handler. hybrid is nil in local storage mode.
func NewAPIHandler(store AppStore, hybrid HybridControl, logger logrus.FieldLogger) *APIHandler {
	return &APIHandler{store: store, hybrid: hybrid, logger: logger, now: time.Now}
}

type stateResponse struct {
	models.Snapshot
	Status service.Status `json:"status"`
}

func (h *APIHandler) status() service.Status {
	if h.hybrid == nil {
		return service.LocalStatus()
	}
	return h.hybrid.Status()
}

// State returns every collection plus connectivity flags
func (h *APIHandler) State(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	snap.Normalize()
	respondJSON(w, http.StatusOK, stateResponse{Snapshot: snap, Status: h.status()})
}

// Stats returns dashboard totals
func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Stats())
}

// Status returns connectivity and sync flags
func (h *APIHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status())
}

// ListChildren returns all children
func (h *APIHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, nonNil(h.store.Children()))
}

// CreateChild adds a child with zero points
func (h *APIHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var in models.ChildInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidRequestBody})
		return
	}

	child, err := h.store.AddChild(r.Context(), in)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, child)
}

// UpdateChild updates a child. Fields missing from the body keep their
// current values, points included.
func (h *APIHandler) UpdateChild(w http.ResponseWriter, r *http.Request) {
	var patch models.ChildPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidRequestBody})
		return
	}

	child, err := h.store.PatchChild(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, child)
}

// DeleteChild removes a child and its records
func (h *APIHandler) DeleteChild(w http.ResponseWriter, r *http.Request) {
	if !h.store.DeleteChild(r.Context(), r.PathValue("id")) {
		respondWithServiceError(w, h.logger, service.ErrChildNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChildRecords lists one child's records, newest first
func (h *APIHandler) ChildRecords(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.store.Child(id); !ok {
		respondWithServiceError(w, h.logger, service.ErrChildNotFound)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(h.store.ChildRecords(id)))
}

// ListRewards returns the reward catalog
func (h *APIHandler) ListRewards(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, nonNil(h.store.RewardItems()))
}

// ListPunishments returns the punishment catalog
func (h *APIHandler) ListPunishments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, nonNil(h.store.PunishmentItems()))
}

// CreateReward adds a reward item
func (h *APIHandler) CreateReward(w http.ResponseWriter, r *http.Request) {
	h.createItem(w, r, h.store.AddRewardItem)
}

// CreatePunishment adds a punishment item
func (h *APIHandler) CreatePunishment(w http.ResponseWriter, r *http.Request) {
	h.createItem(w, r, h.store.AddPunishmentItem)
}

func (h *APIHandler) createItem(w http.ResponseWriter, r *http.Request, add func(context.Context, models.ItemInput) (models.RewardPunishItem, error)) {
	var in models.ItemInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidRequestBody})
		return
	}

	item, err := add(r.Context(), in)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

// DeleteReward removes a reward item. Existing records are kept.
func (h *APIHandler) DeleteReward(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "reward item", h.store.DeleteRewardItem)
}

// DeletePunishment removes a punishment item. Existing records are kept.
func (h *APIHandler) DeletePunishment(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "punishment item", h.store.DeletePunishmentItem)
}

// ListRecords returns all records, newest first
func (h *APIHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, nonNil(h.store.Records()))
}

// CreateRecord applies a reward or punishment to a child
func (h *APIHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var in models.RecordInput
	if err := decodeJSON(w, r, &in); err != nil {
		if errors.Is(err, models.ErrUnknownItemType) {
			respondWithServiceError(w, h.logger, err)
			return
		}
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidRequestBody})
		return
	}

	rec, err := h.store.AddRecord(r.Context(), in)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

// DeleteRecord removes a record and reverses its points
func (h *APIHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "record", h.store.DeleteRecord)
}

func (h *APIHandler) deleteByID(w http.ResponseWriter, r *http.Request, what string, del func(context.Context, string) bool) {
	if !del(r.Context(), r.PathValue("id")) {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: what + " not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export downloads the full state as a JSON attachment
func (h *APIHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.ExportData()
	if err != nil {
		respondWithError(w, h.logger, http.StatusInternalServerError, ErrInternalServerError, "Failed to export data", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, service.ExportFilename(h.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, data)
}

// Import replaces all data with an export document, sent either as the
// request body or as the "file" field of a multipart form.
func (h *APIHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var reader io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing import file"})
			return
		}
		defer file.Close()
		reader = file
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidRequestBody})
		return
	}

	if err := h.store.ImportData(r.Context(), string(data)); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, h.store.Stats())
}

// Clear removes all data
func (h *APIHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.store.ClearAllData(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Sync pushes local data to the remote backend
func (h *APIHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.hybrid == nil {
		respondJSON(w, http.StatusConflict, errorResponse{Error: ErrNotHybrid})
		return
	}

	if err := h.hybrid.SyncToCloud(r.Context()); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, h.hybrid.Status())
}

// Health reports liveness
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
