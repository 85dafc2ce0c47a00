package handlers

import "net/http"

// NewRouter registers every route and wraps the mux with request logging.
// metrics may be nil.
func NewRouter(api *APIHandler, mw *Middleware, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", api.State)
	mux.HandleFunc("GET /api/stats", api.Stats)
	mux.HandleFunc("GET /api/status", api.Status)

	// Children
	mux.HandleFunc("GET /api/children", api.ListChildren)
	mux.HandleFunc("POST /api/children", mw.RateLimit(api.CreateChild))
	mux.HandleFunc("PUT /api/children/{id}", mw.RateLimit(api.UpdateChild))
	mux.HandleFunc("DELETE /api/children/{id}", mw.RateLimit(api.DeleteChild))
	mux.HandleFunc("GET /api/children/{id}/records", api.ChildRecords)

	// Catalog
	mux.HandleFunc("GET /api/rewards", api.ListRewards)
	mux.HandleFunc("POST /api/rewards", mw.RateLimit(api.CreateReward))
	mux.HandleFunc("DELETE /api/rewards/{id}", mw.RateLimit(api.DeleteReward))
	mux.HandleFunc("GET /api/punishments", api.ListPunishments)
	mux.HandleFunc("POST /api/punishments", mw.RateLimit(api.CreatePunishment))
	mux.HandleFunc("DELETE /api/punishments/{id}", mw.RateLimit(api.DeletePunishment))

	// Records
	mux.HandleFunc("GET /api/records", api.ListRecords)
	mux.HandleFunc("POST /api/records", mw.RateLimit(api.CreateRecord))
	mux.HandleFunc("DELETE /api/records/{id}", mw.RateLimit(api.DeleteRecord))

	// Data management
	mux.HandleFunc("GET /api/export", api.Export)
	mux.HandleFunc("POST /api/import", mw.RateLimit(api.Import))
	mux.HandleFunc("POST /api/clear", mw.RateLimit(api.Clear))
	mux.HandleFunc("POST /api/sync", mw.RateLimit(api.Sync))

	mux.HandleFunc("GET /healthz", api.Health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return mw.Logging(mux)
}
