package handlers

const (
	ErrInvalidRequestBody  = "Invalid request body"
	ErrInternalServerError = "Internal server error"
	ErrTooManyRequests     = "Too many requests"
	ErrNotHybrid           = "Remote sync is only available in hybrid storage mode"

	maxBodyBytes   = 1 << 20
	maxImportBytes = 16 << 20
)
