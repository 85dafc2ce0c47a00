package remote

import "fmt"

// Error is returned when the backend answers with a non-2xx status
type Error struct {
	Op         string
	Table      string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s %s: status %d: %s", e.Op, e.Table, e.StatusCode, e.Body)
}
