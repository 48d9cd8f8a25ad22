package signal

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrEmptySessionID is returned when a candidate exchange is attempted before
// the seat reservation handed out a session id.
var ErrEmptySessionID = errors.New("empty session id")

// ExchangeError is an error reported by the matchmaking endpoint as
// {"error": message, "code": code}.
type ExchangeError struct {
	Code    int
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange failed (%d): %s", e.Code, e.Message)
}
