package gateway

import "fmt"

// ThrottledError reports an admission rejection with the whole seconds the
// caller must wait before one token refills.
type ThrottledError struct {
	RetryAfter int
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfter)
}
