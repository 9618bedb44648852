package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying crawl failures. These degrade to per-case or
// per-document failures; auth errors (see the auth package) are run-fatal.
var (
	// ErrParse means the portal HTML did not match the expected structure.
	ErrParse = errors.New("unexpected portal page structure")

	// ErrMaxPagesReached stops pagination at the safety cap. Search
	// degrades it to a warning instead of failing the condition.
	ErrMaxPagesReached = errors.New("pagination cap reached")
)

// ParseError wraps ErrParse with page context.
func ParseError(page string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrParse, page, cause)
}
