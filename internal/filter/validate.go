package filter

import (
	"fmt"

	"github.com/roach88/bakery/internal/event"
)

// ValidationError describes a filter the compiler refuses to run.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid filter %s: %s", e.Field, e.Message)
}

// Validate checks the parts of a filter that decoding cannot: the order
// hint, the limit, and tag names on programmatically built filters.
func (f Filter) Validate() error {
	switch f.Order {
	case OrderDefault, OrderRank, OrderCreatedAt:
	default:
		return &ValidationError{Field: "order", Message: fmt.Sprintf("unknown order %q", f.Order)}
	}

	if f.Limit < 0 {
		return &ValidationError{Field: "limit", Message: fmt.Sprintf("negative limit %d", f.Limit)}
	}

	for name := range f.Tags {
		if !event.IsIndexableTagName(name) {
			return &ValidationError{Field: "#" + name, Message: "tag name must be one character"}
		}
	}
	for name := range f.AndTags {
		if !event.IsIndexableTagName(name) {
			return &ValidationError{Field: "&" + name, Message: "tag name must be one character"}
		}
	}
	return nil
}
