package esc

import (
	"context"
)

// Header carries opaque metadata attached to an Event.
// Typical keys include tenant_id, user_id, correlation_id, and trace_id.
type Header map[string]any

// Merge returns a new Header that combines the receiver with the given maps.
// It is safe to call on a nil receiver. Later maps take precedence over earlier ones.
// The receiver is not modified.
func (h Header) Merge(hs ...Header) Header {
	out := make(Header)

	if h != nil {
		for k, v := range h {
			out[k] = v
		}
	}

	for _, other := range hs {
		for k, v := range other {
			out[k] = v
		}
	}
	return out
}

// HeaderExtractor builds a Header from a context.
// Stores can supply their own extractor that knows about private context
// keys (tenant_id, user_id, correlation_id, trace_id, etc.); the result is
// merged under any header explicitly set on the event via AddEvent, which
// takes precedence.
type HeaderExtractor func(ctx context.Context) Header
