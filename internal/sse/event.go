package sse

import (
	"fmt"
	"strings"
)

// Event is a single decoded server-sent event block.
type Event struct {
	// Type is the value of the "event" field, empty when the block had none.
	Type string
	// Data is the value of all "data" lines in the block, joined with "\n".
	Data string
	// ID is the value of the "id" field, empty when the block had none.
	ID string
	// Retry is the value of the "retry" field in milliseconds.
	// It is only meaningful when HasRetry is true.
	Retry    int64
	HasRetry bool
}

// Encode returns the event in SSE wire format, terminated by the blank line
// that ends the block. Decoding the result yields the event back.
func (e Event) Encode() []byte {
	var b strings.Builder
	if e.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Type)
	}
	if e.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", e.ID)
	}
	if e.HasRetry {
		fmt.Fprintf(&b, "retry: %d\n", e.Retry)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')
	return []byte(b.String())
}
