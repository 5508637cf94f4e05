package httpmcp

import (
	"fmt"
	"io"
)

// sseEvent is one text frame on the streaming connection:
//
//	id: <id>\nevent: <event>\ndata: <data>\n\n
//
// ID and Event are omitted when empty. Data must not contain newlines; the
// gateway only ever emits compact JSON payloads.
type sseEvent struct {
	ID    string
	Event string
	Data  []byte
}

func (e sseEvent) writeTo(w io.Writer) error {
	if e.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", e.ID); err != nil {
			return err
		}
	}
	if e.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", e.Event); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", e.Data)
	return err
}
