// Package sse decodes the text/event-stream wire format incrementally.
//
// The framing is defined by the Event Stream standard:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned when a completed line is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("sse: invalid UTF-8 in event stream")

// A Decoder turns a raw byte stream into an ordered sequence of events.
// Input may be fed in arbitrarily sized chunks; partial lines are buffered
// across calls and only consumed once a full line is available, so the
// produced events do not depend on how the stream was chunked.
//
// The zero value is ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte // unconsumed tail of the stream, never contains a full line

	// accumulator for the in-progress event block
	eventType string
	id        string
	retry     int64
	hasRetry  bool
	dataLines []string
	hasData   bool
}

// Feed appends p to the decoder's buffer and returns all events completed by
// it, in the order their terminating blank lines appeared. A decode error is
// terminal: the stream cannot be trusted past the offending line.
func (d *Decoder) Feed(p []byte) ([]Event, error) {
	d.buf = append(d.buf, p...)

	var events []Event
	for {
		line, rest, ok := nextLine(d.buf)
		if !ok {
			return events, nil
		}
		d.buf = rest

		ev, dispatched, err := d.consumeLine(line)
		if err != nil {
			return events, err
		}
		if dispatched {
			events = append(events, ev)
		}
	}
}

// Flush terminates the stream: a buffered partial line is treated as
// complete and a pending block that was never closed by a blank line is
// dispatched. The decoder is reset afterwards.
func (d *Decoder) Flush() ([]Event, error) {
	var events []Event
	if len(d.buf) > 0 {
		line := d.buf
		if line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		d.buf = nil
		ev, dispatched, err := d.consumeLine(line)
		if err != nil {
			d.reset()
			return nil, err
		}
		if dispatched { // the held-back "\r" was a blank line
			events = append(events, ev)
		}
	}
	if d.hasData {
		events = append(events, d.dispatch())
	}
	d.reset()
	return events, nil
}

// consumeLine processes one complete line, without its terminator.
func (d *Decoder) consumeLine(line []byte) (Event, bool, error) {
	if !utf8.Valid(line) {
		return Event{}, false, ErrInvalidUTF8
	}
	if len(line) == 0 {
		// Blank line ends the block. Blocks that carried no data
		// dispatch nothing, but the accumulator resets either way.
		if d.hasData {
			ev := d.dispatch()
			d.reset()
			return ev, true, nil
		}
		d.reset()
		return Event{}, false, nil
	}
	if line[0] == ':' { // comment
		return Event{}, false, nil
	}

	name, value := splitField(string(line))
	switch name {
	case "data":
		d.dataLines = append(d.dataLines, value)
		d.hasData = true
	case "event":
		d.eventType = value
	case "id":
		d.id = value
	case "retry":
		if ms, ok := parseRetry(value); ok {
			d.retry = ms
			d.hasRetry = true
		}
	default:
		// Unknown fields are ignored.
	}
	return Event{}, false, nil
}

func (d *Decoder) dispatch() Event {
	return Event{
		Type:     d.eventType,
		Data:     strings.Join(d.dataLines, "\n"),
		ID:       d.id,
		Retry:    d.retry,
		HasRetry: d.hasRetry,
	}
}

func (d *Decoder) reset() {
	d.eventType = ""
	d.id = ""
	d.retry = 0
	d.hasRetry = false
	d.dataLines = nil
	d.hasData = false
}

// nextLine extracts the first complete line from buf. The terminator is
// "\n", "\r\n" or a lone "\r"; a "\r" that is the last byte of buf is held
// back, since the next chunk may start with the "\n" that completes a
// "\r\n" sequence.
func nextLine(buf []byte) (line, rest []byte, ok bool) {
	for i, b := range buf {
		switch b {
		case '\n':
			return buf[:i], buf[i+1:], true
		case '\r':
			if i == len(buf)-1 {
				return nil, buf, false
			}
			if buf[i+1] == '\n' {
				return buf[:i], buf[i+2:], true
			}
			return buf[:i], buf[i+1:], true
		}
	}
	return nil, buf, false
}

// splitField splits a field line into its name and value. A single space
// after the colon belongs to the separator; a line without a colon is a
// field with an empty value.
func splitField(line string) (name, value string) {
	colon := strings.IndexByte(line, ':')
	if colon == -1 {
		return line, ""
	}
	name, value = line[:colon], line[colon+1:]
	if strings.HasPrefix(value, " ") {
		value = value[1:]
	}
	return name, value
}

func parseRetry(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	var ms int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		ms = ms*10 + int64(c-'0')
	}
	return ms, true
}
