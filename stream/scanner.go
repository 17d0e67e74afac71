// Package stream consumes an agent event stream on the caller side:
// it reassembles server-sent events from the byte transport and folds
// them into caller-visible state.
package stream

import (
	"bufio"
	"io"
	"strings"
)

// RawEvent is one reassembled transport event before decoding.
type RawEvent struct {
	Event string
	Data  string
	ID    string
}

const maxFrameBytes = 1 << 20

// Scanner reads blank-line-delimited event/data frames from a byte
// stream. bufio handles partial reads, so a frame whose event: line
// and data: line arrive in separate transport chunks still yields one
// event.
type Scanner struct {
	scanner *bufio.Scanner
}

// NewScanner wraps r for event scanning.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	return &Scanner{scanner: sc}
}

// Scan reads the next event. It returns io.EOF at end of stream.
// Lines without a field separator and comment lines are skipped;
// multiple data lines in one frame are joined with newlines.
func (s *Scanner) Scan() (*RawEvent, error) {
	ev := &RawEvent{}
	var sawField bool
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if sawField {
				break
			}
			// Leading blank lines between frames.
			continue
		}

		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}
		if colon == 0 {
			// Comment line.
			continue
		}

		field := line[:colon]
		value := strings.TrimPrefix(line[colon+1:], " ")
		switch field {
		case "event":
			ev.Event = value
			sawField = true
		case "data":
			if ev.Data != "" {
				ev.Data += "\n" + value
			} else {
				ev.Data = value
			}
			sawField = true
		case "id":
			ev.ID = value
			sawField = true
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	if !sawField {
		return nil, io.EOF
	}
	return ev, nil
}
