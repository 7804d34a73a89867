package hits

import (
	"context"
	"io"
)

// SliceSource replays an in-memory event slice in fixed-size chunks.
// Useful for tests and for decoders that already hold a bounded batch.
type SliceSource struct {
	events    []Event
	chunkSize int
	pos       int
}

// NewSliceSource returns a source over events. A non-positive chunkSize
// yields the whole slice as a single chunk.
func NewSliceSource(events []Event, chunkSize int) *SliceSource {
	if chunkSize <= 0 {
		chunkSize = len(events)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}
	return &SliceSource{events: events, chunkSize: chunkSize}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	end := s.pos + s.chunkSize
	if end > len(s.events) {
		end = len(s.events)
	}
	chunk := s.events[s.pos:end]
	s.pos = end
	return chunk, nil
}
