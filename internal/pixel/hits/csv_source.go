package hits

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVSource reads "row,col,inj,tot" records in chunks. A first line whose
// first field is not an integer is treated as a header and skipped.
type CSVSource struct {
	r         *csv.Reader
	chunkSize int
	buf       []Event
	line      int
}

// NewCSVSource wraps r. chunkSize must be positive.
func NewCSVSource(r io.Reader, chunkSize int) (*CSVSource, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("hits: chunk size must be positive, got %d", chunkSize)
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true
	return &CSVSource{r: cr, chunkSize: chunkSize, buf: make([]Event, 0, chunkSize)}, nil
}

// Next implements Source.
func (s *CSVSource) Next(ctx context.Context) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.buf = s.buf[:0]
	for len(s.buf) < s.chunkSize {
		rec, err := s.r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("hits: read csv: %w", err)
		}
		s.line++
		ev, err := parseRecord(rec)
		if err != nil {
			if s.line == 1 && isHeader(rec) {
				continue
			}
			return nil, fmt.Errorf("hits: csv line %d: %w", s.line, err)
		}
		s.buf = append(s.buf, ev)
	}
	if len(s.buf) == 0 {
		return nil, io.EOF
	}
	return s.buf, nil
}

func parseRecord(rec []string) (Event, error) {
	var v [4]int
	for i, f := range rec {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Event{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v[i] = n
	}
	return Event{Row: v[0], Col: v[1], Injection: v[2], Response: v[3]}, nil
}

func isHeader(rec []string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	return err != nil
}
