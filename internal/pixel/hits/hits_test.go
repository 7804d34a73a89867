package hits

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAxis(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []int
		want []int
	}{
		{"single", []int{7}, []int{7}},
		{"inclusive range", []int{1, 5}, []int{1, 2, 3, 4, 5}},
		{"explicit list", []int{10, 2, 6, 2}, []int{2, 6, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			axis, err := ParseAxis(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, axis.Levels())
		})
	}

	_, err := ParseAxis(nil)
	assert.ErrorIs(t, err, ErrEmptyAxis)
}

func TestRangeAxis(t *testing.T) {
	t.Parallel()

	axis, err := RangeAxis(1, 10, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5, 9}, axis.Levels())
	assert.Equal(t, 1, axis.Min())
	assert.Equal(t, 9, axis.Max())
	assert.Equal(t, 9, axis.Span())
	assert.Equal(t, 3, axis.Len())

	_, err = RangeAxis(1, 10, 0)
	assert.Error(t, err)
	_, err = RangeAxis(10, 1, 1)
	assert.Error(t, err)
}

func TestAxisLevelsIsACopy(t *testing.T) {
	t.Parallel()

	axis, err := RangeAxis(1, 3, 1)
	require.NoError(t, err)
	levels := axis.Levels()
	levels[0] = 99
	assert.Equal(t, 1, axis.Min())
}

func TestSliceSource(t *testing.T) {
	t.Parallel()

	events := make([]Event, 7)
	for i := range events {
		events[i] = Event{Row: i}
	}
	src := NewSliceSource(events, 3)

	var sizes []int
	for {
		chunk, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, len(chunk))
	}
	assert.Equal(t, []int{3, 3, 1}, sizes)
}

func TestSliceSourceCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSliceSource([]Event{{}}, 1).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVSource(t *testing.T) {
	t.Parallel()

	in := "row,col,inj,tot\n1,2,30,12\n3, 4, 31, 13\n5,6,32,14\n"
	src, err := NewCSVSource(strings.NewReader(in), 2)
	require.NoError(t, err)

	first, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Event{
		{Row: 1, Col: 2, Injection: 30, Response: 12},
		{Row: 3, Col: 4, Injection: 31, Response: 13},
	}, first)

	second, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Event{{Row: 5, Col: 6, Injection: 32, Response: 14}}, second)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestCSVSourceBadRecord(t *testing.T) {
	t.Parallel()

	src, err := NewCSVSource(strings.NewReader("1,2,3,4\n1,x,3,4\n"), 10)
	require.NoError(t, err)
	_, err = src.Next(context.Background())
	assert.ErrorContains(t, err, "csv line 2")

	_, err = NewCSVSource(strings.NewReader(""), 0)
	assert.Error(t, err)
}
