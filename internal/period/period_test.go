package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor_CalendarAlignment(t *testing.T) {
	at := time.Date(2010, 5, 15, 13, 30, 45, 0, time.UTC)

	tests := []struct {
		kind  Kind
		start time.Time
		end   time.Time
		label string
	}{
		{Minute, time.Date(2010, 5, 15, 13, 30, 0, 0, time.UTC), time.Date(2010, 5, 15, 13, 31, 0, 0, time.UTC), "201005151330"},
		{Hour, time.Date(2010, 5, 15, 13, 0, 0, 0, time.UTC), time.Date(2010, 5, 15, 14, 0, 0, 0, time.UTC), "2010051513"},
		{Day, time.Date(2010, 5, 15, 0, 0, 0, 0, time.UTC), time.Date(2010, 5, 16, 0, 0, 0, 0, time.UTC), "20100515"},
		{Week, time.Date(2010, 5, 10, 0, 0, 0, 0, time.UTC), time.Date(2010, 5, 17, 0, 0, 0, 0, time.UTC), "20100510"},
		{Month, time.Date(2010, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC), "201005"},
		{Year, time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC), "2010"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			w := For(tt.kind, at)
			assert.Equal(t, tt.kind, w.Kind)
			assert.Equal(t, tt.start, w.Start)
			assert.Equal(t, tt.end, w.End)
			assert.Equal(t, tt.label, w.Label)
			assert.True(t, w.Bounded())
			assert.True(t, w.Contains(at))
			assert.False(t, w.Contains(w.End))
		})
	}
}

func TestFor_Eternity(t *testing.T) {
	w1 := For(Eternity, time.Date(2010, 5, 15, 13, 30, 0, 0, time.UTC))
	w2 := For(Eternity, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.False(t, w1.Bounded())
	assert.True(t, w1.Start.IsZero())
	assert.True(t, w1.End.IsZero())
	assert.Equal(t, EternityLabel, w1.Label)
	assert.Equal(t, w1.Label, w2.Label)
	assert.True(t, w1.Contains(time.Unix(0, 0)))
}

func TestFor_Deterministic(t *testing.T) {
	at := time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)
	for _, kind := range Kinds {
		assert.Equal(t, For(kind, at), For(kind, at), string(kind))
	}
}

func TestFor_EndIsNextWindowStart(t *testing.T) {
	at := time.Date(2010, 12, 31, 23, 59, 0, 0, time.UTC)
	for _, kind := range Kinds {
		if kind == Eternity {
			continue
		}
		w := For(kind, at)
		next := For(kind, w.End)
		assert.Equal(t, w.End, next.Start, string(kind))
	}
}

func TestFor_WeekStartsMonday(t *testing.T) {
	// 2010-05-16 is a Sunday; its week began Monday the 10th.
	w := For(Week, time.Date(2010, 5, 16, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Monday, w.Start.Weekday())
	assert.Equal(t, "20100510", w.Label)

	// A Monday belongs to its own week.
	w = For(Week, time.Date(2010, 5, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "20100510", w.Label)
}

func TestFor_NonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 02:30 +05 is 21:30 UTC of the previous day.
	w := For(Day, time.Date(2010, 5, 15, 2, 30, 0, 0, loc))
	assert.Equal(t, "20100514", w.Label)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Month ")
	require.NoError(t, err)
	assert.Equal(t, Month, k)

	_, err = ParseKind("fortnight")
	assert.Error(t, err)

	assert.True(t, Eternity.Valid())
	assert.False(t, Kind("decade").Valid())
}
