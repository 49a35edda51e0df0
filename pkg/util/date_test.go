package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-01-15", time.UTC)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("15-01-2026", time.UTC)
	require.Error(t, err)

	_, err = ParseDate("", nil)
	require.Error(t, err)
}

func TestDayWindow(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	d := time.Date(2026, 1, 15, 23, 30, 0, 0, jakarta)

	start, end := DayWindow(d, jakarta)
	require.Equal(t, time.Date(2026, 1, 14, 17, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC), end)
	require.Equal(t, time.UTC, start.Location())
}

func TestTruncate(t *testing.T) {
	ts := time.Date(2026, 1, 15, 1, 0, 0, 0, time.UTC)
	jakarta := time.FixedZone("WIB", 7*60*60)

	require.Equal(t, "2026-01-15", FormatDate(Truncate(ts, jakarta)))
	require.Equal(t, "2026-01-14", FormatDate(Truncate(ts, time.FixedZone("PST", -8*60*60))))
}
