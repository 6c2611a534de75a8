package assignment

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryWindowAbsentBoundsAreUnbounded(t *testing.T) {
	r := httptest.NewRequest("GET", "/principals/1/history", nil)
	from, to, err := historyWindow(r)
	require.NoError(t, err)
	assert.True(t, from.IsZero(), "absent from must stay unbounded")
	assert.True(t, to.IsZero(), "absent to must stay unbounded")
}

func TestHistoryWindowParsesBounds(t *testing.T) {
	r := httptest.NewRequest("GET", "/principals/1/history?from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z", nil)
	from, to, err := historyWindow(r)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestHistoryWindowRejectsMalformedBound(t *testing.T) {
	r := httptest.NewRequest("GET", "/principals/1/history?from=yesterday", nil)
	_, _, err := historyWindow(r)
	require.Error(t, err)
}
