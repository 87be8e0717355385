package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSince(t *testing.T) {
	for _, raw := range []string{
		"2026-08-20",
		"2026-08-20 09:30:00",
		"2026-08-20T09:30:00Z",
	} {
		parsed, err := parseSince(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, 2026, parsed.Year())
		assert.Equal(t, time.August, parsed.Month())
		assert.Equal(t, 20, parsed.Day())
	}
}

func TestParseSince_Rejects(t *testing.T) {
	for _, raw := range []string{"", "yesterday", "20/08/2026"} {
		_, err := parseSince(raw)
		assert.Error(t, err, raw)
	}
}
