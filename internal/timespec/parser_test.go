package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

func TestParseAt(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    time.Time
		wantErr string
	}{
		{name: "duration", spec: "1h30m", want: ref.Add(-90 * time.Minute)},
		{name: "rfc3339", spec: "2025-10-29T13:00:00Z", want: time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)},
		{name: "rfc3339 with offset", spec: "2025-10-29T15:00:00+02:00", want: time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)},
		{name: "now", spec: "now", want: ref},
		{name: "empty", spec: "", wantErr: "empty time specification"},
		{name: "negative", spec: "-5m", wantErr: "negative duration"},
		{name: "garbage", spec: "yesterday", wantErr: "invalid time specification"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAt(tt.spec, ref)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.UnixMilli(), got)
		})
	}
}

func TestParseRangeAt(t *testing.T) {
	since, until, err := ParseRangeAt("2h", "1h", ref)
	require.NoError(t, err)
	assert.Equal(t, ref.Add(-2*time.Hour).UnixMilli(), since)
	assert.Equal(t, ref.Add(-time.Hour).UnixMilli(), until)

	since, until, err = ParseRangeAt("", "", ref)
	require.NoError(t, err)
	assert.Zero(t, since)
	assert.Zero(t, until)

	_, _, err = ParseRangeAt("1h", "2h", ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--since must be before --until")

	_, _, err = ParseRangeAt("bogus", "", ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --since")

	_, _, err = ParseRangeAt("", "bogus", ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --until")
}

func TestParseUsesWallClock(t *testing.T) {
	before := time.Now().Add(-time.Minute).UnixMilli()
	got, err := Parse("1m")
	require.NoError(t, err)
	assert.InDelta(t, before, got, 1000)
}
