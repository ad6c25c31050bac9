package rediskeys

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIDFromInfoKey(t *testing.T) {
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{WorkerInfo("pc-1"), "pc-1", true},
		{Worker("pc-1"), "", false},
		{WorkerInbox("pc-1"), "", false},
		{"worker::info", "", false},
		{"worker:a:b:info", "", false},
	}
	for _, tt := range tests {
		got, ok := ClientIDFromInfoKey(tt.key)
		assert.Equal(t, tt.wantOK, ok, tt.key)
		assert.Equal(t, tt.want, got, tt.key)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 8, time.UTC)
	parsed := ParseTime(FormatTime(now))
	require.NotNil(t, parsed)
	assert.True(t, now.Equal(*parsed))

	assert.Nil(t, ParseTime(""))
	assert.Nil(t, ParseTime("yesterday"))
}
