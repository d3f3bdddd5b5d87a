package persistence

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackFile_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.jsonl")
	f := NewFallbackFile(path)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := newTestSnapshot()
			assert.NoError(t, f.Append(Envelope{Format: FormatV1, Kind: KindSnapshot, Snapshot: snap, WrittenAt: time.Now().UTC()}))
		}()
	}
	wg.Wait()

	envelopes, err := ReadFallback(path)
	require.NoError(t, err)
	assert.Len(t, envelopes, 20)
	for _, env := range envelopes {
		assert.NoError(t, env.Validate())
	}
}

func TestReadFallback(t *testing.T) {
	t.Run("missing file yields nothing", func(t *testing.T) {
		envelopes, err := ReadFallback(filepath.Join(t.TempDir(), "absent.jsonl"))
		require.NoError(t, err)
		assert.Empty(t, envelopes)
	})

	t.Run("corrupt line is reported with its number", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fallback.jsonl")
		require.NoError(t, os.WriteFile(path, []byte("{\"format\":\"grid-fallback/v1\"}\n\nnot json\n"), 0644))

		_, err := ReadFallback(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 3")
	})
}

func TestUnsynced(t *testing.T) {
	envelopes := []Envelope{
		{Kind: KindSnapshot, Synced: true},
		{Kind: KindSnapshot},
		{Kind: KindRegistrySnapshot},
	}
	assert.Len(t, Unsynced(envelopes), 2)
}

func TestEnvelopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr string
	}{
		{name: "wrong format", env: Envelope{Format: "v0"}, wantErr: "unsupported format"},
		{name: "unknown kind", env: Envelope{Format: FormatV1, Kind: "diff"}, wantErr: "unknown envelope kind"},
		{name: "snapshot missing", env: Envelope{Format: FormatV1, Kind: KindSnapshot}, wantErr: "has no snapshot"},
		{name: "registry missing", env: Envelope{Format: FormatV1, Kind: KindRegistrySnapshot}, wantErr: "has no registry snapshot"},
		{name: "valid", env: Envelope{Format: FormatV1, Kind: KindSnapshot, Snapshot: newTestSnapshot()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
