package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    Status
		wantErr bool
	}{
		{"pending", StatusPending, false},
		{"in_progress", StatusInProgress, false},
		{"applied", StatusApplied, false},
		{"failed", StatusFailed, false},
		{"done", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusApplied.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestPatchHash(t *testing.T) {
	// Known SHA-256 vector: empty input.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		PatchHash(""))

	// Deterministic and lowercase hex.
	h := PatchHash("+++ b/x.txt\n@@\n+hi")
	assert.Equal(t, h, PatchHash("+++ b/x.txt\n@@\n+hi"))
	assert.Len(t, h, 64)
	for _, c := range h {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'), "hash must be lowercase hex")
	}
}

func TestChangeRequestRoundTrip(t *testing.T) {
	req := ChangeRequest{
		TaskID: "REQ-1-1",
		Agent:  "agent-1",
		Changes: []ChangeOperation{{
			Path:      "src/lib.go",
			Operation: OpUpdate,
			Patch:     "--- a/src/lib.go\n+++ b/src/lib.go\n@@ -1 +1 @@\n-old\n+new",
			PatchHash: PatchHash("--- a/src/lib.go\n+++ b/src/lib.go\n@@ -1 +1 @@\n-old\n+new"),
		}},
		Checks: []string{"go vet ./..."},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded ChangeRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req, decoded)
}

func TestQueueEntryJSONOmitsEmptyLease(t *testing.T) {
	entry := QueueEntry{ID: 1, Status: StatusPending}
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "leased_until")
	assert.NotContains(t, string(data), "lease_owner")
}
