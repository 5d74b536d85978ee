package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BnJam/hyperion/internal/types"
)

func validRequest() *types.ChangeRequest {
	patch := "diff --git a/src/lib.go b/src/lib.go\n--- a/src/lib.go\n+++ b/src/lib.go\n@@ -1,1 +1,1 @@\n-old\n+new\n"
	return &types.ChangeRequest{
		TaskID: "TASK-1",
		Agent:  "dev-1",
		Changes: []types.ChangeOperation{{
			Path:      "src/lib.go",
			Operation: types.OpUpdate,
			Patch:     patch,
			PatchHash: types.PatchHash(patch),
		}},
		Checks: []string{"go test ./..."},
	}
}

func TestAcceptsValidRequest(t *testing.T) {
	result := ValidateChangeRequest(validRequest())
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestRejectsMissingFields(t *testing.T) {
	request := &types.ChangeRequest{
		TaskID: "  ",
		Agent:  "",
		Changes: []types.ChangeOperation{{
			Path:      "",
			Operation: types.OpUpdate,
			Patch:     "",
		}},
	}

	result := ValidateChangeRequest(request)
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors, "task_id is required")
	assert.Contains(t, result.Errors, "agent is required")
	assert.Contains(t, result.Errors, "checks must not be empty")
	assert.Contains(t, result.Errors, "changes[0].path is required")
	assert.Contains(t, result.Errors, "changes[0].patch is required")
}

func TestRejectsEmptyChanges(t *testing.T) {
	request := validRequest()
	request.Changes = nil
	result := ValidateChangeRequest(request)
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors, "changes must not be empty")
}

func TestRejectsUnsafePaths(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"absolute", "/etc/passwd", "changes[0].path must be relative"},
		{"parent traversal", "../secrets.txt", "changes[0].path must not contain '..'"},
		{"embedded traversal", "src/../../escape.go", "changes[0].path must not contain '..'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := validRequest()
			request.Changes[0].Path = tt.path
			request.Changes[0].PatchHash = ""
			result := ValidateChangeRequest(request)
			require.False(t, result.Valid)
			assert.Contains(t, result.Errors, tt.want)
		})
	}
}

func TestDottedFilenamesAreNotTraversal(t *testing.T) {
	request := validRequest()
	patch := "--- a/docs/notes..md\n+++ b/docs/notes..md\n@@ -1 +1 @@\n-a\n+b\n"
	request.Changes[0] = types.ChangeOperation{
		Path:      "docs/notes..md",
		Operation: types.OpUpdate,
		Patch:     patch,
	}
	result := ValidateChangeRequest(request)
	assert.True(t, result.Valid, "'..' inside a filename is not a parent segment: %v", result.Errors)
}

func TestHeaderOperationAlignment(t *testing.T) {
	tests := []struct {
		name    string
		op      types.OperationKind
		patch   string
		valid   bool
		wantErr string
	}{
		{
			name:  "add with new-file header",
			op:    types.OpAdd,
			patch: "+++ b/src/lib.go\n@@ -0,0 +1 @@\n+hi\n",
			valid: true,
		},
		{
			name:    "add missing new-file header",
			op:      types.OpAdd,
			patch:   "--- a/src/lib.go\n@@ -1 +0,0 @@\n-hi\n",
			wantErr: `changes[0].patch missing "+++ b/src/lib.go" header for add`,
		},
		{
			name:  "delete with old-file header",
			op:    types.OpDelete,
			patch: "--- a/src/lib.go\n@@ -1 +0,0 @@\n-hi\n",
			valid: true,
		},
		{
			name:    "delete missing old-file header",
			op:      types.OpDelete,
			patch:   "+++ b/src/lib.go\n@@ -0,0 +1 @@\n+hi\n",
			wantErr: `changes[0].patch missing "--- a/src/lib.go" header for delete`,
		},
		{
			name:  "update with both headers",
			op:    types.OpUpdate,
			patch: "--- a/src/lib.go\n+++ b/src/lib.go\n@@ -1 +1 @@\n-a\n+b\n",
			valid: true,
		},
		{
			name:    "update missing old-file header",
			op:      types.OpUpdate,
			patch:   "+++ b/src/lib.go\n@@ -0,0 +1 @@\n+b\n",
			wantErr: `changes[0].patch missing "--- a/src/lib.go" header for update`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := validRequest()
			request.Changes[0] = types.ChangeOperation{
				Path:      "src/lib.go",
				Operation: tt.op,
				Patch:     tt.patch,
			}
			result := ValidateChangeRequest(request)
			if tt.valid {
				assert.True(t, result.Valid, "errors: %v", result.Errors)
			} else {
				require.False(t, result.Valid)
				assert.Contains(t, result.Errors, tt.wantErr)
			}
		})
	}
}

func TestRejectsUnknownOperation(t *testing.T) {
	request := validRequest()
	request.Changes[0].Operation = "rename"
	request.Changes[0].PatchHash = ""
	result := ValidateChangeRequest(request)
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors, `changes[0].operation "rename" is not one of add, update, delete`)
}

func TestPatchHashVerification(t *testing.T) {
	request := validRequest()
	request.Changes[0].PatchHash = "deadbeef"
	result := ValidateChangeRequest(request)
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors, "changes[0].patch_hash does not match patch contents")

	// Absent hash is not an error.
	request.Changes[0].PatchHash = ""
	result = ValidateChangeRequest(request)
	assert.True(t, result.Valid)
}
