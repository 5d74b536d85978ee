package apply

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BnJam/hyperion/internal/types"
)

func TestApplyAddCreatesFileWithParents(t *testing.T) {
	root := t.TempDir()
	a := New(root)

	request := &types.ChangeRequest{
		TaskID: "T1",
		Agent:  "a1",
		Changes: []types.ChangeOperation{{
			Path:      "src/nested/hello.go",
			Operation: types.OpAdd,
			Patch:     "+++ b/src/nested/hello.go\n@@ -0,0 +2 @@\n+package nested\n+// hello\n",
		}},
		Checks: []string{"true"},
	}
	require.NoError(t, a.ApplyChangeRequest(context.Background(), request))

	got, err := os.ReadFile(filepath.Join(root, "src/nested/hello.go"))
	require.NoError(t, err)
	assert.Equal(t, "package nested\n// hello\n", string(got))
}

func TestApplyUpdateMergesPatch(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(target, []byte("package main\nvar old = 1\n"), 0o644))

	a := New(root)
	request := &types.ChangeRequest{
		TaskID: "T1", Agent: "a1",
		Changes: []types.ChangeOperation{{
			Path:      "main.go",
			Operation: types.OpUpdate,
			Patch:     "--- a/main.go\n+++ b/main.go\n@@ -2 +2 @@\n-var old = 1\n+var old = 2\n",
		}},
		Checks: []string{"true"},
	}
	require.NoError(t, a.ApplyChangeRequest(context.Background(), request))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "package main\nvar old = 2\n", string(got))
}

func TestApplyUpdateMissingTargetFails(t *testing.T) {
	a := New(t.TempDir())
	request := &types.ChangeRequest{
		TaskID: "T1", Agent: "a1",
		Changes: []types.ChangeOperation{{
			Path:      "absent.go",
			Operation: types.OpUpdate,
			Patch:     "--- a/absent.go\n+++ b/absent.go\n@@ -1 +1 @@\n-a\n+b\n",
		}},
		Checks: []string{"true"},
	}
	err := a.ApplyChangeRequest(context.Background(), request)
	require.Error(t, err)

	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, "absent.go", applyErr.Path)
	assert.Equal(t, types.OpUpdate, applyErr.Operation)
	assert.NotEmpty(t, applyErr.PatchExcerpt)
}

func TestApplyDelete(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "gone.txt")
	require.NoError(t, os.WriteFile(target, []byte("x\n"), 0o644))

	a := New(root)
	request := &types.ChangeRequest{
		TaskID: "T1", Agent: "a1",
		Changes: []types.ChangeOperation{{
			Path:      "gone.txt",
			Operation: types.OpDelete,
			Patch:     "--- a/gone.txt\n@@ -1 +0,0 @@\n-x\n",
		}},
		Checks: []string{"true"},
	}
	require.NoError(t, a.ApplyChangeRequest(context.Background(), request))
	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))

	// Deleting again fails: the target is gone.
	err = a.ApplyChangeRequest(context.Background(), request)
	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
}

func TestApplyRejectsEscapingPaths(t *testing.T) {
	a := New(t.TempDir())
	request := &types.ChangeRequest{
		TaskID: "T1", Agent: "a1",
		Changes: []types.ChangeOperation{{
			Path:      "../outside.txt",
			Operation: types.OpAdd,
			Patch:     "+++ b/../outside.txt\n@@ -0,0 +1 @@\n+x\n",
		}},
		Checks: []string{"true"},
	}
	err := a.ApplyChangeRequest(context.Background(), request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestApplyFansOutAcrossChanges(t *testing.T) {
	root := t.TempDir()
	a := New(root)

	changes := make([]types.ChangeOperation, 6)
	for i := range changes {
		name := string(rune('a'+i)) + ".txt"
		changes[i] = types.ChangeOperation{
			Path:      name,
			Operation: types.OpAdd,
			Patch:     "+++ b/" + name + "\n@@ -0,0 +1 @@\n+" + name + "\n",
		}
	}
	request := &types.ChangeRequest{TaskID: "T1", Agent: "a1", Changes: changes, Checks: []string{"true"}}
	require.NoError(t, a.ApplyChangeRequest(context.Background(), request))

	for i := range changes {
		name := string(rune('a'+i)) + ".txt"
		got, err := os.ReadFile(filepath.Join(root, name))
		require.NoError(t, err)
		assert.Equal(t, name+"\n", string(got))
	}
}
