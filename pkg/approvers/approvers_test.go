package approvers_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cflux/flow/pkg/approvers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groupsYAML = `
groups:
  finance: [u1, u2]
  managers: [u3, "group:finance"]
  loop: ["group:loop", u9]
`

func TestDirectory_Resolve(t *testing.T) {
	dir, err := approvers.ParseDirectory([]byte(groupsYAML))
	require.NoError(t, err)

	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"plain users", []string{"u5", "u6"}, []string{"u5", "u6"}},
		{"group", []string{"group:finance"}, []string{"u1", "u2"}},
		{"nested group", []string{"group:managers"}, []string{"u3", "u1", "u2"}},
		{"duplicates removed", []string{"u2", "group:finance", "u2"}, []string{"u2", "u1"}},
		{"self reference", []string{"group:loop"}, []string{"u9"}},
		{"blank entries skipped", []string{" ", "u1"}, []string{"u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dir.Resolve(t.Context(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirectory_ResolveErrors(t *testing.T) {
	dir := approvers.NewDirectory()

	_, err := dir.Resolve(t.Context(), []string{"group:nobody"})
	require.ErrorIs(t, err, approvers.ErrUnknownGroup)

	_, err = dir.Resolve(t.Context(), nil)
	require.ErrorIs(t, err, approvers.ErrNoApprovers)
}

func TestLoadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(groupsYAML), 0o600))

	dir, err := approvers.LoadDirectory(path)
	require.NoError(t, err)
	assert.Len(t, dir.Groups, 3)

	_, err = approvers.LoadDirectory(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = approvers.ParseDirectory([]byte("groups: [not, a, map]"))
	require.Error(t, err)
}
