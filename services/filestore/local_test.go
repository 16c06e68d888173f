package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Save(t *testing.T) {
	root := t.TempDir()
	store := NewLocal(root)

	ref, err := store.Save(context.Background(), "certificates", "../../Award.PDF", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "/media/certificates/"), ref)
	assert.True(t, strings.HasSuffix(ref, ".pdf"), ref)

	data, err := os.ReadFile(filepath.Join(root, "certificates", filepath.Base(ref)))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	other, err := store.Save(context.Background(), "certificates", "Award.PDF", strings.NewReader("x"))
	require.NoError(t, err)
	assert.NotEqual(t, ref, other)

	tests := []struct {
		name     string
		category string
	}{
		{name: "empty category", category: ""},
		{name: "parent dir", category: ".."},
		{name: "nested", category: "a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Save(context.Background(), tt.category, "f.png", strings.NewReader("x"))
			assert.Error(t, err)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Save(ctx, "certificates", "late.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
	entries, err := os.ReadDir(filepath.Join(root, "certificates"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
