package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/veil/internal/cache"
	"github.com/dreamware/veil/internal/codec"
	"github.com/dreamware/veil/internal/persistence"
	"github.com/dreamware/veil/internal/policy"
)

func TestSnapshotInspectPrintsRestoredState(t *testing.T) {
	c := cache.New(16)
	c.Put([32]byte{1}, 0, []byte("shard"), 0)
	pol := policy.New()
	pol.Trust("alice")

	var tag codec.Tag
	tag[0] = 0xAB
	blob := persistence.SaveState(c, []codec.Tag{tag}, pol)

	path := filepath.Join(t.TempDir(), "snap.bin")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	cmd := newSnapshotInspectCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())

	text := out.String()
	require.Contains(t, text, "subscriptions: 1")
	require.Contains(t, text, "cache entries: 1")
	require.Contains(t, text, "alice")
}

func TestSnapshotInspectRejectsMissingFile(t *testing.T) {
	cmd := newSnapshotInspectCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.bin")})

	require.Error(t, cmd.Execute())
}
