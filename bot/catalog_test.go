package bot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) (*Catalog, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := NewCatalog(dir)
	require.NoError(t, err)
	return c, dir
}

func TestCatalogBuiltins(t *testing.T) {
	c, _ := newTestCatalog(t)

	bots := c.List()
	names := make([]string, len(bots))
	for i, b := range bots {
		names[i] = b.Name
	}
	require.Equal(t, []string{"greedy", "random"}, names, "List should return the builtins sorted by name")

	for _, b := range bots {
		require.Equal(t, KindBuiltin, b.Kind)
		require.True(t, b.Vetted)
		source, err := c.Source(b.Name)
		require.NoError(t, err)
		require.NotEmpty(t, source)
	}
}

func TestCatalogUpload(t *testing.T) {
	t.Run("accepts a clean bot", func(t *testing.T) {
		c, dir := newTestCatalog(t)

		desc, violations, err := c.Upload("corner_seeker.lua", []byte(cleanBot), "198.51.100.7:4242")
		require.NoError(t, err)
		require.Empty(t, violations)
		require.Equal(t, "corner_seeker", desc.Name)
		require.Equal(t, KindUploaded, desc.Kind)
		require.True(t, desc.Vetted)
		require.NotEmpty(t, desc.UploadTime)

		source, err := c.Source("corner_seeker")
		require.NoError(t, err)
		require.Equal(t, cleanBot, source)

		// The descriptor survives a catalog reload.
		c2, err := NewCatalog(dir)
		require.NoError(t, err)
		got, ok := c2.Get("corner_seeker")
		require.True(t, ok)
		require.Equal(t, desc, got)
	})

	t.Run("rejects and quarantines a flagged bot", func(t *testing.T) {
		c, dir := newTestCatalog(t)

		evil := `local o = require("os")` + "\n" + cleanBot
		_, violations, err := c.Upload("evil.lua", []byte(evil), "203.0.113.9:1234")
		require.NoError(t, err, "A rejection is not a storage error")
		require.NotEmpty(t, violations)
		require.Equal(t, ViolationDangerousImport, violations[0].Kind)

		_, ok := c.Get("evil")
		require.False(t, ok, "A rejected bot must never enter the catalog")

		entries, err := c.SecurityLog().Recent(0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "evil.lua", entries[0].Filename)
		require.Equal(t, "203.0.113.9:1234", entries[0].RemoteAddr)
		require.NotEmpty(t, entries[0].Violations)

		quarantined, err := os.ReadFile(entries[0].QuarantinePath)
		require.NoError(t, err)
		require.Equal(t, evil, string(quarantined))
		require.Equal(t, filepath.Join(dir, "quarantine"), filepath.Dir(entries[0].QuarantinePath))
	})

	t.Run("refuses duplicate names", func(t *testing.T) {
		c, _ := newTestCatalog(t)

		_, _, err := c.Upload("dup.lua", []byte(cleanBot), "")
		require.NoError(t, err)
		_, _, err = c.Upload("dup.lua", []byte(cleanBot), "")
		require.ErrorIs(t, err, ErrBotExists)

		_, _, err = c.Upload("random.lua", []byte(cleanBot), "")
		require.ErrorIs(t, err, ErrBotExists, "Uploads cannot shadow a builtin")
	})

	t.Run("refuses non-lua filenames", func(t *testing.T) {
		c, _ := newTestCatalog(t)
		_, _, err := c.Upload("bot.py", []byte("print('hi')"), "")
		require.Error(t, err)
	})
}

func TestCatalogRemove(t *testing.T) {
	c, _ := newTestCatalog(t)

	desc, _, err := c.Upload("shortlived.lua", []byte(cleanBot), "")
	require.NoError(t, err)

	require.NoError(t, c.Remove("shortlived"))
	_, ok := c.Get("shortlived")
	require.False(t, ok)
	_, err = os.Stat(desc.Path)
	require.True(t, os.IsNotExist(err), "Removing a bot should delete its source file")

	require.ErrorIs(t, c.Remove("shortlived"), ErrBotNotFound)
	require.ErrorIs(t, c.Remove("random"), ErrBuiltinBot)
}

func TestSecurityLogOrdering(t *testing.T) {
	log, err := NewSecurityLog(t.TempDir())
	require.NoError(t, err)

	v := []Violation{{Kind: ViolationDangerousImport, Description: "x"}}
	for _, name := range []string{"a.lua", "b.lua", "c.lua"} {
		_, err := log.Record(name, []byte("-- "+name), v, "192.0.2.1:1")
		require.NoError(t, err)
	}

	entries, err := log.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "c.lua", entries[0].Filename, "Most recent entry comes first")
	require.Equal(t, "b.lua", entries[1].Filename)
}
