package attach

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestStageSniffsAndIssuesHandle(t *testing.T) {
	r := NewRegistry(0, nil)
	path := writeFile(t, "photo.bin", pngHeader)

	s, err := r.Stage("bob", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.Handle, HandlePrefix))
	assert.Equal(t, "image/png", s.MIME)
	assert.Equal(t, "photo.bin", s.Name)
	assert.Equal(t, int64(len(pngHeader)), s.Size)
	assert.True(t, r.Live(s.Handle))

	got, err := r.Get(s.Handle)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestStageFallsBackToExtension(t *testing.T) {
	r := NewRegistry(0, nil)
	s, err := r.Stage("bob", writeFile(t, "notes.pdf", []byte("no magic here")))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", s.MIME)
}

func TestStageRejects(t *testing.T) {
	r := NewRegistry(4, nil)

	_, err := r.Stage("bob", writeFile(t, "big.txt", []byte("12345")))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = r.Stage("bob", t.TempDir())
	assert.ErrorIs(t, err, ErrNotFile)

	_, err = r.Stage("bob", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, r.Count())
}

func TestRevokeRemovesFromDraft(t *testing.T) {
	r := NewRegistry(0, nil)
	a, _ := r.Stage("bob", writeFile(t, "a.txt", []byte("a")))
	b, _ := r.Stage("bob", writeFile(t, "b.txt", []byte("b")))

	assert.True(t, r.Revoke(a.Handle))
	assert.False(t, r.Revoke(a.Handle))
	assert.False(t, r.Live(a.Handle))
	_, err := r.Get(a.Handle)
	assert.ErrorIs(t, err, ErrRevoked)

	draft := r.Draft("bob")
	require.Len(t, draft, 1)
	assert.Equal(t, b.Handle, draft[0].Handle)
}

func TestTakeKeepsHandlesLive(t *testing.T) {
	r := NewRegistry(0, nil)
	a, _ := r.Stage("bob", writeFile(t, "a.txt", []byte("a")))

	taken := r.Take("bob")
	require.Len(t, taken, 1)
	assert.Empty(t, r.Draft("bob"))
	assert.True(t, r.Live(a.Handle))

	// Released after the message is confirmed.
	assert.Equal(t, 1, r.RevokeMany([]string{a.Handle, "preview://unknown"}))
	assert.False(t, r.Live(a.Handle))
}

func TestRevokeDraftAndAll(t *testing.T) {
	r := NewRegistry(0, nil)
	a, _ := r.Stage("bob", writeFile(t, "a.txt", []byte("a")))
	c, _ := r.Stage("carol", writeFile(t, "c.txt", []byte("c")))

	assert.Equal(t, []string{a.Handle}, r.RevokeDraft("bob"))
	assert.False(t, r.Live(a.Handle))
	assert.True(t, r.Live(c.Handle))

	assert.Equal(t, 1, r.RevokeAll())
	assert.False(t, r.Live(c.Handle))
	assert.Empty(t, r.Draft("carol"))
}

func TestOpenRechecksSize(t *testing.T) {
	r := NewRegistry(3, nil)
	path := writeFile(t, "a.txt", []byte("abc"))
	s, err := r.Stage("bob", path)
	require.NoError(t, err)

	f, err := r.Open(s.Path)
	require.NoError(t, err)
	_ = f.Close()

	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0644))
	_, err = r.Open(s.Path)
	assert.ErrorIs(t, err, ErrTooLarge)
}
