package diskstore

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imagefetch/impl/cachekey"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetOutput(io.Discard)
}

func TestPutGet(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 1, 0)
	require.NoError(t, err)
	key := cachekey.KeyFor("http://example.com/a.png")
	require.NoError(t, s.Put(key, []byte("hello")))
	got, err := s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	assert.FileExists(t, filepath.Join(dir, "v1", key[:2], key))
	assert.Equal(t, int64(5), s.Size())
}

func TestGetMissing(t *testing.T) {
	s, err := Open(t.TempDir(), 1, 0)
	require.NoError(t, err)
	_, err = s.Get(cachekey.KeyFor("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidKey(t *testing.T) {
	s, err := Open(t.TempDir(), 1, 0)
	require.NoError(t, err)
	for _, key := range []string{"", "../x", "a/b", ".tmp-abc"} {
		_, err := s.Get(key)
		assert.Error(t, err, key)
		assert.NotErrorIs(t, err, ErrNotFound, key)
	}
}

func TestWriterInvisibleUntilCommit(t *testing.T) {
	s, err := Open(t.TempDir(), 1, 0)
	require.NoError(t, err)
	key := cachekey.KeyFor("u")
	w, err := s.Writer(key)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	_, err = s.Get(key)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, w.Commit())
	got, err := s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "partial", string(got))
	assert.Error(t, w.Commit())
	assert.NoError(t, w.Abort())
}

func TestAbortLeavesNothing(t *testing.T) {
	s, err := Open(t.TempDir(), 1, 0)
	require.NoError(t, err)
	key := cachekey.KeyFor("u")
	w, err := s.Writer(key)
	require.NoError(t, err)
	_, err = w.Write([]byte("bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())
	_, err = s.Get(key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, countFiles(t, s.Dir()))
	assert.Equal(t, int64(0), s.Size())
}

func TestReplaceAdjustsSize(t *testing.T) {
	s, err := Open(t.TempDir(), 1, 0)
	require.NoError(t, err)
	key := cachekey.KeyFor("u")
	require.NoError(t, s.Put(key, []byte("12345")))
	require.NoError(t, s.Put(key, []byte("12")))
	assert.Equal(t, int64(2), s.Size())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	s, err := Open(t.TempDir(), 1, 25)
	require.NoError(t, err)
	a, b, c := cachekey.KeyFor("a"), cachekey.KeyFor("b"), cachekey.KeyFor("c")
	require.NoError(t, s.Put(a, make([]byte, 10)))
	require.NoError(t, s.Put(b, make([]byte, 10)))
	// make 'a' older than 'b' then touch it with a Get so 'b' becomes the oldest
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(mustPath(t, s, a), past, past))
	require.NoError(t, os.Chtimes(mustPath(t, s, b), past.Add(time.Minute), past.Add(time.Minute)))
	_, err = s.Get(a)
	require.NoError(t, err)
	require.NoError(t, s.Put(c, make([]byte, 10)))
	_, err = s.Get(b)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(a)
	assert.NoError(t, err)
	_, err = s.Get(c)
	assert.NoError(t, err)
	assert.Equal(t, int64(20), s.Size())
}

func TestDeleteAll(t *testing.T) {
	s, err := Open(t.TempDir(), 1, 0)
	require.NoError(t, err)
	key := cachekey.KeyFor("u")
	require.NoError(t, s.Put(key, []byte("bytes")))
	require.NoError(t, s.DeleteAll())
	_, err = s.Get(key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(0), s.Size())
	assert.DirExists(t, s.Dir())
	require.NoError(t, s.Put(key, []byte("again")))
	got, err := s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "again", string(got))
}

func TestDelete(t *testing.T) {
	s, err := Open(t.TempDir(), 1, 0)
	require.NoError(t, err)
	key := cachekey.KeyFor("u")
	require.NoError(t, s.Put(key, []byte("bytes")))
	require.NoError(t, s.Delete(key))
	require.NoError(t, s.Delete(key))
	assert.Equal(t, int64(0), s.Size())
}

func TestVersionBumpInvalidates(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 1, 0)
	require.NoError(t, err)
	key := cachekey.KeyFor("u")
	require.NoError(t, s.Put(key, []byte("bytes")))

	s2, err := Open(dir, 2, 0)
	require.NoError(t, err)
	_, err = s2.Get(key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoDirExists(t, filepath.Join(dir, "v1"))
}

func TestReopenKeepsEntriesAndDropsTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 3, 0)
	require.NoError(t, err)
	key := cachekey.KeyFor("u")
	require.NoError(t, s.Put(key, []byte("bytes")))
	w, err := s.Writer(cachekey.KeyFor("other"))
	require.NoError(t, err)
	_, err = w.Write([]byte("interrupted"))
	require.NoError(t, err)

	s2, err := Open(dir, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), s2.Size())
	assert.Equal(t, 1, countFiles(t, s2.Dir()))
}

func TestWalk(t *testing.T) {
	s, err := Open(t.TempDir(), 1, 0)
	require.NoError(t, err)
	keys := map[string]bool{}
	for _, u := range []string{"a", "b", "c"} {
		key := cachekey.KeyFor(u)
		keys[key] = true
		require.NoError(t, s.Put(key, []byte(u)))
	}
	seen := map[string]bool{}
	err = s.Walk(func(e Entry) error {
		seen[e.Key] = true
		assert.Equal(t, int64(1), e.Size)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, keys, seen)
}

func mustPath(t *testing.T, s *Store, key string) string {
	p, err := s.path(key)
	require.NoError(t, err)
	return p
}

func countFiles(t *testing.T, dir string) int {
	cnt := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && !strings.HasSuffix(path, string(filepath.Separator)) {
			cnt++
		}
		return nil
	})
	require.NoError(t, err)
	return cnt
}
