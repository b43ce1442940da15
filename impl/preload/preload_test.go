package preload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"imagefetch/impl/cachekey"
	"imagefetch/impl/diskstore"
	"imagefetch/impl/downloader"
	"imagefetch/impl/manager"
	"imagefetch/impl/memcache"
	"imagefetch/mock"
	"imagefetch/types"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetOutput(io.Discard)
}

func TestReadList(t *testing.T) {
	f := filepath.Join(t.TempDir(), "list")
	os.WriteFile(f, []byte(`
# comment
http://a.example.com/a.png

http://b.example.com/b.jpg   20X10
`), 0600)
	items, err := ReadList(f)
	require.NoError(t, err)
	assert.Equal(t, []Item{
		{URL: "http://a.example.com/a.png"},
		{URL: "http://b.example.com/b.jpg", Size: types.Size{Width: 20, Height: 10}},
	}, items)
}

func TestReadListErrors(t *testing.T) {
	for _, content := range []string{"u 10", "u 10xq", "u 1x1 extra"} {
		f := filepath.Join(t.TempDir(), "list")
		os.WriteFile(f, []byte(content), 0600)
		_, err := ReadList(f)
		assert.Error(t, err, content)
	}
	_, err := ReadList(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	server := mock.Server(mock.NewMockParams(mock.HTTP))
	defer server.Close()
	store, err := diskstore.Open(t.TempDir(), 1, 0)
	require.NoError(t, err)
	factory := downloader.NewFactory(downloader.Options{})
	memory := memcache.New(0)
	mgr, err := manager.New(manager.Options{
		Memory: memory,
		Store:  store,
		Fetch: func(url string) manager.Fetcher {
			return factory.New(url)
		},
	})
	require.NoError(t, err)
	defer mgr.Close()

	list := ""
	urls := []string{}
	for i := 1; i <= 6; i++ {
		u := fmt.Sprintf("%s/img/%dx%d.png", server.URL, i*4, i*2)
		urls = append(urls, u)
		list += u + "\n"
	}
	list += server.URL + "/status/404\n"
	f := filepath.Join(t.TempDir(), "list")
	os.WriteFile(f, []byte(list), 0600)

	n, err := Load(context.Background(), mgr, f, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, 6, memory.Len())
	for _, u := range urls {
		_, err := store.Get(cachekey.KeyFor(u))
		assert.NoError(t, err, u)
	}
}
