package subcmd

import (
	"fmt"

	"imagefetch/impl/config"
	"imagefetch/impl/diskstore"
	"imagefetch/impl/downloader"
	"imagefetch/impl/globals"
	"imagefetch/impl/manager"
	"imagefetch/impl/memcache"
)

// openStore opens the disk cache named by the configuration
func openStore() (*diskstore.Store, error) {
	version := config.GetCacheVersion()
	if version == 0 {
		version = globals.CacheVersion
	}
	store, err := diskstore.Open(config.GetCachePath(), version, config.GetDiskCacheBytes())
	if err != nil {
		return nil, fmt.Errorf("error opening the disk cache: %s", err)
	}
	return store, nil
}

// newManager builds a request manager over the passed store with a memory cache and a
// downloader factory configured from the global configuration.
func newManager(store *diskstore.Store) (*manager.Manager, *memcache.Cache, error) {
	tlsCfg, err := config.UpstreamTlsConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing upstream TLS configuration: %s", err)
	}
	factory := downloader.NewFactory(downloader.Options{
		Timeout:   config.GetFetchTimeout(),
		UserAgent: config.GetUserAgent(),
		TlsCfg:    tlsCfg,
	})
	memory := memcache.New(config.GetMemoryCacheBytes())
	mgr, err := manager.New(manager.Options{
		Memory: memory,
		Store:  store,
		Fetch: func(url string) manager.Fetcher {
			return factory.New(url)
		},
		Workers: config.GetWorkers(),
	})
	if err != nil {
		return nil, nil, err
	}
	return mgr, memory, nil
}
