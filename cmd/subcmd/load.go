package subcmd

import (
	"context"
	"fmt"

	"imagefetch/impl/config"
	"imagefetch/impl/preload"
)

// Load fetches the images listed in the configured preload file into the disk cache and
// returns. A server sharing the cache path picks them up on its next request.
func Load() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	mgr, _, err := newManager(store)
	if err != nil {
		return err
	}
	defer mgr.Close()
	cnt, err := preload.Load(context.Background(), mgr, config.GetPreloadFile(), int(config.GetWorkers()))
	if err != nil {
		return fmt.Errorf("error loading images: %s", err)
	}
	fmt.Printf("loaded %d image(s)\n", cnt)
	return nil
}
