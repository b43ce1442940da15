package subcmd

import "fmt"

// Clear removes everything from the disk cache
func Clear() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.DeleteAll(); err != nil {
		return fmt.Errorf("error clearing the disk cache: %s", err)
	}
	return nil
}
