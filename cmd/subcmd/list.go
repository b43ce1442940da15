package subcmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"imagefetch/impl/config"
	"imagefetch/impl/diskstore"

	"github.com/labstack/gommon/bytes"
)

// magic numbers from 'format.go' in package 'time'
const dateFormat = "2006-01-02T15:04:05"

// List lists the disk cache to the console
func List() error {
	return listTo(os.Stdout)
}

func listTo(w io.Writer) error {
	listCfg := config.GetListConfig()
	store, err := openStore()
	if err != nil {
		return err
	}
	entries := []diskstore.Entry{}
	err = store.Walk(func(e diskstore.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("error listing the cache: %s", err)
	}
	sortEntries(entries, listCfg.Sort)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if listCfg.Header {
		fmt.Fprintln(tw, "KEY\tSIZE\tUSED")
	}
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, bytes.Format(e.Size), e.ModTime.Format(dateFormat))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if listCfg.Header {
		fmt.Fprintf(w, "%d entries, %s of %s\n", len(entries), bytes.Format(store.Size()), bytes.Format(store.Capacity()))
	}
	return nil
}

// sortEntries sorts by size (largest first), time (most recently used first) or key,
// which is also the default.
func sortEntries(entries []diskstore.Entry, by string) {
	switch by {
	case "size":
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Size > entries[j].Size
		})
	case "time":
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].ModTime.After(entries[j].ModTime)
		})
	default:
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Key < entries[j].Key
		})
	}
}
