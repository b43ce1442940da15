// Package diskstore is the durable tier of the image cache. It holds the encoded bytes
// of every fetched image as one file per cache key under a versioned directory:
//
//	<cache path>/v<version>/<first two chars of key>/<key>
//
// Writes go to a temp file in the same directory and are committed with a rename, so a
// reader never observes a partial file. The total stored bytes are bounded by a capacity,
// and when a commit pushes the store over the capacity the least recently used files
// (by modification time, which Get refreshes) are removed. Opening the store with a
// new version removes the directories of every other version.
package diskstore
