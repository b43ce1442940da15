// Package mock runs an HTTP image server for the tests. It synthesizes images on
// the fly from the request path so no test files are needed, e.g.
// /img/320x200.png returns a 320 by 200 PNG. It can also be told to delay,
// redirect, return garbage, or return errors so the downloader and the request
// manager can be exercised against each failure mode.
package mock
