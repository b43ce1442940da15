// Package types has the types shared by the caches, the decoder and the request
// manager.
package types

import (
	"image"
)

// Size is the desired width and height of a decoded image. If either dimension
// is zero or negative the image is decoded at its natural size.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NoSize requests decoding at the natural size.
var NoSize = Size{}

// IsSet returns true if the Size asks for downsampling.
func (s Size) IsSet() bool {
	return s.Width > 0 && s.Height > 0
}

// DecodedImage is a decoded bitmap plus the number of bytes its pixel buffer
// occupies. The byte count is what the memory cache is bounded by.
type DecodedImage struct {
	Image image.Image
	// Bytes is rows x bytes-per-row of the pixel buffer
	Bytes int64
	// Format is the name the format was registered under, e.g. "png"
	Format string
	// Source is the natural size of the encoded image, before downsampling
	Source Size
}

// Width returns the width of the decoded bitmap
func (d *DecodedImage) Width() int {
	return d.Image.Bounds().Dx()
}

// Height returns the height of the decoded bitmap
func (d *DecodedImage) Height() int {
	return d.Image.Bounds().Dy()
}

// RequesterID identifies a requester, for example a widget name or a session ID.
// The request manager only compares requester IDs for equality.
type RequesterID string

// Listener receives the result of one request. Exactly one of the two methods is
// called for each request that is not canceled. They are called without any
// request manager lock held, so they may call back into the manager.
type Listener interface {
	OnSuccess(img *DecodedImage, url string)
	OnFailure(url string)
}

// ListenerFuncs adapts a pair of functions to the Listener interface. Either may
// be nil.
type ListenerFuncs struct {
	Success func(img *DecodedImage, url string)
	Failure func(url string)
}

// OnSuccess calls the Success func if it is set
func (l ListenerFuncs) OnSuccess(img *DecodedImage, url string) {
	if l.Success != nil {
		l.Success(img, url)
	}
}

// OnFailure calls the Failure func if it is set
func (l ListenerFuncs) OnFailure(url string) {
	if l.Failure != nil {
		l.Failure(url)
	}
}
