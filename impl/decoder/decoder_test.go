package decoder

import (
	"errors"
	"image"
	"testing"

	"imagefetch/mock"
	"imagefetch/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleSize(t *testing.T) {
	tests := []struct {
		src    types.Size
		want   types.Size
		expect int
	}{
		{src: types.Size{Width: 1000, Height: 1000}, want: types.NoSize, expect: 1},
		{src: types.Size{Width: 1000, Height: 1000}, want: types.Size{Width: -1, Height: 100}, expect: 1},
		{src: types.Size{Width: 100, Height: 100}, want: types.Size{Width: 200, Height: 200}, expect: 1},
		{src: types.Size{Width: 1000, Height: 1000}, want: types.Size{Width: 250, Height: 250}, expect: 4},
		{src: types.Size{Width: 1000, Height: 1000}, want: types.Size{Width: 251, Height: 251}, expect: 2},
		{src: types.Size{Width: 1000, Height: 500}, want: types.Size{Width: 100, Height: 100}, expect: 4},
		{src: types.Size{Width: 4000, Height: 3000}, want: types.Size{Width: 400, Height: 300}, expect: 8},
	}
	for _, tst := range tests {
		n := SampleSize(tst.src, tst.want)
		assert.Equal(t, tst.expect, n, "%v -> %v", tst.src, tst.want)
		if tst.want.IsSet() {
			// never smaller than requested along either axis
			if tst.src.Width >= tst.want.Width && tst.src.Height >= tst.want.Height {
				assert.GreaterOrEqual(t, tst.src.Width/n, tst.want.Width)
				assert.GreaterOrEqual(t, tst.src.Height/n, tst.want.Height)
			}
		}
	}
}

func TestDecodeNaturalSize(t *testing.T) {
	img, err := Decode(mock.PNG(64, 32), types.NoSize)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 64, img.Width())
	assert.Equal(t, 32, img.Height())
	assert.Equal(t, types.Size{Width: 64, Height: 32}, img.Source)
	assert.Equal(t, int64(64*32*4), img.Bytes)
}

func TestDecodeDownsample(t *testing.T) {
	img, err := Decode(mock.PNG(400, 200), types.Size{Width: 100, Height: 50})
	require.NoError(t, err)
	assert.Equal(t, 100, img.Width())
	assert.Equal(t, 50, img.Height())
	assert.Equal(t, types.Size{Width: 400, Height: 200}, img.Source)
	_, isRGBA := img.Image.(*image.RGBA)
	assert.True(t, isRGBA)
	assert.Equal(t, int64(100*50*4), img.Bytes)
}

func TestDecodeJpeg(t *testing.T) {
	img, err := Decode(mock.JPEG(16, 16), types.NoSize)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Format)
	// 4:2:0 chroma subsampling: 256 luma samples plus two 8x8 chroma planes
	assert.Equal(t, int64(256+64+64), img.Bytes)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"), types.NoSize)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))

	_, err = Decode(nil, types.NoSize)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestFootprint(t *testing.T) {
	assert.Equal(t, int64(10*5*4), Footprint(image.NewRGBA(image.Rect(0, 0, 10, 5))))
	assert.Equal(t, int64(10*5), Footprint(image.NewGray(image.Rect(0, 0, 10, 5))))
	assert.Equal(t, int64(10*5*8), Footprint(image.NewRGBA64(image.Rect(0, 0, 10, 5))))
	assert.Equal(t, int64(10*5*4), Footprint(opaque{image.NewGray(image.Rect(0, 0, 10, 5))}))
}

// opaque hides the concrete type of the wrapped image from Footprint
type opaque struct {
	image.Image
}
