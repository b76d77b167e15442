package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aphrodite-badges/aphrodite/internal/badges"
)

func TestAnchorPointCorners(t *testing.T) {
	const posterW, posterH, w, h, pad = 1000, 1500, 100, 50, 12

	cases := []struct {
		anchor badges.Anchor
		want   image.Point
	}{
		{badges.AnchorTopLeft, image.Point{X: pad, Y: pad}},
		{badges.AnchorTopRight, image.Point{X: posterW - w - pad, Y: pad}},
		{badges.AnchorBottomLeft, image.Point{X: pad, Y: posterH - h - pad}},
		{badges.AnchorBottomRight, image.Point{X: posterW - w - pad, Y: posterH - h - pad}},
	}
	for _, c := range cases {
		got := anchorPoint(c.anchor, false, posterW, posterH, w, h, pad)
		assert.Equal(t, c.want, got, "anchor=%s", c.anchor)
	}
}

func TestAnchorPointFlushIgnoresPadding(t *testing.T) {
	got := anchorPoint(badges.AnchorTopRight, true, 1000, 1500, 100, 50, 12)
	assert.Equal(t, image.Point{X: 900, Y: 0}, got)
}

func TestDecodeEncodePosterRoundTripsPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	decoded, format, err := decodePoster(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 4, decoded.Bounds().Dx())

	encoded, err := encodePoster(decoded, format)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)
}

func TestDecodePosterRejectsGarbage(t *testing.T) {
	_, _, err := decodePoster([]byte("not an image"))
	assert.Error(t, err)
}

func TestStackGroupSingleBadgeUnchanged(t *testing.T) {
	bmp := image.NewRGBA(image.Rect(0, 0, 10, 10))
	g := &group{bitmaps: []image.Image{bmp}}
	assert.Same(t, image.Image(bmp), stackGroup(g))
}

func TestStackGroupVerticalStacksHeights(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 10, 10))
	b := image.NewRGBA(image.Rect(0, 0, 10, 20))
	g := &group{bitmaps: []image.Image{a, b}}

	stacked := stackGroup(g)
	assert.Equal(t, 10, stacked.Bounds().Dx())
	assert.Equal(t, 10+20+4, stacked.Bounds().Dy())
}
