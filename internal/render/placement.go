package render

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/badges"
)

// anchorPoint computes the top-left placement point for a wxh box anchored
// at corner, with padding p from each edge. Flush badges (awards'
// "*-flush" variant) use p=0 regardless of the configured padding.
func anchorPoint(anchor badges.Anchor, flush bool, posterW, posterH, w, h int, p int) image.Point {
	if flush {
		p = 0
	}
	switch anchor {
	case badges.AnchorTopRight:
		return image.Point{X: posterW - w - p, Y: p}
	case badges.AnchorBottomLeft:
		return image.Point{X: p, Y: posterH - h - p}
	case badges.AnchorBottomRight:
		return image.Point{X: posterW - w - p, Y: posterH - h - p}
	default: // AnchorTopLeft
		return image.Point{X: p, Y: p}
	}
}

const edgePadding = 12

// group is one anchor's composed badges, stacked into a single sub-layout
// per inst.MultiLayout before placement, matching §4.6's "multiple badges
// sharing an anchor compose into one sub-layout" rule.
type group struct {
	anchor  badges.Anchor
	flush   bool
	layout  *badges.MultiLayout
	bitmaps []image.Image
}

// Compose renders poster bytes with the given badge instances applied and
// returns the encoded result in the same format as the input (jpeg or
// png). Composition is deterministic: identical inputs byte-stable given
// identical renderer state, though no guarantee is made across Aphrodite
// versions.
func (r *Renderer) Compose(posterBytes []byte, instances []badges.BadgeInstance) ([]byte, error) {
	img, format, err := decodePoster(posterBytes)
	if err != nil {
		return nil, err
	}

	groups := make(map[badges.Anchor]*group)
	order := make([]badges.Anchor, 0, 4)
	for _, inst := range instances {
		bmp, err := r.ComposeBadge(inst)
		if err != nil {
			return nil, err
		}
		g, ok := groups[inst.Anchor]
		if !ok {
			g = &group{anchor: inst.Anchor, flush: inst.Flush, layout: inst.MultiLayout}
			groups[inst.Anchor] = g
			order = append(order, inst.Anchor)
		}
		g.flush = g.flush || inst.Flush
		g.bitmaps = append(g.bitmaps, bmp)
	}

	canvas := image.NewRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, image.Point{}, draw.Src)
	posterW, posterH := canvas.Bounds().Dx(), canvas.Bounds().Dy()

	for _, anchor := range order {
		g := groups[anchor]
		stacked := stackGroup(g)
		pt := anchorPoint(anchor, g.flush, posterW, posterH, stacked.Bounds().Dx(), stacked.Bounds().Dy(), edgePadding)
		draw.Draw(canvas, image.Rect(pt.X, pt.Y, pt.X+stacked.Bounds().Dx(), pt.Y+stacked.Bounds().Dy()), stacked, image.Point{}, draw.Over)
	}

	return encodePoster(canvas, format)
}

// stackGroup composes a group's badges into one image, stacked vertically
// or horizontally with the configured gap. A single-badge group returns
// its bitmap unchanged.
func stackGroup(g *group) image.Image {
	if len(g.bitmaps) == 1 {
		return g.bitmaps[0]
	}

	gap := 4
	horizontal := false
	if g.layout != nil {
		gap = int(g.layout.Gap)
		horizontal = g.layout.Direction == "horizontal"
	}

	totalW, totalH, maxW, maxH := 0, 0, 0, 0
	for i, b := range g.bitmaps {
		w, h := b.Bounds().Dx(), b.Bounds().Dy()
		totalW += w
		totalH += h
		if w > maxW {
			maxW = w
		}
		if h > maxH {
			maxH = h
		}
		if i > 0 {
			if horizontal {
				totalW += gap
			} else {
				totalH += gap
			}
		}
	}

	var canvas *image.RGBA
	if horizontal {
		canvas = image.NewRGBA(image.Rect(0, 0, totalW, maxH))
	} else {
		canvas = image.NewRGBA(image.Rect(0, 0, maxW, totalH))
	}

	offset := 0
	for _, b := range g.bitmaps {
		w, h := b.Bounds().Dx(), b.Bounds().Dy()
		var pt image.Point
		if horizontal {
			pt = image.Point{X: offset, Y: (maxH - h) / 2}
			offset += w + gap
		} else {
			pt = image.Point{X: (maxW - w) / 2, Y: offset}
			offset += h + gap
		}
		draw.Draw(canvas, image.Rect(pt.X, pt.Y, pt.X+w, pt.Y+h), b, image.Point{}, draw.Over)
	}
	return canvas
}

func decodePoster(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperr.New("render.decodePoster", apperr.ImageInvalid, err)
	}
	return img, format, nil
}

func encodePoster(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92})
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, apperr.New("render.encodePoster", apperr.RenderFailed, err)
	}
	return buf.Bytes(), nil
}

// ResizeToFit is a convenience wrapper over imaging.Resize, used when a
// catalog's primary image must be normalized before compositing.
func ResizeToFit(img image.Image, width int) image.Image {
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}
