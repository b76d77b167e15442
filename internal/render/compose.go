package render

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/badges"
)

// AssetLoader fetches the raw bytes of a named badge asset.
type AssetLoader func(name string) ([]byte, error)

// Renderer composes badge bitmaps and final posters.
type Renderer struct {
	fonts  *FontManager
	assets AssetLoader
}

// NewRenderer builds a Renderer backed by fonts and an asset loader.
func NewRenderer(fonts *FontManager, assets AssetLoader) *Renderer {
	return &Renderer{fonts: fonts, assets: assets}
}

// ComposeBadge produces a transparent bitmap for one instance: optional
// shadow, rounded-rect background at configured opacity/border, and a
// centered glyph or text with configured padding. Dynamic sizing expands
// the background to fit content; fixed sizing clips to the configured
// size.
func (r *Renderer) ComposeBadge(inst badges.BadgeInstance) (image.Image, error) {
	style := inst.Style
	padding := style.Padding
	if padding <= 0 {
		padding = 6
	}

	content, contentErr := r.content(inst, style)
	if content == nil {
		if inst.Style.Size == badges.SizeDynamic && contentErr != nil {
			return nil, contentErr
		}
		return nil, apperr.New("render.ComposeBadge", apperr.RenderAssetMissing, contentErr)
	}

	cw, ch := content.Bounds().Dx(), content.Bounds().Dy()
	bw, bh := cw+2*int(padding), ch+2*int(padding)
	if style.Size == badges.SizeFixed && style.SizePt > 0 {
		bw, bh = int(style.SizePt), int(style.SizePt)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, bw, bh))

	if style.Shadow {
		drawRoundedRect(canvas, image.Rect(2, 2, bw+2, bh+2), color.Black, 8, 0.3)
	}
	drawRoundedRect(canvas, image.Rect(0, 0, bw, bh), parseColorOr(style.BG, color.NRGBA{A: 180}), 8, style.Opacity)

	offsetX := (bw - cw) / 2
	offsetY := (bh - ch) / 2
	draw.Draw(canvas, image.Rect(offsetX, offsetY, offsetX+cw, offsetY+ch), content, image.Point{}, draw.Over)

	if style.Border > 0 {
		drawBorder(canvas, canvas.Bounds(), parseColorOr(style.FG, color.White), style.Border)
	}

	return canvas, nil
}

// content resolves the badge's foreground: an asset image if one is
// configured and loadable, else rendered text as a fallback, matching the
// "fallback-to-text" option in §4.5.
func (r *Renderer) content(inst badges.BadgeInstance, style badges.Style) (image.Image, error) {
	if inst.Asset != nil {
		size := 0
		if style.SizePt > 0 {
			size = int(style.SizePt)
		}
		img, err := r.loadAssetImage(inst.Asset.AssetName, size)
		if err == nil {
			return img, nil
		}
		if inst.Text == nil {
			return nil, err
		}
	}
	if inst.Text != nil {
		return r.renderText(inst.Text.Text, style)
	}
	return nil, apperr.New("render.content", apperr.RenderAssetMissing, nil)
}

// loadAssetImage decodes a named asset and resizes it to targetSize using
// disintegration/imaging, the only image-processing library demonstrated
// in the reference corpus.
func (r *Renderer) loadAssetImage(name string, targetSize int) (image.Image, error) {
	data, err := r.assets(name)
	if err != nil {
		return nil, apperr.New("render.loadAssetImage", apperr.RenderAssetMissing, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.New("render.loadAssetImage", apperr.RenderAssetMissing, err)
	}
	if targetSize > 0 {
		img = imaging.Resize(img, targetSize, 0, imaging.Lanczos)
	}
	return img, nil
}

func (r *Renderer) renderText(text string, style badges.Style) (image.Image, error) {
	size := style.SizePt
	if size <= 0 {
		size = 14
	}
	face, err := r.fonts.Face(style.Font, size)
	if err != nil {
		return nil, err
	}
	width, height, descent := MeasureText(face, text)
	if width == 0 {
		width = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(parseColorOr(style.FG, color.White)),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: fixed.I(height - descent)},
	}
	d.DrawString(text)
	return img, nil
}

func parseColorOr(hex string, fallback color.Color) color.Color {
	c, ok := parseHexColor(hex)
	if !ok {
		return fallback
	}
	return c
}

func parseHexColor(hex string) (color.RGBA, bool) {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{}, false
	}
	r, err := parseHexByte(hex[1:3])
	if err != nil {
		return color.RGBA{}, false
	}
	g, err := parseHexByte(hex[3:5])
	if err != nil {
		return color.RGBA{}, false
	}
	b, err := parseHexByte(hex[5:7])
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, true
}

func parseHexByte(s string) (uint8, error) {
	var v uint8
	for _, c := range s {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint8(c - '0')
		case c >= 'a' && c <= 'f':
			v |= uint8(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v |= uint8(c-'A') + 10
		default:
			return 0, apperr.New("render.parseHexByte", apperr.RenderFailed, nil)
		}
	}
	return v, nil
}

// drawRoundedRect fills a rounded rectangle of the given corner radius at
// opacity (0..1) into dst.
func drawRoundedRect(dst *image.RGBA, rect image.Rectangle, c color.Color, radius int, opacity float64) {
	r, g, b, a := c.RGBA()
	alpha := uint8(math.Round(float64(a>>8) * clamp01(opacity)))
	fill := color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: alpha}

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if insideRoundedRect(x, y, rect, radius) {
				dst.Set(x, y, fill)
			}
		}
	}
}

func insideRoundedRect(x, y int, rect image.Rectangle, radius int) bool {
	if radius <= 0 {
		return true
	}
	w, h := rect.Dx(), rect.Dy()
	lx, ly := x-rect.Min.X, y-rect.Min.Y
	switch {
	case lx < radius && ly < radius:
		return inCircle(lx, ly, radius, radius, radius)
	case lx >= w-radius && ly < radius:
		return inCircle(lx, ly, w-radius-1, radius, radius)
	case lx < radius && ly >= h-radius:
		return inCircle(lx, ly, radius, h-radius-1, radius)
	case lx >= w-radius && ly >= h-radius:
		return inCircle(lx, ly, w-radius-1, h-radius-1, radius)
	default:
		return true
	}
}

func inCircle(x, y, cx, cy, radius int) bool {
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= radius*radius
}

func drawBorder(dst *image.RGBA, rect image.Rectangle, c color.Color, width float64) {
	w := int(math.Max(1, width))
	for i := 0; i < w; i++ {
		r := image.Rect(rect.Min.X+i, rect.Min.Y+i, rect.Max.X-i, rect.Max.Y-i)
		drawRectOutline(dst, r, c)
	}
}

func drawRectOutline(dst *image.RGBA, rect image.Rectangle, c color.Color) {
	for x := rect.Min.X; x < rect.Max.X; x++ {
		dst.Set(x, rect.Min.Y, c)
		dst.Set(x, rect.Max.Y-1, c)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		dst.Set(rect.Min.X, y, c)
		dst.Set(rect.Max.X-1, y, c)
	}
}

func clamp01(v float64) float64 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return v
}
