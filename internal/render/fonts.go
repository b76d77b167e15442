// Package render loads fonts, measures text, composites badge bitmaps, and
// places one or more badges onto a poster image.
package render

import (
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
)

type faceKey struct {
	path string
	size float64
}

// FontManager loads fonts by name from a search path and caches the
// resulting font.Face objects keyed by (path, size), falling back
// deterministically: requested font -> configured fallback. There is no
// platform-default font; when neither is found, Face returns
// render_font_missing.
type FontManager struct {
	searchPaths []string
	fallback    string

	mu    sync.Mutex
	fonts map[string]*opentype.Font
	faces map[faceKey]font.Face
}

// NewFontManager builds a manager that looks for font files under
// searchPaths, falling back to fallbackName when a requested font can't be
// found or parsed.
func NewFontManager(searchPaths []string, fallbackName string) *FontManager {
	return &FontManager{
		searchPaths: searchPaths,
		fallback:    fallbackName,
		fonts:       make(map[string]*opentype.Font),
		faces:       make(map[faceKey]font.Face),
	}
}

func (m *FontManager) resolve(name string) (string, error) {
	for _, dir := range m.searchPaths {
		p := dir + "/" + name
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", apperr.New("render.resolve", apperr.RenderFontMissing, os.ErrNotExist)
}

func (m *FontManager) loadFont(path string) (*opentype.Font, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.fonts[path]; ok {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.New("render.loadFont", apperr.RenderFontMissing, err)
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, apperr.New("render.loadFont", apperr.RenderFontMissing, err)
	}
	m.fonts[path] = parsed
	return parsed, nil
}

// Face returns a cached font.Face for (name, size), falling back to the
// configured fallback font and, failing that, returning render_font_missing.
func (m *FontManager) Face(name string, size float64) (font.Face, error) {
	path, err := m.resolve(name)
	if err != nil {
		if name == m.fallback {
			return nil, err
		}
		path, err = m.resolve(m.fallback)
		if err != nil {
			return nil, err
		}
	}

	key := faceKey{path: path, size: size}
	m.mu.Lock()
	if f, ok := m.faces[key]; ok {
		m.mu.Unlock()
		return f, nil
	}
	m.mu.Unlock()

	parsed, err := m.loadFont(path)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size: size,
		DPI:  72,
		Hinting: fontHintingFull(),
	})
	if err != nil {
		return nil, apperr.New("render.Face", apperr.RenderFontMissing, err)
	}

	m.mu.Lock()
	m.faces[key] = face
	m.mu.Unlock()
	return face, nil
}

func fontHintingFull() font.Hinting {
	return font.HintingFull
}

// MeasureText computes a tight bounding box (width, height, descender
// depth) for text rendered with face, used to size dynamic badges.
func MeasureText(face font.Face, text string) (width, height, descent int) {
	b, adv := font.BoundString(face, text)
	width = adv.Round()
	ascent := -b.Min.Y.Round()
	descent = b.Max.Y.Round()
	height = ascent + descent
	return
}
