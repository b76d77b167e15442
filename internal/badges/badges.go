// Package badges implements the Badge Catalog: declarative rules mapping
// resolved attribute values to badge assets or text, loaded from the
// Config Store and turned into an ordered []BadgeInstance ready for the
// Renderer.
package badges

import (
	"context"
	"strconv"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/attributes"
	"github.com/aphrodite-badges/aphrodite/internal/configstore"
)

// Type is one of the four badge categories.
type Type string

const (
	TypeAudio      Type = "audio"
	TypeResolution Type = "resolution"
	TypeReview     Type = "review"
	TypeAwards     Type = "awards"
)

// TypeMask selects which badge types a job wants applied.
type TypeMask map[Type]bool

// Anchor is a placement corner.
type Anchor string

const (
	AnchorTopLeft     Anchor = "top-left"
	AnchorTopRight    Anchor = "top-right"
	AnchorBottomLeft  Anchor = "bottom-left"
	AnchorBottomRight Anchor = "bottom-right"
)

// SizePolicy controls whether a badge's background expands to fit text or
// stays fixed.
type SizePolicy string

const (
	SizeFixed   SizePolicy = "fixed"
	SizeDynamic SizePolicy = "dynamic"
)

// Style is the full visual configuration for one badge.
type Style struct {
	Font     string
	SizePt   float64
	FG       string
	BG       string
	Opacity  float64
	Border   float64
	Shadow   bool
	Padding  float64
	Size     SizePolicy
}

// TextVisual renders as measured text.
type TextVisual struct {
	Text string
}

// AssetVisual renders as a named image asset.
type AssetVisual struct {
	AssetName string
}

// BadgeInstance is one fully-resolved badge, ready for composition.
type BadgeInstance struct {
	Type        Type
	Text        *TextVisual
	Asset       *AssetVisual
	Anchor      Anchor
	Flush       bool // awards "*-flush" variant: zero edge padding
	Style       Style
	MultiLayout *MultiLayout
}

// MultiLayout groups badges sharing an anchor into one sub-layout.
type MultiLayout struct {
	Direction string // "vertical" | "horizontal"
	Gap       float64
}

// symbolRule maps one normalized symbol to an asset, with a text fallback
// option when the asset is missing.
type symbolRule struct {
	AssetName    string `json:"asset_name"`
	FallbackText string `json:"fallback_text"`
}

// ruleDocument is the declarative per-badge-type rule set, stored as a
// json-typed configstore setting named "<type>_rules".
type ruleDocument struct {
	Symbols map[string]symbolRule `json:"symbols"`
	Style   Style                 `json:"style"`
	Anchor  Anchor                `json:"anchor"`
}

// Catalog loads and applies badge rules.
type Catalog struct {
	cs *configstore.Store
}

// New wraps a Config Store handle.
func New(cs *configstore.Store) *Catalog {
	return &Catalog{cs: cs}
}

func (c *Catalog) loadRules(ctx context.Context, badgeType Type) (ruleDocument, error) {
	var doc ruleDocument
	if err := c.cs.GetJSON(ctx, string(badgeType)+"_rules", &doc); err != nil {
		if apperr.Is(err, apperr.ConfigMissing) {
			return ruleDocument{Symbols: map[string]symbolRule{}}, nil
		}
		return ruleDocument{}, err
	}
	return doc, nil
}

// SelectBadges intersects resolved attributes with mask and returns the
// ordered instances the Renderer should compose, in the fixed order
// resolution, audio, review, awards.
func (c *Catalog) SelectBadges(ctx context.Context, attrs attributes.ItemAttributes, mask TypeMask) ([]BadgeInstance, []SkipReason, error) {
	var out []BadgeInstance
	var skips []SkipReason

	if mask[TypeResolution] {
		inst, skip, err := c.resolutionBadge(ctx, attrs)
		if err != nil {
			return nil, nil, err
		}
		if inst != nil {
			out = append(out, *inst)
		}
		if skip != nil {
			skips = append(skips, *skip)
		}
	}

	if mask[TypeAudio] {
		inst, skip, err := c.audioBadge(ctx, attrs)
		if err != nil {
			return nil, nil, err
		}
		if inst != nil {
			out = append(out, *inst)
		}
		if skip != nil {
			skips = append(skips, *skip)
		}
	}

	if mask[TypeReview] && len(attrs.Reviews) > 0 {
		insts, err := c.reviewBadges(ctx, attrs)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, insts...)
	}

	if mask[TypeAwards] && len(attrs.Awards) > 0 {
		insts, err := c.awardsBadges(ctx, attrs)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, insts...)
	}

	return out, skips, nil
}

// SkipReason records why a badge type produced no instance, per the
// render-diagnostics registry described in SPEC_FULL.md.
type SkipReason struct {
	BadgeType Type
	Kind      apperr.Kind
	Detail    string
}

func (c *Catalog) resolutionBadge(ctx context.Context, attrs attributes.ItemAttributes) (*BadgeInstance, *SkipReason, error) {
	doc, err := c.loadRules(ctx, TypeResolution)
	if err != nil {
		return nil, nil, err
	}
	symbol := string(attrs.ResolutionClass) + "_" + string(attrs.DynamicRange)
	rule, ok := doc.Symbols[symbol]
	if !ok {
		symbol = string(attrs.ResolutionClass)
		rule, ok = doc.Symbols[symbol]
	}
	if !ok {
		return nil, &SkipReason{BadgeType: TypeResolution, Kind: apperr.UnknownSymbol, Detail: symbol}, nil
	}
	return buildInstance(TypeResolution, rule, doc), nil, nil
}

func (c *Catalog) audioBadge(ctx context.Context, attrs attributes.ItemAttributes) (*BadgeInstance, *SkipReason, error) {
	doc, err := c.loadRules(ctx, TypeAudio)
	if err != nil {
		return nil, nil, err
	}
	symbol := string(attrs.PrimaryAudioCodec)
	if symbol == "" {
		return nil, &SkipReason{BadgeType: TypeAudio, Kind: apperr.UnknownSymbol, Detail: "empty codec"}, nil
	}
	rule, ok := doc.Symbols[symbol]
	if !ok {
		return nil, &SkipReason{BadgeType: TypeAudio, Kind: apperr.UnknownSymbol, Detail: symbol}, nil
	}
	return buildInstance(TypeAudio, rule, doc), nil, nil
}

func (c *Catalog) reviewBadges(ctx context.Context, attrs attributes.ItemAttributes) ([]BadgeInstance, error) {
	doc, err := c.loadRules(ctx, TypeReview)
	if err != nil {
		return nil, err
	}
	var out []BadgeInstance
	for _, r := range attrs.Reviews {
		rule := doc.Symbols[r.Source]
		out = append(out, BadgeInstance{
			Type:   TypeReview,
			Text:   &TextVisual{Text: formatScore(r.ScoreNormalized)},
			Asset:  assetFromRule(rule),
			Anchor: doc.Anchor,
			Style:  doc.Style,
			MultiLayout: &MultiLayout{Direction: "vertical", Gap: 4},
		})
	}
	return out, nil
}

func (c *Catalog) awardsBadges(ctx context.Context, attrs attributes.ItemAttributes) ([]BadgeInstance, error) {
	doc, err := c.loadRules(ctx, TypeAwards)
	if err != nil {
		return nil, err
	}
	var out []BadgeInstance
	for _, award := range attrs.Awards {
		rule, ok := doc.Symbols[award]
		if !ok {
			continue
		}
		out = append(out, BadgeInstance{
			Type:   TypeAwards,
			Asset:  assetFromRule(rule),
			Anchor: doc.Anchor,
			Flush:  true,
			Style:  doc.Style,
		})
	}
	return out, nil
}

func buildInstance(t Type, rule symbolRule, doc ruleDocument) *BadgeInstance {
	inst := &BadgeInstance{
		Type:   t,
		Asset:  &AssetVisual{AssetName: rule.AssetName},
		Anchor: doc.Anchor,
		Style:  doc.Style,
	}
	if rule.FallbackText != "" {
		inst.Text = &TextVisual{Text: rule.FallbackText}
	}
	return inst
}

func assetFromRule(rule symbolRule) *AssetVisual {
	if rule.AssetName == "" {
		return nil
	}
	return &AssetVisual{AssetName: rule.AssetName}
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 1, 64)
}
