// Package attributes implements the Attribute Resolver: turning catalog
// metadata plus enrichment results into a typed, immutable ItemAttributes
// record. Every function here is pure and stdlib-only — there is no
// production example in the reference corpus of a classification engine
// like this backed by a third-party library, and the logic is simple
// enough (string/number comparisons) that pulling one in would not serve
// any real concern; see DESIGN.md for the full justification.
package attributes

import (
	"regexp"
	"strings"

	"github.com/aphrodite-badges/aphrodite/internal/catalog"
)

// ResolutionClass is one of the five width-primary buckets.
type ResolutionClass string

const (
	Res480p  ResolutionClass = "480p"
	Res576p  ResolutionClass = "576p"
	Res720p  ResolutionClass = "720p"
	Res1080p ResolutionClass = "1080p"
	Res4K    ResolutionClass = "4k"
)

var resolutionRank = map[ResolutionClass]int{
	Res480p: 0, Res576p: 1, Res720p: 2, Res1080p: 3, Res4K: 4,
}

// DynamicRange is one of the six combined HDR/DV states.
type DynamicRange string

const (
	RangeSDR         DynamicRange = "sdr"
	RangeHDR         DynamicRange = "hdr"
	RangeHDRPlus     DynamicRange = "hdr_plus"
	RangeDV          DynamicRange = "dv"
	RangeDVHDR       DynamicRange = "dv_hdr"
	RangeDVHDRPlus   DynamicRange = "dv_hdr_plus"
)

// AudioCodec is a normalized codec symbol.
type AudioCodec string

const (
	CodecAtmos   AudioCodec = "atmos"
	CodecDTSX    AudioCodec = "dts_x"
	CodecTrueHD  AudioCodec = "truehd"
	CodecDTSHDMA AudioCodec = "dtshdma"
	CodecEAC3    AudioCodec = "eac3"
	CodecAC3     AudioCodec = "ac3"
	CodecAAC     AudioCodec = "aac"
	CodecUnknown AudioCodec = ""
)

// Provenance records which source produced a field's value, for diagnostics.
type Provenance struct {
	Source string
	Note   string
}

// Review is one normalized, per-source rating.
type Review struct {
	Source          string
	ScoreNormalized float64
	Raw             string
}

// ItemAttributes is the resolver's output: a typed, immutable snapshot.
type ItemAttributes struct {
	ResolutionClass   ResolutionClass
	DynamicRange      DynamicRange
	PrimaryAudioCodec AudioCodec
	Reviews           []Review
	Awards            []string
	Provenance        map[string]Provenance
}

// classifyResolutionFromStream implements the width-primary classification
// table from §4.4, falling back to a height cross-check at each boundary
// for letterboxed sources where width alone is ambiguous.
func classifyResolutionFromStream(width, height int) ResolutionClass {
	switch {
	case width >= 3840:
		return Res4K
	case width >= 3600 && height >= 1500:
		return Res4K
	case width >= 1920:
		return Res1080p
	case width >= 1800 && height >= 800:
		return Res1080p
	case width >= 1280:
		return Res720p
	case width >= 1200 && height >= 400:
		return Res720p
	case width >= 960:
		return Res576p
	default:
		return Res480p
	}
}

var (
	reUHD   = regexp.MustCompile(`(?i)\b(2160p|4k|uhd)\b`)
	re1080p = regexp.MustCompile(`(?i)\b1080p\b`)
	re720p  = regexp.MustCompile(`(?i)\b720p\b`)
	re576p  = regexp.MustCompile(`(?i)\b576p\b`)
	re480p  = regexp.MustCompile(`(?i)\b480p\b`)

	reHDR10Plus = regexp.MustCompile(`(?i)\bhdr10\+`)
	reHDR10     = regexp.MustCompile(`(?i)\bhdr10\b`)
	reHLG       = regexp.MustCompile(`(?i)\bhlg\b`)
	reHDR       = regexp.MustCompile(`(?i)\bhdr\b`)
	reDV        = regexp.MustCompile(`(?i)\b(dv|dolby vision|dvhe|dvh1)\b`)
)

// classifyResolutionFromFilename looks for explicit resolution tokens in a
// filename hint, per §4.4 step 1.
func classifyResolutionFromFilename(filename string) (ResolutionClass, bool) {
	switch {
	case reUHD.MatchString(filename):
		return Res4K, true
	case re1080p.MatchString(filename):
		return Res1080p, true
	case re720p.MatchString(filename):
		return Res720p, true
	case re576p.MatchString(filename):
		return Res576p, true
	case re480p.MatchString(filename):
		return Res480p, true
	default:
		return "", false
	}
}

// dynamicRangeFromFilename ORs every HDR/DV token found in filename.
func dynamicRangeFromFilename(filename string) (hdr, hdrPlus, dv bool) {
	if reHDR10Plus.MatchString(filename) {
		hdrPlus = true
	}
	if reHDR10.MatchString(filename) || reHLG.MatchString(filename) || reHDR.MatchString(filename) {
		hdr = true
	}
	if reDV.MatchString(filename) {
		dv = true
	}
	return
}

// dynamicRangeFromStream ORs HDR/DV flags from stream color metadata.
func dynamicRangeFromStream(s catalog.MediaStream) (hdr, hdrPlus, dv bool) {
	vr := strings.ToLower(s.VideoRangeType)
	switch {
	case strings.Contains(vr, "dolby vision") || strings.Contains(vr, "dv"):
		dv = true
	case strings.Contains(vr, "hdr10+"):
		hdrPlus = true
	case strings.Contains(vr, "hdr"), strings.Contains(vr, "hlg"):
		hdr = true
	}
	if strings.EqualFold(s.ColorTransfer, "smpte2084") || strings.EqualFold(s.ColorTransfer, "arib-std-b67") {
		hdr = true
	}
	return
}

// combineDynamicRange folds HDR/HDR+/DV flags into one of the six states.
func combineDynamicRange(hdr, hdrPlus, dv bool) DynamicRange {
	switch {
	case dv && hdrPlus:
		return RangeDVHDRPlus
	case dv && hdr:
		return RangeDVHDR
	case dv:
		return RangeDV
	case hdrPlus:
		return RangeHDRPlus
	case hdr:
		return RangeHDR
	default:
		return RangeSDR
	}
}

// ResolutionTieBreak selects how to reconcile filename vs stream resolution
// disagreement; exposed as a policy per the spec's Open Question rather
// than hard-coded.
type ResolutionTieBreak string

const (
	TieBreakHigherClass ResolutionTieBreak = "higher_class"
	TieBreakPreferFilename ResolutionTieBreak = "prefer_filename"
	TieBreakPreferStream   ResolutionTieBreak = "prefer_stream"
)

// ResolveResolution implements §4.4's width-primary classification with
// filename cross-validation, recording both candidates in provenance when
// they disagree.
func ResolveResolution(width, height int, filename string, tieBreak ResolutionTieBreak) (ResolutionClass, Provenance) {
	streamClass := classifyResolutionFromStream(width, height)
	filenameClass, hasFilename := classifyResolutionFromFilename(filename)

	if !hasFilename {
		return streamClass, Provenance{Source: "stream", Note: "no filename resolution token"}
	}
	if filenameClass == streamClass {
		return streamClass, Provenance{Source: "stream+filename", Note: "agree"}
	}

	note := "disagreement: stream=" + string(streamClass) + " filename=" + string(filenameClass)
	switch tieBreak {
	case TieBreakPreferFilename:
		return filenameClass, Provenance{Source: "filename", Note: note}
	case TieBreakPreferStream:
		return streamClass, Provenance{Source: "stream", Note: note}
	default: // TieBreakHigherClass
		if resolutionRank[filenameClass] > resolutionRank[streamClass] {
			return filenameClass, Provenance{Source: "filename", Note: note}
		}
		return streamClass, Provenance{Source: "stream", Note: note}
	}
}

// ResolveDynamicRange ORs HDR/DV flags from filename tokens and stream
// color metadata.
func ResolveDynamicRange(s catalog.MediaStream, filename string) DynamicRange {
	fHDR, fHDRPlus, fDV := dynamicRangeFromFilename(filename)
	sHDR, sHDRPlus, sDV := dynamicRangeFromStream(s)
	return combineDynamicRange(fHDR || sHDR, fHDRPlus || sHDRPlus, fDV || sDV)
}

var (
	reAtmos = regexp.MustCompile(`(?i)atmos`)
	reDTSX  = regexp.MustCompile(`(?i)dts[:\-]?x`)
)

// NormalizeAudioCodec maps a raw codec token (plus extension flags present
// in stream titles/profiles) into the canonical symbol set.
func NormalizeAudioCodec(codec, profile, title string) AudioCodec {
	combined := strings.ToLower(codec + " " + profile + " " + title)
	switch {
	case reAtmos.MatchString(combined):
		return CodecAtmos
	case reDTSX.MatchString(combined):
		return CodecDTSX
	case strings.Contains(combined, "truehd"):
		return CodecTrueHD
	case strings.Contains(combined, "dts-hd") || strings.Contains(combined, "dtshd"):
		return CodecDTSHDMA
	case strings.Contains(combined, "eac3") || strings.Contains(combined, "e-ac-3"):
		return CodecEAC3
	case strings.Contains(combined, "ac3") || strings.Contains(combined, "ac-3"):
		return CodecAC3
	case strings.Contains(combined, "aac"):
		return CodecAAC
	default:
		return CodecUnknown
	}
}

// SelectPrimaryAudioStream picks the default-flagged stream, breaking ties
// by highest channel count, per §4.4.
func SelectPrimaryAudioStream(streams []catalog.MediaStream) (catalog.MediaStream, bool) {
	var best catalog.MediaStream
	found := false
	for _, s := range streams {
		if !strings.EqualFold(s.Type, "Audio") {
			continue
		}
		if !found {
			best, found = s, true
			continue
		}
		if s.IsDefault && !best.IsDefault {
			best = s
			continue
		}
		if s.IsDefault == best.IsDefault && s.Channels > best.Channels {
			best = s
		}
	}
	return best, found
}
