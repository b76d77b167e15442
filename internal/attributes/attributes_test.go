package attributes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aphrodite-badges/aphrodite/internal/catalog"
)

func TestResolveResolutionAgreement(t *testing.T) {
	class, prov := ResolveResolution(1920, 1080, "Movie.2024.1080p.BluRay.mkv", TieBreakHigherClass)
	assert.Equal(t, Res1080p, class)
	assert.Equal(t, "stream+filename", prov.Source)
}

func TestResolveResolutionNoFilenameToken(t *testing.T) {
	class, prov := ResolveResolution(3840, 2160, "Movie.2024.mkv", TieBreakHigherClass)
	assert.Equal(t, Res4K, class)
	assert.Equal(t, "stream", prov.Source)
}

func TestResolveResolutionDisagreementHigherClass(t *testing.T) {
	class, prov := ResolveResolution(1280, 720, "Movie.2024.2160p.mkv", TieBreakHigherClass)
	assert.Equal(t, Res4K, class)
	assert.Equal(t, "filename", prov.Source)
}

func TestResolveResolutionDisagreementPreferStream(t *testing.T) {
	class, _ := ResolveResolution(1280, 720, "Movie.2024.2160p.mkv", TieBreakPreferStream)
	assert.Equal(t, Res720p, class)
}

func TestResolveResolutionDisagreementPreferFilename(t *testing.T) {
	class, _ := ResolveResolution(3840, 2160, "Movie.2024.720p.mkv", TieBreakPreferFilename)
	assert.Equal(t, Res720p, class)
}

func TestResolveDynamicRangeCombinesFilenameAndStream(t *testing.T) {
	stream := catalog.MediaStream{VideoRangeType: "HDR10"}
	assert.Equal(t, RangeHDR, ResolveDynamicRange(stream, "Movie.2024.mkv"))

	dvStream := catalog.MediaStream{VideoRangeType: "Dolby Vision"}
	assert.Equal(t, RangeDV, ResolveDynamicRange(dvStream, "Movie.2024.mkv"))

	assert.Equal(t, RangeDVHDR, ResolveDynamicRange(catalog.MediaStream{}, "Movie.2024.DV.HDR.mkv"))
	assert.Equal(t, RangeSDR, ResolveDynamicRange(catalog.MediaStream{}, "Movie.2024.mkv"))
}

func TestNormalizeAudioCodec(t *testing.T) {
	cases := []struct {
		codec, profile, title string
		want                  AudioCodec
	}{
		{"TRUEHD", "Atmos", "", CodecAtmos},
		{"DTS", "DTS:X", "", CodecDTSX},
		{"TRUEHD", "", "", CodecTrueHD},
		{"DTS", "DTS-HD MA", "", CodecDTSHDMA},
		{"EAC3", "", "", CodecEAC3},
		{"AC3", "", "", CodecAC3},
		{"AAC", "", "", CodecAAC},
		{"FLAC", "", "", CodecUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeAudioCodec(c.codec, c.profile, c.title), "codec=%s profile=%s", c.codec, c.profile)
	}
}

func TestSelectPrimaryAudioStreamPrefersDefaultThenChannels(t *testing.T) {
	streams := []catalog.MediaStream{
		{Type: "Video", Channels: 8},
		{Type: "Audio", Channels: 2, IsDefault: false},
		{Type: "Audio", Channels: 6, IsDefault: true},
		{Type: "Audio", Channels: 8, IsDefault: true},
	}
	best, found := SelectPrimaryAudioStream(streams)
	assert.True(t, found)
	assert.Equal(t, 8, best.Channels)
	assert.True(t, best.IsDefault)
}

func TestSelectPrimaryAudioStreamNoneFound(t *testing.T) {
	_, found := SelectPrimaryAudioStream([]catalog.MediaStream{{Type: "Video"}})
	assert.False(t, found)
}
