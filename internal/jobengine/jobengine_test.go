package jobengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aphrodite-badges/aphrodite/internal/badges"
)

func TestTakeOverrideConsumesOnce(t *testing.T) {
	e := &Engine{}
	mask := badges.TypeMask{badges.TypeResolution: true}
	e.overrides.Store("item-1", overridePayload{data: []byte("poster"), mime: "image/jpeg", applyBadges: true, mask: mask})

	got, ok := e.takeOverride("item-1")
	assert.True(t, ok)
	assert.Equal(t, []byte("poster"), got.data)
	assert.Equal(t, "image/jpeg", got.mime)
	assert.True(t, got.applyBadges)

	_, ok = e.takeOverride("item-1")
	assert.False(t, ok, "override must be consumed on first read")
}

func TestTakeOverrideMissingItem(t *testing.T) {
	e := &Engine{}
	_, ok := e.takeOverride("never-submitted")
	assert.False(t, ok)
}

func TestIsTerminal(t *testing.T) {
	terminal := []string{"succeeded", "failed", "cancelled", "partial"}
	for _, s := range terminal {
		assert.True(t, isTerminal(s), s)
	}
	nonTerminal := []string{"queued", "running", ""}
	for _, s := range nonTerminal {
		assert.False(t, isTerminal(s), s)
	}
}
