package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var inventory = []Entity{
	{ID: "itm-1", Code: "CHAIR-1001", Description: "Desk chair, black"},
	{ID: "itm-2", Code: "CHAIR-2001", Description: "Lounge chair"},
	{ID: "itm-3", Code: "DESK-1001", Description: "Standing desk"},
	{ID: "itm-4", Code: "LAMP-550", Description: "Floor lamp"},
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"CHAIR-1001": "chair-1001",
		"#1001":      "1001",
		"itm 1001":   "1001",
		"ITM-1001":   "1001",
		"item_1001":  "1001",
		"sub EAST":   "east",
		"sa-9":       "9",
		"sales":      "sales",
		"  lamp  ":   "lamp",
		"itm1001":    "1001",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestResolveExactTier(t *testing.T) {
	matches := Resolve("chair-1001", inventory)
	require.Len(t, matches, 1)
	assert.Equal(t, "itm-1", matches[0].Entity.ID)
	assert.Equal(t, TierExact, matches[0].Tier)

	// Entity IDs resolve exactly too.
	matches = Resolve("itm-3", inventory)
	require.Len(t, matches, 1)
	assert.Equal(t, "DESK-1001", matches[0].Entity.Code)
}

// A numeric query equal to a code's trailing digit run is an exact hit,
// not merely a suffix hit.
func TestResolveNumericPortionIsExact(t *testing.T) {
	matches := Resolve("#1001", inventory)
	require.Len(t, matches, 2)
	assert.Equal(t, "itm-1", matches[0].Entity.ID)
	assert.Equal(t, "itm-3", matches[1].Entity.ID)
	for _, m := range matches {
		assert.Equal(t, TierExact, m.Tier)
	}

	matches = Resolve("550", inventory)
	require.Len(t, matches, 1)
	assert.Equal(t, "itm-4", matches[0].Entity.ID)
	assert.Equal(t, TierExact, matches[0].Tier)
}

func TestResolveSuffixTier(t *testing.T) {
	// "001" ends two codes but equals no code's numeric portion.
	matches := Resolve("001", inventory)
	require.Len(t, matches, 2)
	assert.Equal(t, "itm-1", matches[0].Entity.ID)
	assert.Equal(t, "itm-3", matches[1].Entity.ID)
	for _, m := range matches {
		assert.Equal(t, TierSuffix, m.Tier)
	}
}

func TestResolveSubstringTier(t *testing.T) {
	matches := Resolve("chair", inventory)
	require.Len(t, matches, 2)
	assert.Equal(t, TierSubstring, matches[0].Tier)
	assert.Equal(t, "itm-1", matches[0].Entity.ID)
	assert.Equal(t, "itm-2", matches[1].Entity.ID)
}

// A precise tier is never padded with hits from looser tiers: "1001"
// is the numeric portion of ITM-1001, so the code that merely ends in
// 1001 is discarded.
func TestTiersAreNotMerged(t *testing.T) {
	matches := Resolve("1001", []Entity{
		{ID: "itm-10", Code: "ITM-1001"},
		{ID: "itm-11", Code: "X91001"},
	})
	require.Len(t, matches, 1)
	assert.Equal(t, "itm-10", matches[0].Entity.ID)
	assert.Equal(t, TierExact, matches[0].Tier)

	// Description-only hits still surface when nothing tighter does.
	matches = Resolve("standing", inventory)
	require.Len(t, matches, 1)
	assert.Equal(t, "itm-3", matches[0].Entity.ID)
	assert.Equal(t, TierSubstring, matches[0].Tier)
}

func TestResolveNoMatch(t *testing.T) {
	assert.Empty(t, Resolve("pallet", inventory))
	assert.Empty(t, Resolve("", inventory))
	assert.Empty(t, Resolve("   ", inventory))
}

func TestResolvePreservesInputOrder(t *testing.T) {
	reversed := []Entity{inventory[2], inventory[0]}
	matches := Resolve("1001", reversed)
	require.Len(t, matches, 2)
	assert.Equal(t, "itm-3", matches[0].Entity.ID)
	assert.Equal(t, "itm-1", matches[1].Entity.ID)
}
