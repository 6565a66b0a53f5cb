package bottle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medcab/internal/catalog"
)

func testSnapshot() catalog.Snapshot {
	return catalog.Snapshot{
		{ID: "m1", Name: "Ibuprofen", GenericName: "Advil", Quantity: 20},
		{ID: "m2", Name: "Acetaminophen Extra Strength", GenericName: "Tylenol", Quantity: 10},
		{ID: "m3", Name: "Lisinopril", Quantity: 5},
	}
}

func TestSearchTextExactNameIsTopMatch(t *testing.T) {
	text := "RX 448812\nIBUPROFEN 200 MG TABLETS\ntake one tablet every 6 hours"
	matches := SearchText(text, testSnapshot())

	require.NotEmpty(t, matches)
	assert.Equal(t, "m1", matches[0].Entry.ID)
	assert.Equal(t, 95.0, matches[0].Score)
	assert.Equal(t, "exact match", matches[0].Method)
}

func TestSearchTextGenericName(t *testing.T) {
	matches := SearchText("ADVIL liqui-gels 200mg", testSnapshot())

	require.NotEmpty(t, matches)
	assert.Equal(t, "m1", matches[0].Entry.ID)
	assert.Equal(t, 90.0, matches[0].Score)
}

func TestSearchTextAllWordsBeatsFirstWord(t *testing.T) {
	snap := testSnapshot()

	all := SearchText("acetaminophen caplets extra strength 500mg", snap)
	require.NotEmpty(t, all)
	assert.Equal(t, "m2", all[0].Entry.ID)
	assert.Equal(t, 85.0, all[0].Score)

	first := SearchText("acetaminophen 325mg", snap)
	require.NotEmpty(t, first)
	assert.Equal(t, "m2", first[0].Entry.ID)
	assert.Equal(t, 75.0, first[0].Score)
}

func TestSearchTextFuzzyOCRNoise(t *testing.T) {
	// One dropped character, the kind of corruption OCR produces.
	matches := SearchText("LISINOPRL 10MG", testSnapshot())

	require.NotEmpty(t, matches)
	assert.Equal(t, "m3", matches[0].Entry.ID)
	assert.Less(t, matches[0].Score, 75.0)
	assert.Contains(t, matches[0].Method, "fuzzy")
}

func TestSearchTextOrderedByScore(t *testing.T) {
	matches := SearchText("ibuprofen and lisinopril noted on chart", testSnapshot())

	require.Len(t, matches, 2)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestSearchTextNoMatch(t *testing.T) {
	assert.Empty(t, SearchText("metformin hydrochloride 500mg", testSnapshot()))
	assert.Empty(t, SearchText("", testSnapshot()))
}

func TestExtractDosage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"ibuprofen 200 mg tablets", "200 mg"},
		{"take 2.5mg daily", "2.5 mg"},
		{"insulin 10 units", "10 units"},
		{"levothyroxine 50 MCG", "50 mcg"},
		{"no numbers here", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractDosage(tt.text), tt.text)
	}
}

func TestEvaluateUnreadableVsNoMatch(t *testing.T) {
	snap := testSnapshot()

	unreadable := Evaluate("  x ", snap)
	assert.True(t, unreadable.Unreadable)
	assert.False(t, unreadable.Success)
	assert.NotEmpty(t, unreadable.Guidance)
	assert.NotEmpty(t, unreadable.Suggestions)

	noMatch := Evaluate("metformin 500mg twice daily", snap)
	assert.False(t, noMatch.Unreadable)
	assert.False(t, noMatch.Success)
	assert.Nil(t, noMatch.Primary)
	assert.Equal(t, "500 mg", noMatch.Dosage)
}

func TestEvaluateSuccess(t *testing.T) {
	reading := Evaluate("IBUPROFEN 200 MG\nLISINOPRIL mentioned too", testSnapshot())

	assert.True(t, reading.Success)
	require.NotNil(t, reading.Primary)
	assert.Equal(t, "m1", reading.Primary.Entry.ID)
	assert.Equal(t, "200 mg", reading.Dosage)
	require.Len(t, reading.Alternates, 1)
	assert.Equal(t, "m3", reading.Alternates[0].Entry.ID)
}
