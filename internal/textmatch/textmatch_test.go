package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"  Quarterly   Report ", "quarterly report"},
		{"Tab\tand\nnewline", "tab and newline"},
		{"UPPER", "upper"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Quarterly Report", "quarterly report"},
		{"RE: Quarterly Report", "quarterly report"},
		{"Re: Fwd: RE:  Quarterly Report", "quarterly report"},
		{"AW: WG: Angebot", "angebot"},
		{"Re[2]: budget", "budget"},
		{"SV : svar", "svar"},
		{"Antw: offerte", "offerte"},
		{"Return policy", "return policy"},
		{"re:", ""},
	}
	for _, tt := range tests {
		if got := NormalizeSubject(tt.input); got != tt.want {
			t.Errorf("NormalizeSubject(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Ressources-Humaines_Été", "ressources humaines ete"},
		{"Dossier  n° 42/2024", "dossier n 42 2024"},
		{"--", ""},
		{"Crème Brûlée", "creme brulee"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.input), "Fold(%q)", tt.input)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("The Smith-Jones v. Smith lease", 3)
	assert.Equal(t, []string{"the", "smith", "jones", "lease"}, got)

	assert.Empty(t, Tokens("a b c", 3))
	assert.Equal(t, []string{"quarterly"}, Tokens("Q3 quarterly", 5))
}

func TestContainsWord(t *testing.T) {
	assert.True(t, ContainsWord("smith jones lease", "jones"))
	assert.True(t, ContainsWord("smith jones lease", "smith jones"))
	assert.False(t, ContainsWord("smithson lease", "smith"))
	assert.False(t, ContainsWord("", "smith"))
	assert.False(t, ContainsWord("smith", ""))

	assert.Equal(t, 2, CountWords("smith jones lease", []string{"smith", "lease", "deed"}))
}

func TestStripExtension(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"contract.pdf", "contract"},
		{"archive.tar.gz", "archive.tar"},
		{`C:\docs\Smith Lease.docx`, "Smith Lease"},
		{"/tmp/noext", "noext"},
		{".hidden", ".hidden"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripExtension(tt.input), "StripExtension(%q)", tt.input)
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Quarterly Report", "quarterly-report"))

	// Typo tolerance: three edits over fifteen characters.
	assert.InDelta(t, 0.8, Similarity("Human Ressource", "Human Recources"), 0.0001)

	// Short inputs never match fuzzily.
	assert.Equal(t, 0.0, Similarity("abcd", "abcd"))
	assert.Equal(t, 0.0, Similarity("", "anything"))

	// Truncation keeps a long extension of the title from being penalized.
	full := Similarity("Smith Lease", "Smith Lease renewal terms for 2025")
	assert.Equal(t, 1.0, full)

	assert.Less(t, Similarity("Smith Lease", "Jones Merger"), 0.5)
}

func TestSimilarity_Bounds(t *testing.T) {
	pairs := [][2]string{
		{"completely different", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzz"},
		{"abcdef", "fedcba"},
		{"Straße Nord", "Strasse Nord"},
	}
	for _, p := range pairs {
		s := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}
