// Package textmatch holds the string normalization and similarity helpers
// shared by scoring, caching and duplicate lookup.
package textmatch

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// replyPrefixRegex matches one leading reply/forward marker, e.g. "Re:", "FWD[2]:", "AW :".
var replyPrefixRegex = regexp.MustCompile(`^(?i)(re|fw|fwd|aw|wg|tr|sv|antw)\s*(\[\d+\])?\s*:\s*`)

// Normalize trims, lowercases and collapses internal whitespace.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// NormalizeSubject normalizes s and strips any number of leading
// reply/forward prefixes ("Re: Fwd: Re: x" -> "x").
func NormalizeSubject(s string) string {
	s = Normalize(s)
	for {
		stripped := replyPrefixRegex.ReplaceAllString(s, "")
		if stripped == s {
			return s
		}
		s = strings.TrimSpace(stripped)
	}
}

// Fold lowercases s, removes diacritics and turns every run of
// non-alphanumeric characters (hyphens, underscores, punctuation) into a
// single space. "Ressources-Humaines_Été" -> "ressources humaines ete".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens returns the distinct folded tokens of s that are at least minLen
// runes long, in order of first appearance.
func Tokens(s string, minLen int) []string {
	fields := strings.Fields(Fold(s))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minLen {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// ContainsWord reports whether needle occurs in haystack on word
// boundaries. Both arguments must already be folded.
func ContainsWord(haystack, needle string) bool {
	if needle == "" || haystack == "" {
		return false
	}
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// CountWords returns how many of words occur in the folded haystack.
func CountWords(haystack string, words []string) int {
	n := 0
	for _, w := range words {
		if ContainsWord(haystack, w) {
			n++
		}
	}
	return n
}

// StripExtension drops the directory and final extension of a file name.
func StripExtension(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if ext := path.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// RuneLen returns the character count of s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
