package detector

import (
	_ "embed"
	"strings"
)

//go:embed bip39_words.txt
var bip39Raw string

var bip39Words = func() map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(bip39Raw) {
		words[w] = struct{}{}
	}
	return words
}()

// looksLikeSeedPhrase reports whether text is a 12 to 24 word mnemonic: a
// valid BIP39 word count, every token a plausible BIP39 word, and at least
// one of the first five tokens present in the embedded word subset.
func looksLikeSeedPhrase(text string) bool {
	words := strings.Fields(text)
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return false
	}
	for _, w := range words {
		if len(w) < 3 || len(w) > 8 {
			return false
		}
		for _, r := range w {
			if r < 'a' || r > 'z' {
				return false
			}
		}
	}
	for _, w := range words[:5] {
		if _, ok := bip39Words[w]; ok {
			return true
		}
	}
	return false
}
