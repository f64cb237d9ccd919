package detector

import (
	"strings"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

// MatchKind selects how a NameRule pattern is compared with a file name.
type MatchKind int

// Name matching modes. Comparisons are case-insensitive.
const (
	MatchExact MatchKind = iota + 1
	MatchPrefix
	MatchSubstring
	MatchExtension
)

// NameRule is one filename or extension heuristic with a fixed confidence.
type NameRule struct {
	ID         string
	Kind       MatchKind
	Pattern    string
	WalletType scan.WalletType
	Confidence float64
}

// Method returns the detection method a hit on this rule reports.
func (r NameRule) Method() scan.Method {
	if r.Kind == MatchExtension {
		return scan.MethodExtension
	}
	return scan.MethodFilename
}

func (r NameRule) matches(name, ext string) bool {
	pattern := strings.ToLower(r.Pattern)
	switch r.Kind {
	case MatchExact:
		return name == pattern
	case MatchPrefix:
		return strings.HasPrefix(name, pattern)
	case MatchSubstring:
		return strings.Contains(name, pattern)
	case MatchExtension:
		return ext == pattern
	default:
		return false
	}
}

// DefaultNameRules returns the built-in filename and extension rules. Exact
// wallet filenames score highest and generic extensions lowest.
func DefaultNameRules() []NameRule {
	rules := []NameRule{
		{ID: "name:wallet.dat", Kind: MatchExact, Pattern: "wallet.dat", WalletType: scan.WalletBitcoinCore, Confidence: 0.9},
		{ID: "name:default_wallet", Kind: MatchExact, Pattern: "default_wallet", WalletType: scan.WalletElectrum, Confidence: 0.85},
		{ID: "prefix:utc--", Kind: MatchPrefix, Pattern: "UTC--", WalletType: scan.WalletEthereum, Confidence: 0.85},
		{ID: "ext:.kdbx", Kind: MatchExtension, Pattern: ".kdbx", WalletType: scan.WalletKeePass, Confidence: 0.7},
		{ID: "substr:electrum", Kind: MatchSubstring, Pattern: "electrum", WalletType: scan.WalletElectrum, Confidence: 0.6},
		{ID: "substr:litecoin", Kind: MatchSubstring, Pattern: "litecoin", WalletType: scan.WalletLitecoin, Confidence: 0.6},
		{ID: "substr:dogecoin", Kind: MatchSubstring, Pattern: "dogecoin", WalletType: scan.WalletDogecoin, Confidence: 0.6},
		{ID: "substr:monero", Kind: MatchSubstring, Pattern: "monero", WalletType: scan.WalletMonero, Confidence: 0.6},
		{ID: "substr:multibit", Kind: MatchSubstring, Pattern: "multibit", WalletType: scan.WalletMultiBit, Confidence: 0.6},
		{ID: "substr:exodus", Kind: MatchSubstring, Pattern: "exodus", WalletType: scan.WalletExodus, Confidence: 0.6},
		{ID: "substr:wallet", Kind: MatchSubstring, Pattern: "wallet", WalletType: scan.WalletUnknown, Confidence: 0.5},
		{ID: "substr:seed", Kind: MatchSubstring, Pattern: "seed", WalletType: scan.WalletBIP39Seed, Confidence: 0.5},
		{ID: "substr:mnemonic", Kind: MatchSubstring, Pattern: "mnemonic", WalletType: scan.WalletBIP39Seed, Confidence: 0.5},
	}
	for _, ext := range []string{".wallet", ".key", ".seed", ".mnemonic", ".keystore", ".private", ".walletdb"} {
		rules = append(rules, ExtensionRule(ext, 0.4))
	}
	for _, ext := range []string{".pem", ".p12", ".pfx", ".dat", ".backup"} {
		rules = append(rules, ExtensionRule(ext, 0.3))
	}
	return rules
}

// ExtensionRule builds a generic extension rule labelled unknown.
func ExtensionRule(ext string, confidence float64) NameRule {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return NameRule{
		ID:         "ext:" + ext,
		Kind:       MatchExtension,
		Pattern:    ext,
		WalletType: scan.WalletUnknown,
		Confidence: confidence,
	}
}

// bestNameRule returns the strongest matching rule. Earlier rules win ties.
func bestNameRule(rules []NameRule, ref scan.FileRef) (NameRule, bool) {
	name := strings.ToLower(ref.Name)
	ext := strings.ToLower(ref.Ext)
	var (
		best  NameRule
		found bool
	)
	for _, rule := range rules {
		if !rule.matches(name, ext) {
			continue
		}
		if !found || rule.Confidence > best.Confidence {
			best = rule
			found = true
		}
	}
	return best, found
}
