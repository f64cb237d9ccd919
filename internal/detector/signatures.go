package detector

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

// Sample is the bounded prefix read from a file.
type Sample struct {
	Data []byte
	// Complete is true when Data holds the whole file.
	Complete bool
}

// IsText reports whether the sample looks like text (no NUL bytes).
func (s Sample) IsText() bool {
	return len(s.Data) > 0 && bytes.IndexByte(s.Data, 0) < 0
}

// Signature is a content-magic matcher.
type Signature struct {
	ID         string
	Confidence float64
	// TextOnly signatures are skipped for samples containing NUL bytes.
	TextOnly bool
	Match    func(Sample) (scan.WalletType, bool)
}

var (
	bdbBtreeMagicLE = []byte{0x62, 0x31, 0x05, 0x00}
	bdbBtreeMagicBE = []byte{0x00, 0x05, 0x31, 0x62}
	bitcoinMagic    = []byte{0xE6, 0xE1, 0xCF, 0xFA}
	sqliteHeader    = []byte("SQLite format 3\x00")
	kdbxSignature1  = []byte{0x03, 0xD9, 0xA2, 0x9A}
	kdbxSignature2  = []byte{0x67, 0xFB, 0x4B, 0xB5}

	pemPrivateKey = regexp.MustCompile(`-----BEGIN (?:[A-Z0-9]+ )*PRIVATE KEY-----`)
	wifKey        = regexp.MustCompile(`^[5KLNQ][1-9A-HJ-NP-Za-km-z]{50,51}$`)
	hexKey        = regexp.MustCompile(`^(?:0x)?[a-fA-F0-9]{64}$`)
	configLine    = regexp.MustCompile(`(?i)(bitcoin|litecoin|electrum)[^\n]*:\s*true|db[^\n]*=[^\n]*wallet|wallet[^\n]*pass|multibit[^\n]*wallet`)
)

// DefaultSignatures returns the built-in content signatures ordered by
// specificity.
func DefaultSignatures() []Signature {
	return []Signature{
		{ID: "content:keystore_json", Confidence: 0.9, TextOnly: true, Match: matchKeystoreJSON},
		{ID: "content:berkeley_db", Confidence: 0.85, Match: matchBerkeleyDB},
		{ID: "content:kdbx", Confidence: 0.8, Match: matchKDBX},
		{ID: "content:pem_private_key", Confidence: 0.75, TextOnly: true, Match: matchPEM},
		{ID: "content:wallet_json", Confidence: 0.7, TextOnly: true, Match: matchWalletJSON},
		{ID: "content:private_key", Confidence: 0.6, TextOnly: true, Match: matchPrivateKey},
		{ID: "content:bip39_seed", Confidence: 0.6, TextOnly: true, Match: matchSeedPhrase},
		{ID: "content:wallet_config", Confidence: 0.5, TextOnly: true, Match: matchWalletConfig},
		{ID: "content:sqlite", Confidence: 0.35, Match: matchSQLite},
	}
}

// bestSignature returns the strongest matching signature. Earlier signatures
// win ties.
func bestSignature(sigs []Signature, sample Sample) (Signature, scan.WalletType, bool) {
	text := sample.IsText()
	var (
		best     Signature
		bestType scan.WalletType
		found    bool
	)
	for _, sig := range sigs {
		if sig.TextOnly && !text {
			continue
		}
		wt, ok := sig.Match(sample)
		if !ok {
			continue
		}
		if !found || sig.Confidence > best.Confidence {
			best, bestType, found = sig, wt, true
		}
	}
	return best, bestType, found
}

func matchBerkeleyDB(s Sample) (scan.WalletType, bool) {
	if len(s.Data) >= 16 {
		magic := s.Data[12:16]
		if bytes.Equal(magic, bdbBtreeMagicLE) || bytes.Equal(magic, bdbBtreeMagicBE) {
			return scan.WalletBitcoinCore, true
		}
	}
	if bytes.Contains(s.Data, bitcoinMagic) {
		return scan.WalletBitcoinCore, true
	}
	return "", false
}

func matchSQLite(s Sample) (scan.WalletType, bool) {
	return scan.WalletUnknown, bytes.HasPrefix(s.Data, sqliteHeader)
}

func matchKDBX(s Sample) (scan.WalletType, bool) {
	if len(s.Data) < 8 {
		return "", false
	}
	if bytes.Equal(s.Data[:4], kdbxSignature1) && bytes.Equal(s.Data[4:8], kdbxSignature2) {
		return scan.WalletKeePass, true
	}
	return "", false
}

func matchPEM(s Sample) (scan.WalletType, bool) {
	return scan.WalletPEMKey, pemPrivateKey.Match(s.Data)
}

type keystoreCrypto struct {
	Ciphertext string          `json:"ciphertext"`
	KDF        string          `json:"kdf"`
	KDFParams  json.RawMessage `json:"kdfparams"`
}

type keystoreShape struct {
	Version     json.RawMessage `json:"version"`
	Crypto      *keystoreCrypto `json:"crypto"`
	CryptoUpper *keystoreCrypto `json:"Crypto"`
}

func matchKeystoreJSON(s Sample) (scan.WalletType, bool) {
	trimmed := bytes.TrimSpace(s.Data)
	if !bytes.HasPrefix(trimmed, []byte("{")) {
		return "", false
	}
	if !s.Complete {
		// Truncated sample: fall back to key markers.
		for _, key := range []string{`"ciphertext"`, `"kdf"`, `"version"`} {
			if !bytes.Contains(trimmed, []byte(key)) {
				return "", false
			}
		}
		lower := bytes.ToLower(trimmed)
		return scan.WalletEthereum, bytes.Contains(lower, []byte(`"crypto"`))
	}
	var ks keystoreShape
	if err := json.Unmarshal(trimmed, &ks); err != nil {
		return "", false
	}
	c := ks.Crypto
	if c == nil {
		c = ks.CryptoUpper
	}
	if c == nil || c.Ciphertext == "" || c.KDF == "" || len(ks.Version) == 0 {
		return "", false
	}
	return scan.WalletEthereum, true
}

func matchWalletJSON(s Sample) (scan.WalletType, bool) {
	if !s.Complete {
		return "", false
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(s.Data), &doc); err != nil {
		return "", false
	}
	if _, ok := doc["walletModel"]; ok {
		return scan.WalletMultiBit, true
	}
	if _, ok := doc["primaryWallet"]; ok {
		return scan.WalletExodus, true
	}
	if _, ok := doc["wallets"]; ok {
		return scan.WalletMultiBit, true
	}
	return "", false
}

func matchPrivateKey(s Sample) (scan.WalletType, bool) {
	for line := range strings.Lines(string(s.Data)) {
		line = strings.TrimSpace(line)
		if wifKey.MatchString(line) || hexKey.MatchString(line) {
			return scan.WalletPrivateKey, true
		}
	}
	return "", false
}

func matchSeedPhrase(s Sample) (scan.WalletType, bool) {
	return scan.WalletBIP39Seed, looksLikeSeedPhrase(string(s.Data))
}

func matchWalletConfig(s Sample) (scan.WalletType, bool) {
	return scan.WalletConfigFile, configLine.Match(s.Data)
}
