// Package detector classifies files as likely wallet or private-key material.
//
// Three strategies run in a fixed order: a filename/extension rule, a content
// signature over a bounded prefix, and a combination of the two when both hit.
package detector

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

// MaxConfidence caps combined scores.
const MaxConfidence = 0.99

// Config controls classification.
type Config struct {
	SampleBytes int
	ReadTimeout time.Duration
	// MaxFileSize disables content sampling for larger files. Zero means no limit.
	MaxFileSize int64
	// ExtraExtensions are added as generic extension rules.
	ExtraExtensions []string
	DisableContent  bool
}

// Classifier implements scan.Classifier.
type Classifier struct {
	cfg        Config
	rules      []NameRule
	signatures []Signature
	sampler    *Sampler
	hasher     scan.Hasher
	clock      scan.Clock
	logger     *zap.Logger
}

// New constructs a Classifier with the built-in rules and signatures.
func New(cfg Config, hasher scan.Hasher, clock scan.Clock, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	rules := DefaultNameRules()
	for _, ext := range cfg.ExtraExtensions {
		rules = append(rules, ExtensionRule(ext, 0.4))
	}
	return &Classifier{
		cfg:        cfg,
		rules:      rules,
		signatures: DefaultSignatures(),
		sampler:    NewSampler(cfg.SampleBytes, cfg.ReadTimeout),
		hasher:     hasher,
		clock:      clock,
		logger:     logger,
	}
}

// Classify returns zero or more results for ref in method order: name rule,
// content signature, combination. Read failures skip the content method only.
func (c *Classifier) Classify(ctx context.Context, ref scan.FileRef) []scan.DetectionResult {
	now := c.clock.Now()
	var results []scan.DetectionResult

	rule, nameHit := bestNameRule(c.rules, ref)
	var nameResult scan.DetectionResult
	if nameHit {
		nameResult = scan.DetectionResult{
			Path:         ref.Path,
			WalletType:   rule.WalletType,
			Confidence:   rule.Confidence,
			Method:       rule.Method(),
			Rule:         rule.ID,
			Size:         ref.Size,
			DiscoveredAt: now,
		}
	}

	contentResult, contentHit := c.classifyContent(ctx, ref, now)
	if nameHit {
		nameResult.SampleSHA256 = contentResult.SampleSHA256
		results = append(results, nameResult)
	}
	if contentHit {
		results = append(results, contentResult)
	}
	if nameHit && contentHit {
		results = append(results, combine(nameResult, contentResult))
	}
	return results
}

// classifyContent samples ref and returns the strongest signature hit. The
// returned result carries the sample digest even when nothing matched.
func (c *Classifier) classifyContent(ctx context.Context, ref scan.FileRef, now time.Time) (scan.DetectionResult, bool) {
	if c.cfg.DisableContent || ref.Size == 0 {
		return scan.DetectionResult{}, false
	}
	if c.cfg.MaxFileSize > 0 && ref.Size > c.cfg.MaxFileSize {
		c.logger.Debug("content sampling skipped for oversized file",
			zap.String("path", ref.Path), zap.Int64("size", ref.Size))
		return scan.DetectionResult{}, false
	}
	sample, err := c.sampler.Read(ctx, ref.Path)
	if err != nil {
		c.logger.Debug("content sample failed", zap.String("path", ref.Path), zap.Error(err))
		return scan.DetectionResult{}, false
	}
	digest, err := c.hasher.Hash(sample.Data)
	if err != nil {
		c.logger.Debug("sample digest failed", zap.String("path", ref.Path), zap.Error(err))
	}
	sig, walletType, ok := bestSignature(c.signatures, sample)
	if !ok {
		return scan.DetectionResult{SampleSHA256: digest}, false
	}
	return scan.DetectionResult{
		Path:         ref.Path,
		WalletType:   walletType,
		Confidence:   sig.Confidence,
		Method:       scan.MethodContent,
		Rule:         sig.ID,
		Size:         ref.Size,
		SampleSHA256: digest,
		DiscoveredAt: now,
	}, true
}

func combine(name, content scan.DetectionResult) scan.DetectionResult {
	label := content.WalletType
	if label == scan.WalletUnknown {
		label = name.WalletType
	}
	return scan.DetectionResult{
		Path:         name.Path,
		WalletType:   label,
		Confidence:   CombineConfidence(name.Confidence, content.Confidence),
		Method:       scan.MethodCombination,
		Rule:         name.Rule + "+" + content.Rule,
		Size:         name.Size,
		SampleSHA256: content.SampleSHA256,
		DiscoveredAt: content.DiscoveredAt,
	}
}

// CombineConfidence returns 1-(1-a)(1-b) capped at MaxConfidence, never below
// the larger input.
func CombineConfidence(a, b float64) float64 {
	combined := 1 - (1-a)*(1-b)
	combined = math.Min(MaxConfidence, combined)
	combined = math.Max(combined, math.Max(a, b))
	return math.Round(combined*10000) / 10000
}
