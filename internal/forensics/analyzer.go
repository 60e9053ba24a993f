// File: internal/forensics/analyzer.go

// Package forensics inspects a buffer for evidence of tampering: disturbed
// LSB planes, recompression blocking, and missing or damaged watermarks. The
// analysis is fully deterministic; the same bytes always produce the same
// verdict.
package forensics

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
	"github.com/pngprotect/pngprotect-cli/internal/imaging"
	"github.com/pngprotect/pngprotect-cli/internal/watermark"
)

// Signal weights. The combination is a fixed linear blend so confidence moves
// monotonically with every individual signal.
const (
	weightDisorder = 0.40
	weightAbsence  = 0.35
	weightBlocking = 0.25

	disorderFlagThreshold = 0.85
	blockingFlagThreshold = 0.50
)

// Analyzer scores buffers for post-watermarking modification.
type Analyzer struct {
	logger *zap.Logger
}

// NewAnalyzer creates a forensic analyzer.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{logger: logger.Named("forensics")}
}

// Analyze produces a tamper verdict for the buffer. claimedOwner is optional;
// when set and a payload is recovered, the verdict reports whether the
// recovered owner matches. Context is consulted before the heavier passes.
func (a *Analyzer) Analyze(ctx context.Context, buf *imaging.PixelBuffer, claimedOwner string) (schemas.TamperVerdict, error) {
	if err := buf.Validate(); err != nil {
		return schemas.TamperVerdict{}, err
	}
	if err := ctx.Err(); err != nil {
		return schemas.TamperVerdict{}, fmt.Errorf("forensics: %w", err)
	}

	extraction, err := watermark.Extract(buf)
	if err != nil {
		return schemas.TamperVerdict{}, fmt.Errorf("forensics: extraction pass: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return schemas.TamperVerdict{}, fmt.Errorf("forensics: %w", err)
	}

	lsb := analyzeLSB(buf)
	blocking := blockArtifact(buf)
	absence := watermarkAbsence(extraction)

	// A cleanly recovered watermark explains the LSB noise it created; only
	// the unexplained share of the disorder counts as tamper evidence.
	explained := 0.0
	if extraction.Validity == schemas.ValidityValid {
		explained = extraction.AgreementRatio
	}
	disorder := lsb.disorder * (1 - explained)

	signals := schemas.TamperSignals{
		LSBDisorder:      lsb.disorder,
		LSBEntropy:       lsb.entropy,
		LSBChiSquare:     lsb.chiSquare,
		BlockArtifact:    blocking,
		WatermarkAbsence: absence,
	}

	verdict := schemas.TamperVerdict{
		TamperConfidence: 100 * (weightDisorder*disorder + weightAbsence*absence + weightBlocking*blocking),
		Extraction:       extraction,
		Signals:          signals,
	}

	flags := map[schemas.Flag]bool{}
	if disorder > disorderFlagThreshold {
		flags[schemas.FlagLSBDisturbed] = true
	}
	if blocking > blockingFlagThreshold {
		flags[schemas.FlagRecompression] = true
	}
	switch extraction.Validity {
	case schemas.ValidityNotFound:
		flags[schemas.FlagWatermarkMissing] = true
	case schemas.ValidityCorrupted:
		flags[schemas.FlagWatermarkCorrupted] = true
	case schemas.ValidityValid:
		if claimedOwner != "" {
			match := extraction.OwnerID == claimedOwner
			verdict.OwnerMatch = &match
			if !match {
				flags[schemas.FlagOwnerMismatch] = true
			}
		}
	}
	verdict.Flags = sortedFlags(flags)

	a.logger.Debug("analysis complete",
		zap.Float64("confidence", verdict.TamperConfidence),
		zap.String("validity", string(extraction.Validity)),
		zap.Int("flags", len(verdict.Flags)))
	return verdict, nil
}

// watermarkAbsence converts an extraction outcome into its tamper
// contribution. A clean valid payload contributes nothing; damaged copies
// contribute in proportion to their disagreement; a corrupted payload is
// stronger evidence than no payload at all, since the marker proves one was
// there.
func watermarkAbsence(res schemas.ExtractResult) float64 {
	switch res.Validity {
	case schemas.ValidityValid:
		return (1 - res.AgreementRatio) * 0.3
	case schemas.ValidityCorrupted:
		return 0.8
	default:
		return 0.6
	}
}

func sortedFlags(set map[schemas.Flag]bool) []schemas.Flag {
	if len(set) == 0 {
		return nil
	}
	out := make([]schemas.Flag, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
