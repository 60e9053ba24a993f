// File: api/schemas/results.go
package schemas

// -- Watermark Schemas --

// Validity is the outcome of a watermark extraction attempt. "No watermark
// present" is an expected business outcome, so these are data states rather
// than errors.
type Validity string

const (
	// ValidityValid means a payload copy passed its checksum.
	ValidityValid Validity = "valid"
	// ValidityCorrupted means the magic marker was found but every available
	// copy failed its checksum, even after cross-copy voting.
	ValidityCorrupted Validity = "corrupted"
	// ValidityNotFound means no marker was confirmed at any supported strength.
	ValidityNotFound Validity = "not_found"
)

// EmbedResult reports how a watermark was written into a buffer.
type EmbedResult struct {
	OwnerID  string `json:"owner_id"`
	Strength int    `json:"strength"`

	// PlanesUsed is the total number of LSB planes carrying payload bits.
	PlanesUsed int `json:"planes_used"`

	// CapacityBits is the embeddable capacity of the buffer at the chosen
	// strength; PayloadBits is the size of one serialized payload copy.
	CapacityBits int `json:"capacity_bits"`
	PayloadBits  int `json:"payload_bits"`

	// Copies is how many full payload copies the cyclic fill produced.
	Copies int `json:"copies"`

	// CapacityUtilization is PayloadBits/CapacityBits for a single copy.
	CapacityUtilization float64 `json:"capacity_utilization"`
}

// ExtractResult reports a recovered payload, or the reason none was recovered.
type ExtractResult struct {
	OwnerID  string   `json:"owner_id,omitempty"`
	Validity Validity `json:"validity"`

	// Strength is the bit-depth the payload was detected at, 0 when not found.
	Strength int `json:"strength,omitempty"`

	// Copies is the number of full payload copies inspected; AgreementRatio is
	// the fraction of those copies that byte-match the recovered payload.
	Copies         int     `json:"copies,omitempty"`
	AgreementRatio float64 `json:"agreement_ratio,omitempty"`

	// PartialRecovery is set when the payload was reconstructed by majority
	// vote because at least one copy was damaged.
	PartialRecovery bool `json:"partial_recovery,omitempty"`
}

// -- Shield Schemas --

// TargetMode selects the adversarial objective.
type TargetMode string

const (
	// ModeUntargeted maximizes the classification loss of the clean top class.
	ModeUntargeted TargetMode = "untargeted"
	// ModeEmbedDistance maximizes the distance from the clean embedding.
	ModeEmbedDistance TargetMode = "embedding-distance"
)

// PerturbationSpec bounds a single adversarial synthesis run. Epsilon and
// StepSize are in normalized pixel units ([0,1] intensity range).
type PerturbationSpec struct {
	Epsilon  float64    `json:"epsilon"`
	Steps    int        `json:"steps"`
	StepSize float64    `json:"step_size"`
	Mode     TargetMode `json:"mode"`
}

// ShieldResult reports a completed protection run.
type ShieldResult struct {
	Level int              `json:"level"`
	Spec  PerturbationSpec `json:"spec"`

	// RobustnessScore estimates resistance to feature extraction, 0-100.
	RobustnessScore float64 `json:"robustness_score"`

	// MeanAbsDelta is the perceptual-distortion estimate: the mean absolute
	// per-sample change in normalized units.
	MeanAbsDelta float64 `json:"mean_abs_delta"`

	StepsRun int `json:"steps_run"`
}

// -- Forensics Schemas --

// Flag marks a specific integrity signal raised by the forensic analyzer.
type Flag string

const (
	FlagLSBDisturbed       Flag = "lsb-plane-disturbed"
	FlagRecompression      Flag = "recompression-detected"
	FlagWatermarkMissing   Flag = "watermark-missing"
	FlagWatermarkCorrupted Flag = "watermark-corrupted"
	FlagOwnerMismatch      Flag = "owner-mismatch"
)

// TamperSignals exposes the raw per-signal measurements behind a verdict so
// callers can inspect how the confidence was derived.
type TamperSignals struct {
	// LSBDisorder is the combined least-significant-bit-plane disorder
	// statistic in [0,1]; LSBEntropy and LSBChiSquare are its components.
	LSBDisorder  float64 `json:"lsb_disorder"`
	LSBEntropy   float64 `json:"lsb_entropy"`
	LSBChiSquare float64 `json:"lsb_chi_square"`

	// BlockArtifact measures 8x8 block-boundary discontinuity consistent with
	// recompression, in [0,1].
	BlockArtifact float64 `json:"block_artifact"`

	// WatermarkAbsence is the contribution of a missing or damaged watermark,
	// in [0,1].
	WatermarkAbsence float64 `json:"watermark_absence"`
}

// TamperVerdict is the forensic analyzer's conclusion for one buffer.
type TamperVerdict struct {
	// TamperConfidence is the likelihood, 0-100, that the image was modified
	// or had its watermark stripped after original watermarking.
	TamperConfidence float64 `json:"tamper_confidence"`

	Flags []Flag `json:"flags,omitempty"`

	// OwnerMatch is set only when a claimed owner id was supplied and a
	// payload was recovered to compare against.
	OwnerMatch *bool `json:"owner_match,omitempty"`

	Extraction ExtractResult `json:"extraction"`
	Signals    TamperSignals `json:"signals"`
}

// HasFlag reports whether the verdict raised the given flag.
func (v *TamperVerdict) HasFlag(f Flag) bool {
	for _, have := range v.Flags {
		if have == f {
			return true
		}
	}
	return false
}
