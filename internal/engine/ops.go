// File: internal/engine/ops.go
package engine

import (
	"context"
	"fmt"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
	"github.com/pngprotect/pngprotect-cli/internal/extractor"
	"github.com/pngprotect/pngprotect-cli/internal/forensics"
	"github.com/pngprotect/pngprotect-cli/internal/imaging"
	"github.com/pngprotect/pngprotect-cli/internal/shield"
	"github.com/pngprotect/pngprotect-cli/internal/watermark"
)

// embedAdapter writes an ownership watermark into the input image.
type embedAdapter struct{}

func (a *embedAdapter) Name() string { return "embed" }

func (a *embedAdapter) Execute(ctx context.Context, task *schemas.Task, env *schemas.ResultEnvelope) error {
	if task.Output == "" {
		return fmt.Errorf("embed requires an output path")
	}
	buf, _, err := imaging.DecodeFile(task.Input)
	if err != nil {
		return err
	}
	payload, err := watermark.NewPayload(task.OwnerID)
	if err != nil {
		return err
	}
	out, result, err := watermark.Embed(buf, payload, task.Strength)
	if err != nil {
		return err
	}
	if err := imaging.EncodeFile(task.Output, out); err != nil {
		return err
	}
	env.Embed = &result
	return nil
}

// extractAdapter recovers a watermark from the input image.
type extractAdapter struct{}

func (a *extractAdapter) Name() string { return "extract" }

func (a *extractAdapter) Execute(ctx context.Context, task *schemas.Task, env *schemas.ResultEnvelope) error {
	buf, _, err := imaging.DecodeFile(task.Input)
	if err != nil {
		return err
	}
	result, err := watermark.Extract(buf)
	if err != nil {
		return err
	}
	env.Extract = &result
	return nil
}

// protectAdapter applies an adversarial shield to the input image.
type protectAdapter struct {
	extCfg extractor.Config
}

func (a *protectAdapter) Name() string { return "protect" }

func (a *protectAdapter) Execute(ctx context.Context, task *schemas.Task, env *schemas.ResultEnvelope) error {
	if task.Output == "" {
		return fmt.Errorf("protect requires an output path")
	}
	buf, _, err := imaging.DecodeFile(task.Input)
	if err != nil {
		return err
	}
	out, result, err := shield.Protect(ctx, buf, task.Level, a.extCfg)
	if err != nil {
		return err
	}
	if err := imaging.EncodeFile(task.Output, out); err != nil {
		return err
	}
	env.Shield = &result
	return nil
}

// scoreAdapter estimates the robustness of the input image as-is.
type scoreAdapter struct {
	extCfg extractor.Config
}

func (a *scoreAdapter) Name() string { return "score" }

func (a *scoreAdapter) Execute(ctx context.Context, task *schemas.Task, env *schemas.ResultEnvelope) error {
	buf, _, err := imaging.DecodeFile(task.Input)
	if err != nil {
		return err
	}
	score, err := shield.Score(ctx, buf, a.extCfg)
	if err != nil {
		return err
	}
	env.Score = &score
	return nil
}

// analyzeAdapter runs the forensic tamper analysis.
type analyzeAdapter struct {
	analyzer *forensics.Analyzer
}

func (a *analyzeAdapter) Name() string { return "analyze" }

func (a *analyzeAdapter) Execute(ctx context.Context, task *schemas.Task, env *schemas.ResultEnvelope) error {
	buf, _, err := imaging.DecodeFile(task.Input)
	if err != nil {
		return err
	}
	verdict, err := a.analyzer.Analyze(ctx, buf, task.OwnerID)
	if err != nil {
		return err
	}
	env.Verdict = &verdict
	return nil
}

// stripAdapter rewrites the input as a pixel-only PNG, dropping all metadata.
type stripAdapter struct{}

func (a *stripAdapter) Name() string { return "strip" }

func (a *stripAdapter) Execute(ctx context.Context, task *schemas.Task, env *schemas.ResultEnvelope) error {
	if task.Output == "" {
		return fmt.Errorf("strip requires an output path")
	}
	buf, _, err := imaging.DecodeFile(task.Input)
	if err != nil {
		return err
	}
	out, err := imaging.StripMetadata(buf)
	if err != nil {
		return err
	}
	return imaging.EncodeFile(task.Output, out)
}
