// File: internal/engine/ops_test.go
package engine

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
	"github.com/pngprotect/pngprotect-cli/internal/imaging"
)

func writeTestPNG(t *testing.T, path string, seed int64) {
	t.Helper()
	buf, err := imaging.New(48, 48, 3)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(seed))
	pix := buf.Pix()
	for i := range pix {
		pix[i] = uint8(rng.Intn(256))
	}
	require.NoError(t, imaging.EncodeFile(path, buf))
}

func TestEmbedExtractAdaptersEndToEnd(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.png")
	marked := filepath.Join(dir, "marked.png")
	writeTestPNG(t, input, 1)

	cfg := testConfig()
	rep := &memReporter{}
	eng := New(cfg, zap.NewNop(), rep)

	embedEnv := eng.Execute(context.Background(), &schemas.Task{
		TaskID:   "t-embed",
		Type:     schemas.TaskEmbed,
		Input:    input,
		Output:   marked,
		OwnerID:  "artist-42",
		Strength: 5,
	})
	require.Empty(t, embedEnv.Error)
	require.NotNil(t, embedEnv.Embed)
	assert.Equal(t, "artist-42", embedEnv.Embed.OwnerID)

	extractEnv := eng.Execute(context.Background(), &schemas.Task{
		TaskID: "t-extract",
		Type:   schemas.TaskExtract,
		Input:  marked,
	})
	require.Empty(t, extractEnv.Error)
	require.NotNil(t, extractEnv.Extract)
	assert.Equal(t, schemas.ValidityValid, extractEnv.Extract.Validity)
	assert.Equal(t, "artist-42", extractEnv.Extract.OwnerID)
}

func TestEmbedAdapterRequiresOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.png")
	writeTestPNG(t, input, 2)

	eng := New(testConfig(), zap.NewNop(), &memReporter{})
	env := eng.Execute(context.Background(), &schemas.Task{
		Type:     schemas.TaskEmbed,
		Input:    input,
		OwnerID:  "artist",
		Strength: 3,
	})
	assert.Contains(t, env.Error, "output path")
}

func TestAdaptersRejectMissingInput(t *testing.T) {
	eng := New(testConfig(), zap.NewNop(), &memReporter{})
	env := eng.Execute(context.Background(), &schemas.Task{
		Type:  schemas.TaskExtract,
		Input: filepath.Join(t.TempDir(), "missing.png"),
	})
	assert.NotEmpty(t, env.Error)
}

func TestStripAdapterPreservesWatermark(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.png")
	marked := filepath.Join(dir, "marked.png")
	stripped := filepath.Join(dir, "stripped.png")
	writeTestPNG(t, input, 3)

	eng := New(testConfig(), zap.NewNop(), &memReporter{})

	env := eng.Execute(context.Background(), &schemas.Task{
		Type: schemas.TaskEmbed, Input: input, Output: marked,
		OwnerID: "artist-42", Strength: 5,
	})
	require.Empty(t, env.Error)

	env = eng.Execute(context.Background(), &schemas.Task{
		Type: schemas.TaskStrip, Input: marked, Output: stripped,
	})
	require.Empty(t, env.Error)

	env = eng.Execute(context.Background(), &schemas.Task{
		Type: schemas.TaskExtract, Input: stripped,
	})
	require.Empty(t, env.Error)
	require.NotNil(t, env.Extract)
	assert.Equal(t, schemas.ValidityValid, env.Extract.Validity, "strip keeps pixel data intact")
	assert.Equal(t, "artist-42", env.Extract.OwnerID)
}
