// File: internal/extractor/adapter_test.go
package extractor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pngprotect/pngprotect-cli/internal/imaging"
)

// The adapter is process-wide state, so these tests run serially and reset it
// around every case.

func TestAcquireReleaseLifecycle(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	cfg := smallNetConfig()
	a1, err := Acquire(cfg)
	require.NoError(t, err)
	a2, err := Acquire(cfg)
	require.NoError(t, err)
	assert.Same(t, a1, a2, "Acquire returns the shared instance")

	Release()
	adapterMu.Lock()
	assert.NotNil(t, adapter, "still one holder outstanding")
	adapterMu.Unlock()

	Release()
	adapterMu.Lock()
	assert.Nil(t, adapter, "last release frees the model")
	adapterMu.Unlock()

	// A fresh Acquire rebuilds from scratch.
	a3, err := Acquire(cfg)
	require.NoError(t, err)
	assert.NotNil(t, a3)
	Release()
}

func TestAcquireFailureIsNotMemoized(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	orig := newModel
	t.Cleanup(func() { newModel = orig })

	boom := errors.New("weights missing")
	calls := 0
	newModel = func(cfg Config) (Model, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return orig(cfg)
	}

	_, err := Acquire(smallNetConfig())
	var unavailable *ModelUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.ErrorIs(t, err, boom)

	// The failure must not poison later attempts.
	a, err := Acquire(smallNetConfig())
	require.NoError(t, err)
	assert.NotNil(t, a)
	assert.Equal(t, 2, calls)
	Release()
}

func TestReleaseWithoutAcquireIsSafe(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	Release() // must not underflow or panic
	_, err := Acquire(smallNetConfig())
	require.NoError(t, err)
	Release()
}

func TestPreprocessShapeAndNormalization(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	a, err := Acquire(smallNetConfig())
	require.NoError(t, err)
	defer Release()

	buf, err := imaging.New(30, 20, 3)
	require.NoError(t, err)

	x, err := a.Preprocess(buf)
	require.NoError(t, err)
	h, w, c := a.InputSize()
	require.Len(t, x, h*w*c)

	// A zero buffer normalizes every channel to (0-mean)/std.
	for ch := 0; ch < modelChannels; ch++ {
		want := -normMean[ch] / normStd[ch]
		assert.InDelta(t, want, x[ch], 1e-5)
	}
}

func TestResampleRoundTripThroughNormalize(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	a, err := Acquire(smallNetConfig())
	require.NoError(t, err)
	defer Release()

	buf, err := imaging.New(8, 8, 3)
	require.NoError(t, err)
	pix := buf.Pix()
	for i := range pix {
		pix[i] = uint8(i % 256)
	}

	p, err := a.ResampleRGB(buf)
	require.NoError(t, err)
	for _, v := range p {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}

	n1 := a.Normalize(p)
	n2, err := a.Preprocess(buf)
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
}

func TestAdapterConcurrentPasses(t *testing.T) {
	defer goleak.VerifyNone(t)
	resetForTest()
	t.Cleanup(resetForTest)

	cfg := smallNetConfig()
	cfg.MaxConcurrent = 2
	a, err := Acquire(cfg)
	require.NoError(t, err)
	defer Release()

	n, ok := a.model.(*patchNet)
	require.True(t, ok)
	x := randomInput(t, n, 99)

	want, err := a.Forward(context.Background(), x)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := a.Forward(context.Background(), x)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestAdapterCancelledContext(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	a, err := Acquire(smallNetConfig())
	require.NoError(t, err)
	defer Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = a.Forward(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}
