package processor

import (
	"bytes"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessImage_ResizesAndKeepsPNG(t *testing.T) {
	out, mimeType, err := PreprocessImage(testPNG(t, 400, 100), PreprocessOptions{Mode: BalancedMode, MaxDimension: 200})
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestPreprocessImage_HighQuality(t *testing.T) {
	out, _, err := PreprocessImage(testPNG(t, 50, 50), PreprocessOptions{Mode: HighQualityMode, MaxDimension: 2500})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestPreprocessImage_Undecodable(t *testing.T) {
	_, _, err := PreprocessImage([]byte("not an image"), DefaultPreprocessOptions)
	assert.Error(t, err)
}

func TestAnalyzeImageQuality_Range(t *testing.T) {
	img, _, err := image.Decode(bytes.NewReader(testPNG(t, 100, 100)))
	require.NoError(t, err)
	score := qualityScore(img)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestCleanupFor_PicksProfileByScore(t *testing.T) {
	assert.True(t, cleanupFor(30).despeckle)
	assert.Equal(t, standardCleanup, cleanupFor(60))
	assert.Equal(t, lightCleanup, cleanupFor(90))
}
