package processor

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonegate/internal/verification/models"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestEvaluate(t *testing.T) {
	p := NewBasic()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid image passes", func(t *testing.T) {
		out := p.Evaluate(models.KindJoin, pngBytes(t, 400, 300), now)
		assert.Equal(t, models.StatusPassed, out.Status)
		assert.Equal(t, 0.95, out.Confidence)
		assert.Equal(t, "image/png", out.Diagnostics.ImageFormat)
		assert.Equal(t, 400, out.Diagnostics.Width)
		assert.Equal(t, 300, out.Diagnostics.Height)
		assert.Empty(t, out.Diagnostics.FailureReason)
	})

	t.Run("random kind gets lower confidence", func(t *testing.T) {
		out := p.Evaluate(models.KindRandom, pngBytes(t, 400, 300), now)
		assert.Equal(t, models.StatusPassed, out.Status)
		assert.Equal(t, 0.90, out.Confidence)
	})

	t.Run("oversized image fails before any decode", func(t *testing.T) {
		big := make([]byte, 5*1024*1024+1)
		out := p.Evaluate(models.KindJoin, big, now)
		assert.Equal(t, models.StatusFailed, out.Status)
		assert.Equal(t, "too large", out.Diagnostics.FailureReason)
		assert.Zero(t, out.Confidence)
	})

	t.Run("non-image content fails", func(t *testing.T) {
		out := p.Evaluate(models.KindJoin, []byte("definitely not an image"), now)
		assert.Equal(t, models.StatusFailed, out.Status)
		assert.Equal(t, "invalid format", out.Diagnostics.FailureReason)
	})

	t.Run("corrupt image fails", func(t *testing.T) {
		// PNG signature followed by garbage: passes the content-type sniff
		// but cannot be decoded.
		corrupt := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0xde, 0xad}, 64)...)
		out := p.Evaluate(models.KindJoin, corrupt, now)
		assert.Equal(t, models.StatusFailed, out.Status)
		assert.Equal(t, "invalid image", out.Diagnostics.FailureReason)
	})

	t.Run("low resolution fails", func(t *testing.T) {
		out := p.Evaluate(models.KindJoin, pngBytes(t, 199, 400), now)
		assert.Equal(t, models.StatusFailed, out.Status)
		assert.Equal(t, "resolution too low", out.Diagnostics.FailureReason)
		assert.Equal(t, 199, out.Diagnostics.Width)
	})
}

// Replaying the same bytes must always produce the same verdict; the join
// retry contract depends on it.
func TestEvaluateDeterministic(t *testing.T) {
	p := NewBasic()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	inputs := [][]byte{
		pngBytes(t, 400, 300),
		pngBytes(t, 100, 100),
		[]byte("not an image"),
	}
	for _, in := range inputs {
		first := p.Evaluate(models.KindJoin, in, now)
		for range 5 {
			again := p.Evaluate(models.KindJoin, in, now)
			assert.Equal(t, first, again)
		}
	}
}
