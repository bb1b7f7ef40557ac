package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomStaysInRange(t *testing.T) {
	r := NewRandom(42)
	for i := 0; i < 1000; i++ {
		score, err := r.Score(context.Background(), Input{})
		require.NoError(t, err)
		assert.True(t, InRange(score), "score %d", score)
	}
}

func TestRandomIsDeterministicPerSeed(t *testing.T) {
	a, b := NewRandom(7), NewRandom(7)
	for i := 0; i < 20; i++ {
		x, _ := a.Score(context.Background(), Input{})
		y, _ := b.Score(context.Background(), Input{})
		assert.Equal(t, x, y)
	}
}

func TestRandomHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRandom(1).Score(ctx, Input{})
	assert.Error(t, err)
}

func TestFixed(t *testing.T) {
	score, err := Fixed(90).Score(context.Background(), Input{})
	require.NoError(t, err)
	assert.Equal(t, 90, score)
}

func TestInRange(t *testing.T) {
	assert.True(t, InRange(0))
	assert.True(t, InRange(100))
	assert.False(t, InRange(-1))
	assert.False(t, InRange(101))
}
