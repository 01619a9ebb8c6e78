package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

func TestDisabledClient(t *testing.T) {
	c := Disabled()
	ctx := context.Background()

	assert.False(t, c.IsAvailable())

	_, err := c.Generate(ctx, "hello")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.Chat(ctx, []Message{{Role: "user", Content: "hello"}})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.Embed(ctx, "hello")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.EmbedBatch(ctx, []string{"hello"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewClient_DisabledConfig(t *testing.T) {
	c, err := NewClient(Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.IsAvailable())
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.NotEmpty(t, cfg.Model)
	assert.NotEmpty(t, cfg.EmbeddingModel)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.Equal(t, float64(defaultRateLimit), cfg.RateLimit)
	assert.Equal(t, defaultBurst, cfg.Burst)
}

func TestApplyOptions(t *testing.T) {
	o := applyOptions([]Option{WithTemperature(0.7), WithMaxTokens(256)})
	assert.Equal(t, 0.7, o.Temperature)
	assert.Equal(t, 256, o.MaxTokens)
}

func TestChatRole(t *testing.T) {
	assert.Equal(t, schema.ChatMessageTypeSystem, chatRole("system"))
	assert.Equal(t, schema.ChatMessageTypeAI, chatRole("assistant"))
	assert.Equal(t, schema.ChatMessageTypeHuman, chatRole("user"))
	assert.Equal(t, schema.ChatMessageTypeHuman, chatRole("anything-else"))
}
