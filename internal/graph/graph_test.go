package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/llm"
	"github.com/loomlabs/loomd/internal/workflow"
)

func TestHTTPProvider_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "slack webhook", req["query"])

		insight := workflow.GraphInsight{
			RelatedEntities: []workflow.Entity{
				{Name: "n8n-nodes-base.slack", Kind: "node", Score: 0.91},
			},
			Summary: "slack integrations",
		}
		_ = json.NewEncoder(w).Encode(insight)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	insight, err := p.Query(context.Background(), "slack webhook")
	require.NoError(t, err)
	require.Len(t, insight.RelatedEntities, 1)
	assert.Equal(t, "n8n-nodes-base.slack", insight.RelatedEntities[0].Name)
}

func TestHTTPProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "graph backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.Query(context.Background(), "anything")
	assert.Error(t, err)
}

func TestHTTPProvider_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPProvider(HTTPConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChromemProvider_EmptyInsightWithoutLLM(t *testing.T) {
	p, err := NewChromemProvider(ChromemConfig{Path: t.TempDir()}, llm.Disabled(), zap.NewNop())
	require.NoError(t, err)

	insight, err := p.Query(context.Background(), "slack webhook")
	require.NoError(t, err)
	assert.Empty(t, insight.RelatedEntities)
	assert.Empty(t, insight.Summary)
}

func TestChromemProvider_ApplyUpdateWithoutLLM(t *testing.T) {
	p, err := NewChromemProvider(ChromemConfig{Path: t.TempDir()}, llm.Disabled(), zap.NewNop())
	require.NoError(t, err)

	err = p.ApplyUpdate(context.Background(), Update{Documents: map[string]string{"a": "doc"}})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewProvider_Factory(t *testing.T) {
	p, err := NewProvider(Config{Chromem: ChromemConfig{Path: t.TempDir()}}, llm.Disabled(), zap.NewNop())
	require.NoError(t, err)
	_, ok := p.(*ChromemProvider)
	assert.True(t, ok)

	_, err = NewProvider(Config{Provider: "bogus"}, llm.Disabled(), zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
