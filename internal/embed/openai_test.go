package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
)

// newOpenAIServer answers POST /embeddings with a [2, 0] vector per input.
func newOpenAIServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		type datum struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string  `json:"object"`
			Data   []datum `json:"data"`
			Model  string  `json:"model"`
		}{Object: "list", Model: "text-embedding-3-small"}
		for i := range req.Input {
			v := make([]float32, dims)
			v[0] = 2
			resp.Data = append(resp.Data, datum{Object: "embedding", Embedding: v, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	srv := newOpenAIServer(t, 4)
	e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, Model: "text-embedding-3-small", Dimensions: 4})
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "family suv")

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 0}, v)
	assert.Equal(t, "text-embedding-3-small", e.ModelName())
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	srv := newOpenAIServer(t, 8)
	e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, Model: "m", Dimensions: 4})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "family suv")

	assert.Equal(t, oerrors.ErrCodeDimensionMismatch, oerrors.GetCode(err))
}

func TestOpenAIEmbedder_RequiresModel(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})

	assert.Equal(t, oerrors.ErrCodeInvalidInput, oerrors.GetCode(err))
}
