package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openmemory/core/internal/model"
)

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint with one
// batched request holding one input per sector, prefixing the sector name
// into each input so a single-encoder
// backend still produces sector-differentiated vectors (spec §6.1).
type HTTPEmbedder struct {
	Host   string
	APIKey string
	Model  string
	Client *http.Client
}

func NewHTTPEmbedder(host, apiKey, model string) *HTTPEmbedder {
	return &HTTPEmbedder{Host: host, APIKey: apiKey, Model: model, Client: &http.Client{}}
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *HTTPEmbedder) fetch(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: inputs, Model: e.Model, EncodingFormat: "float"})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Host, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder: bad status code %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	out := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func sectorPrefixed(text string, sector model.Sector) string {
	return fmt.Sprintf("[%s] %s", sector, text)
}

func (e *HTTPEmbedder) EmbedMultiSector(ctx context.Context, text string, sectors []model.Sector) ([]SectorVector, error) {
	inputs := make([]string, len(sectors))
	for i, s := range sectors {
		inputs[i] = sectorPrefixed(text, s)
	}
	vecs, err := e.fetch(ctx, inputs)
	if err != nil {
		return nil, err
	}
	out := make([]SectorVector, len(sectors))
	for i, s := range sectors {
		out[i] = SectorVector{Sector: s, Values: vecs[i], Dim: len(vecs[i])}
	}
	return out, nil
}

func (e *HTTPEmbedder) EmbedQueryForAllSectors(ctx context.Context, text string) (map[model.Sector][]float32, error) {
	sectors := model.AllSectors
	inputs := make([]string, len(sectors))
	for i, s := range sectors {
		inputs[i] = sectorPrefixed(text, s)
	}
	vecs, err := e.fetch(ctx, inputs)
	if err != nil {
		return nil, err
	}
	out := make(map[model.Sector][]float32, len(sectors))
	for i, s := range sectors {
		out[s] = vecs[i]
	}
	return out, nil
}
