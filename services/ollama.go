package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"
)

type OllamaRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	Images []string `json:"images,omitempty"`
}

type OllamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

type OllamaGenerateResponse struct {
	Response string `json:"response"`
}

// OllamaClient talks to a local Ollama server for text generation, vision
// description and embeddings. Construct it once at startup; it is safe for
// concurrent use.
type OllamaClient struct {
	baseURL        string
	generateModel  string
	visionModel    string
	embeddingModel string
	client         *http.Client
}

func NewOllamaClient() *OllamaClient {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "localhost"
	}

	generateModel := viper.GetString("MODEL")
	if generateModel == "" {
		generateModel = "gemma3"
	}
	visionModel := viper.GetString("VISION_MODEL")
	if visionModel == "" {
		visionModel = generateModel
	}
	embeddingModel := viper.GetString("EMBEDDING_MODEL")
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}

	return &OllamaClient{
		baseURL:        fmt.Sprintf("http://%s:11434", host),
		generateModel:  generateModel,
		visionModel:    visionModel,
		embeddingModel: embeddingModel,
		client:         &http.Client{Timeout: 120 * time.Second},
	}
}

// EmbeddingModel returns the identifier of the model used for Embed. Vectors
// are only comparable when produced by the same model.
func (c *OllamaClient) EmbeddingModel() string { return c.embeddingModel }

// Embed returns an embedding vector for the given text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body := OllamaRequest{Model: c.embeddingModel, Prompt: text}

	var out OllamaEmbeddingResponse
	if err := c.post(ctx, "/api/embeddings", body, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return out.Embedding, nil
}

// Generate runs a text completion for the given prompt.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	body := OllamaRequest{Model: c.generateModel, Prompt: prompt, Stream: false}

	var out OllamaGenerateResponse
	if err := c.post(ctx, "/api/generate", body, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// GenerateModel returns the identifier of the generation model.
func (c *OllamaClient) GenerateModel() string { return c.generateModel }

// DescribeImage sends image bytes to the vision model with the given prompt
// and returns the textual response.
func (c *OllamaClient) DescribeImage(ctx context.Context, imageBytes []byte, prompt string) (string, error) {
	body := OllamaRequest{
		Model:  c.visionModel,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(imageBytes)},
		Stream: false,
	}

	var out OllamaGenerateResponse
	if err := c.post(ctx, "/api/generate", body, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

func (c *OllamaClient) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call Ollama at %s%s: %v", c.baseURL, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ollama %s failed: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %v", err)
	}
	return nil
}
