package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Ollama streams /api/generate from a local Ollama server.
type Ollama struct {
	BaseURL string
	model   string
	Client  *http.Client
	Encoder Encoder
}

func NewOllama(baseURL, model string, timeout time.Duration, enc Encoder) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "qwen2.5:7b-instruct"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Ollama{BaseURL: strings.TrimRight(baseURL, "/"), model: model, Client: &http.Client{Timeout: timeout}, Encoder: enc}
}

func (o *Ollama) Name() string  { return "ollama" }
func (o *Ollama) Model() string { return o.model }

type ollamaChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (o *Ollama) Generate(ctx context.Context, req Request, stop Stopper) (string, error) {
	if o.BaseURL == "" {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	payload := map[string]any{
		"model":  o.model,
		"prompt": req.Prompt,
		"stream": true,
		"options": map[string]any{
			"temperature": 0,
			"num_predict": req.MaxNewTokens,
		},
	}
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.Client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama generate request failed: %s", resp.Status)
	}

	m := newMeter(stop, o.Encoder, req.MaxNewTokens)
	var out strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return out.String(), fmt.Errorf("ollama: decode chunk: %w", err)
		}
		if chunk.Error != "" {
			return out.String(), errors.New("ollama: " + chunk.Error)
		}
		out.WriteString(chunk.Response)
		done, err := m.feed(chunk.Response)
		if err != nil {
			return out.String(), fmt.Errorf("ollama: encode: %w", err)
		}
		if done || chunk.Done {
			return out.String(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return out.String(), err
	}
	return out.String(), nil
}
