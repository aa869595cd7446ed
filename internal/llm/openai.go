package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// OpenAI streams chat completions from any OpenAI-compatible server.
type OpenAI struct {
	client  oai.Client
	model   string
	Encoder Encoder
}

func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration, enc Encoder) (*OpenAI, error) {
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}
	if apiKey == "" {
		// self-hosted servers ignore the key but the client requires one
		apiKey = "unused"
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &OpenAI{client: oai.NewClient(reqOpts...), model: model, Encoder: enc}, nil
}

func (o *OpenAI) Name() string  { return "openai" }
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Generate(ctx context.Context, req Request, stop Stopper) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	params := oai.ChatCompletionNewParams{
		Model:       shared.ChatModel(o.model),
		Messages:    []oai.ChatCompletionMessageParamUnion{oai.UserMessage(req.Prompt)},
		Temperature: param.NewOpt(0.0),
	}
	if req.MaxNewTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxNewTokens))
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	m := newMeter(stop, o.Encoder, req.MaxNewTokens)
	var out strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		fragment := chunk.Choices[0].Delta.Content
		out.WriteString(fragment)
		done, err := m.feed(fragment)
		if err != nil {
			return out.String(), fmt.Errorf("openai: encode: %w", err)
		}
		if done {
			return out.String(), nil
		}
	}
	if err := stream.Err(); err != nil {
		return out.String(), fmt.Errorf("openai: stream: %w", err)
	}
	return out.String(), nil
}
