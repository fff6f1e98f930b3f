package ai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"resty.dev/v3"

	"github.com/trezcool/grader/core"
)

var errEmptyReply = errors.New("gemini: empty reply")

type (
	geminiPart struct {
		Text string `json:"text"`
	}

	geminiContent struct {
		Parts []geminiPart `json:"parts"`
	}

	geminiRequest struct {
		Contents []geminiContent `json:"contents"`
	}

	geminiResponse struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}

	geminiError struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	// Completer sends a prompt to a language model and returns the reply text.
	Completer interface {
		Complete(ctx context.Context, prompt string) (string, error)
	}

	// GeminiClient calls the Gemini generateContent REST endpoint.
	GeminiClient struct {
		client *resty.Client
		model  string
		apiKey string
	}
)

func NewGeminiClient(conf *core.Config) *GeminiClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(conf.AI.BaseURL, "/")).
		SetTimeout(conf.AI.Timeout).
		SetHeader("Content-Type", "application/json")

	return &GeminiClient{
		client: client,
		model:  conf.AI.Model,
		apiKey: conf.AI.GeminiAPIKey,
	}
}

func (gc *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	var (
		result geminiResponse
		apiErr geminiError
	)
	res, err := gc.client.R().
		SetContext(ctx).
		SetPathParam("model", gc.model).
		SetQueryParam("key", gc.apiKey).
		SetBody(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}).
		SetResult(&result).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		return "", errors.Wrap(err, "calling gemini")
	}
	if res.IsError() {
		if json.Unmarshal([]byte(res.String()), &apiErr) == nil && apiErr.Error.Message != "" {
			return "", errors.Errorf("gemini: %d %s", res.StatusCode(), apiErr.Error.Message)
		}
		return "", errors.Errorf("gemini: unexpected status %d", res.StatusCode())
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", errEmptyReply
	}
	text := strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", errEmptyReply
	}
	return text, nil
}

func (gc *GeminiClient) Close() error {
	return gc.client.Close()
}
