// Package whisper implements speech-to-text against an OpenAI-compatible
// /audio/transcriptions endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/speech"
)

const (
	defaultAPIBase = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"
	defaultTimeout = 120 * time.Second
)

// Config configures the Whisper client.
type Config struct {
	APIBase  string
	APIKey   string
	Model    string
	Language string // optional ISO-639-1 code
	Timeout  time.Duration
}

// Client sends audio to the transcription endpoint as multipart form data.
type Client struct {
	apiBase    string
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
}

var _ speech.Transcriber = (*Client)(nil)

// NewClient creates a Whisper client. An API key is required.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "whisper api key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if base == "" {
		base = defaultAPIBase
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiBase:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      model,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe converts audio bytes to text.
func (c *Client) Transcribe(ctx context.Context, audio speech.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "audio data is empty")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", audio.Filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}
	fields := map[string]string{
		"model":           c.model,
		"response_format": "json",
		"language":        c.language,
		"prompt":          audio.Prompt,
	}
	for _, name := range []string{"model", "response_format", "language", "prompt"} {
		if fields[name] == "" {
			continue
		}
		if err := writer.WriteField(name, fields[name]); err != nil {
			return "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeTransportFailure, err, "whisper api request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", xerrors.New(xerrors.CodeUpstreamFailure,
			fmt.Sprintf("whisper api error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "decode whisper response")
	}
	return strings.TrimSpace(result.Text), nil
}
