package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o"
	defaultTimeout   = 30 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 兼容的大模型接口。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ llm.Client = (*Client)(nil)

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// ClassifyIntent 让大模型在固定意图词表中做分类。
func (c *Client) ClassifyIntent(ctx context.Context, text string) (*llm.IntentClassification, error) {
	content, err := c.complete(ctx, completion{
		system:      intentSystemPrompt,
		user:        fmt.Sprintf("Analyze this message: '%s'", text),
		temperature: 0.1,
		maxTokens:   200,
	})
	if err != nil {
		return nil, err
	}

	var result llm.IntentClassification
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &result); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "意图识别结果不是合法 JSON")
	}
	return &result, nil
}

// GenerateClarification 生成意图不明确时的澄清回复。
func (c *Client) GenerateClarification(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, completion{
		system:      clarificationSystemPrompt,
		user:        fmt.Sprintf("User message: '%s'\n\nGenerate a clarification message.", text),
		temperature: 0.7,
		maxTokens:   300,
	})
}

// JudgeAnswer 判断语音回答的转写内容是否有效回答了问题。
func (c *Client) JudgeAnswer(ctx context.Context, question, answer string) (*llm.Judgement, error) {
	content, err := c.complete(ctx, completion{
		system:      judgeSystemPrompt,
		user:        fmt.Sprintf("Question: %s\n\nAnswer transcript: %s", strings.TrimSpace(question), strings.TrimSpace(answer)),
		temperature: 0,
		maxTokens:   200,
	})
	if err != nil {
		return nil, err
	}

	var verdict llm.Judgement
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &verdict); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "答案评审结果不是合法 JSON")
	}
	return &verdict, nil
}

// Summarize 汇总同一问题下的多条回答。
func (c *Client) Summarize(ctx context.Context, question string, answers []string) (string, error) {
	var builder strings.Builder
	builder.WriteString("Question: ")
	builder.WriteString(strings.TrimSpace(question))
	builder.WriteString("\n\nAnswers:\n")
	for idx, answer := range answers {
		builder.WriteString(fmt.Sprintf("[%d] %s\n", idx+1, truncate(answer, 2000)))
	}
	return c.complete(ctx, completion{
		system:      summarySystemPrompt,
		user:        builder.String(),
		temperature: 0.3,
		maxTokens:   500,
	})
}

type completion struct {
	system      string
	user        string
	temperature float64
	maxTokens   int
}

func (c *Client) complete(ctx context.Context, req completion) (string, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeTransportFailure, err, "请求 OpenAI 失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", xerrors.New(xerrors.CodeUpstreamFailure,
			fmt.Sprintf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析 OpenAI 响应失败")
	}
	if len(decoded.Choices) == 0 {
		return "", xerrors.New(xerrors.CodeUpstreamFailure, "OpenAI 响应中没有有效的 choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", xerrors.New(xerrors.CodeUpstreamFailure, "OpenAI 响应内容为空")
	}
	return content, nil
}

func (c *Client) buildPayload(req completion) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	body := map[string]any{
		"model": c.model,
		"messages": []message{
			{Role: "system", Content: req.system},
			{Role: "user", Content: req.user},
		},
		"temperature": req.temperature,
		"max_tokens":  req.maxTokens,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}
	return encoded, nil
}

// stripCodeFence 去掉模型偶尔包裹在 JSON 外的 ``` 代码块。
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return text
}
