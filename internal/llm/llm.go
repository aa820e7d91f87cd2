package llm

import "context"

// ExtractedData 是意图识别时从消息中抽取出的参数。
type ExtractedData struct {
	BlobID      string `json:"blob_id"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// IntentClassification 是大模型返回的意图分类结果，intent 取值为固定词表。
type IntentClassification struct {
	Intent        string        `json:"intent"`
	Confidence    float64       `json:"confidence"`
	ExtractedData ExtractedData `json:"extracted_data"`
}

// Judgement 是大模型对问答内容的评审结论。
type Judgement struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

// Client 定义了智能体依赖的大模型能力。
type Client interface {
	ClassifyIntent(ctx context.Context, text string) (*IntentClassification, error)
	GenerateClarification(ctx context.Context, text string) (string, error)
	JudgeAnswer(ctx context.Context, question, answer string) (*Judgement, error)
	Summarize(ctx context.Context, question string, answers []string) (string, error)
}
