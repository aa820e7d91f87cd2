package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"AskWorld-Agents/internal/blob"
	"AskWorld-Agents/internal/dispatch"
	"AskWorld-Agents/internal/intent"
	"AskWorld-Agents/internal/llm"
	"AskWorld-Agents/internal/protocol"
)

type stubModel struct {
	classification *llm.IntentClassification
	err            error
	clarification  string
}

func (s *stubModel) ClassifyIntent(context.Context, string) (*llm.IntentClassification, error) {
	return s.classification, s.err
}

func (s *stubModel) GenerateClarification(context.Context, string) (string, error) {
	return s.clarification, nil
}

type recordingDispatcher struct {
	calls   int
	content []dispatch.ContentItem
	result  intent.Result
}

func (r *recordingDispatcher) Dispatch(_ context.Context, content []dispatch.ContentItem, result intent.Result) dispatch.OperationResult {
	r.calls++
	r.content = content
	r.result = result
	return dispatch.OperationResult{Success: true, Message: "dispatched"}
}

type stubFetcher struct {
	data []byte
	err  error
}

func (s stubFetcher) FetchURL(context.Context, string) ([]byte, string, error) {
	return s.data, "audio/mpeg", s.err
}

func newPipeline(model intent.Model) (*Pipeline, *recordingDispatcher) {
	d := &recordingDispatcher{}
	return New(intent.NewClassifier(model), d), d
}

func TestPipelineEmptyMessage(t *testing.T) {
	p, d := newPipeline(nil)
	if got := p.Handle(context.Background(), Request{Text: "   "}); got != intent.NoMessagePrompt {
		t.Fatalf("unexpected reply: %q", got)
	}
	if d.calls != 0 {
		t.Fatalf("dispatcher must not be called")
	}
}

func TestPipelineClarifiesUncertainIntent(t *testing.T) {
	model := &stubModel{
		classification: &llm.IntentClassification{Intent: "upload_text", Confidence: 0.4},
		clarification:  "Do you want to store this?",
	}
	p, d := newPipeline(model)
	if got := p.Handle(context.Background(), Request{Text: "maybe this"}); got != "Do you want to store this?" {
		t.Fatalf("unexpected reply: %q", got)
	}
	if d.calls != 0 {
		t.Fatalf("dispatcher must not be called when clarifying")
	}
}

func TestPipelineFixedReplies(t *testing.T) {
	p, d := newPipeline(nil)
	if got := p.Handle(context.Background(), Request{Text: "/help"}); got != intent.HelpText() {
		t.Fatalf("unexpected help reply: %q", got)
	}
	if got := p.Handle(context.Background(), Request{Text: "/list"}); got != intent.ListComingSoon {
		t.Fatalf("unexpected list reply: %q", got)
	}
	if d.calls != 0 {
		t.Fatalf("fixed replies must not dispatch")
	}
}

func TestPipelineAttachmentBeforeText(t *testing.T) {
	p, d := newPipeline(nil)
	got := p.Handle(context.Background(), Request{
		Text:        "my photo",
		Attachments: []Attachment{{MimeType: "image/png", Data: []byte("PNG")}},
	})
	if got != "dispatched" {
		t.Fatalf("unexpected reply: %q", got)
	}
	if d.result.Intent != intent.UploadFile {
		t.Fatalf("unexpected intent: %s", d.result.Intent)
	}
	if len(d.content) != 2 || d.content[0].Kind != dispatch.ItemResource || d.content[1].Text != "my photo" {
		t.Fatalf("unexpected content: %+v", d.content)
	}
}

func TestPipelineDownloadWithoutContent(t *testing.T) {
	p, d := newPipeline(nil)
	p.Handle(context.Background(), Request{Text: "/download abc"})
	if d.calls != 1 || d.result.Data.BlobID != "abc" || len(d.content) != 0 {
		t.Fatalf("download should dispatch without content: %+v", d)
	}
}

func TestPipelineNoContent(t *testing.T) {
	model := &stubModel{classification: &llm.IntentClassification{Intent: "download_blob", Confidence: 0.9}}
	p, d := newPipeline(model)
	// 意图为下载时允许空内容，交给分发器报告缺少 blob ID。
	p.Handle(context.Background(), Request{Text: "grab it"})
	if d.calls != 1 {
		t.Fatalf("download intent should dispatch")
	}

	p, d = newPipeline(nil)
	got := p.Handle(context.Background(), Request{Attachments: []Attachment{{URL: "https://example.com/x"}}})
	if got != intent.NoMessagePrompt || d.calls != 0 {
		t.Fatalf("unresolved url attachments do not count: %q", got)
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	store := blob.NewMemoryStore("")
	p := New(intent.NewClassifier(&stubModel{err: errors.New("offline")}), dispatch.New(store, nil))

	got := p.Handle(context.Background(), Request{Text: "Hello world!"})
	if !strings.HasPrefix(got, "✅ **Text Uploaded Successfully!**") {
		t.Fatalf("unexpected reply: %q", got)
	}
	id := blob.ContentID([]byte("Hello world!"))
	got = p.Handle(context.Background(), Request{Text: "/download " + id})
	if !strings.Contains(got, "• **File Size:** 12 bytes") {
		t.Fatalf("unexpected download reply: %q", got)
	}
}

func TestFromChat(t *testing.T) {
	msg := protocol.ChatMessage{
		MsgID: "m1",
		Text:  []string{"  hello ", "", "world"},
		Attachments: []protocol.Attachment{
			{MimeType: "text/plain", DataBase64: base64.StdEncoding.EncodeToString([]byte("hi"))},
			{MimeType: "image/png", DataBase64: "%%%"},
			{URL: " https://example.com/a.mp3 "},
			{},
		},
		Metadata: map[string]string{"chat_id": "42"},
	}
	req := FromChat(msg, nil)
	if req.Text != "hello world" {
		t.Fatalf("unexpected text: %q", req.Text)
	}
	if len(req.Attachments) != 2 || string(req.Attachments[0].Data) != "hi" || req.Attachments[1].URL != "https://example.com/a.mp3" {
		t.Fatalf("unexpected attachments: %+v", req.Attachments)
	}
	if req.Metadata["chat_id"] != "42" {
		t.Fatalf("metadata not copied")
	}
}

func TestResolve(t *testing.T) {
	req := Request{Attachments: []Attachment{{URL: "https://example.com/a.mp3"}, {MimeType: "text/plain", Data: []byte("x")}}}

	resolved := Resolve(context.Background(), req, stubFetcher{data: []byte("ID3")}, nil)
	if len(resolved.Attachments) != 2 || resolved.Attachments[0].MimeType != "audio/mpeg" || string(resolved.Attachments[0].Data) != "ID3" {
		t.Fatalf("unexpected attachments: %+v", resolved.Attachments)
	}
	if len(req.Attachments[0].Data) != 0 {
		t.Fatalf("original request must not be modified")
	}

	dropped := Resolve(context.Background(), req, stubFetcher{err: errors.New("boom")}, nil)
	if len(dropped.Attachments) != 1 {
		t.Fatalf("failed downloads should be dropped: %+v", dropped.Attachments)
	}
}
