package intent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"AskWorld-Agents/internal/llm"
)

type fakeModel struct {
	classification *llm.IntentClassification
	classifyErr    error
	clarification  string
	clarifyErr     error
	calls          atomic.Int32
}

func (f *fakeModel) ClassifyIntent(context.Context, string) (*llm.IntentClassification, error) {
	f.calls.Add(1)
	return f.classification, f.classifyErr
}

func (f *fakeModel) GenerateClarification(context.Context, string) (string, error) {
	return f.clarification, f.clarifyErr
}

func TestAttachmentIsAuthoritative(t *testing.T) {
	model := &fakeModel{}
	c := NewClassifier(model)
	for _, text := range []string{"", "/download abc", "https://example.com/a.mp3", "help"} {
		got := c.Classify(context.Background(), text, true)
		if got.Intent != UploadFile || got.Confidence != 1.0 {
			t.Fatalf("Classify(%q, true) = %+v", text, got)
		}
	}
	if model.calls.Load() != 0 {
		t.Fatalf("model must not be consulted when an attachment is present")
	}
}

func TestPrefixRules(t *testing.T) {
	cases := []struct {
		text       string
		intent     Intent
		confidence float64
		data       ExtractedData
	}{
		{"/download abc123", DownloadBlob, 1.0, ExtractedData{BlobID: "abc123"}},
		{"  /DOWNLOAD   Y3XBOEfW77JAon9Kl  ", DownloadBlob, 1.0, ExtractedData{BlobID: "Y3XBOEfW77JAon9Kl"}},
		{"/download", DownloadBlob, 1.0, ExtractedData{}},
		{"/upload my notes", UploadText, 1.0, ExtractedData{Description: "my notes"}},
		{"/upload", UploadFile, 1.0, ExtractedData{}},
		{"/help", Help, 1.0, ExtractedData{}},
		{"/?", Help, 1.0, ExtractedData{}},
		{"Help me please", Help, 1.0, ExtractedData{}},
		{"/list", ListBlobs, 1.0, ExtractedData{}},
		{"/blobs", ListBlobs, 1.0, ExtractedData{}},
		{"list everything", ListBlobs, 1.0, ExtractedData{}},
		{"https://example.com/file.mp3", UploadFile, 0.95, ExtractedData{URL: "https://example.com/file.mp3"}},
		{" http://example.com/a ", UploadFile, 0.95, ExtractedData{URL: "http://example.com/a"}},
	}

	model := &fakeModel{classifyErr: errors.New("should not be called")}
	c := NewClassifier(model)
	for _, tc := range cases {
		got := c.Classify(context.Background(), tc.text, false)
		if got.Intent != tc.intent || got.Confidence != tc.confidence || got.Data != tc.data {
			t.Fatalf("Classify(%q) = %+v, want %s %.2f %+v", tc.text, got, tc.intent, tc.confidence, tc.data)
		}
	}
	if model.calls.Load() != 0 {
		t.Fatalf("model called %d times for prefix matches", model.calls.Load())
	}
}

func TestModelResultUsed(t *testing.T) {
	model := &fakeModel{classification: &llm.IntentClassification{
		Intent:     "download_blob",
		Confidence: 0.85,
		ExtractedData: llm.ExtractedData{
			BlobID: " xyz ",
		},
	}}
	got := NewClassifier(model).Classify(context.Background(), "could you grab xyz", false)
	if got.Intent != DownloadBlob || got.Confidence != 0.85 || got.Data.BlobID != "xyz" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestFallbackWhenModelFails(t *testing.T) {
	model := &fakeModel{classifyErr: errors.New("rate limited")}
	c := NewClassifier(model)

	got := c.Classify(context.Background(), "Hello world!", false)
	if got.Intent != UploadText || got.Confidence != 0.7 {
		t.Fatalf("short text should fall back to upload_text: %+v", got)
	}
	if got.NeedsClarification() {
		t.Fatalf("0.7 is not below the threshold")
	}

	got = c.Classify(context.Background(), "please fetch my file", false)
	if got.Intent != Unknown || got.Confidence != 0.5 {
		t.Fatalf("retrieval verbs should fall back to unknown: %+v", got)
	}

	long := strings.Repeat("lorem ipsum ", 10)
	got = c.Classify(context.Background(), long, false)
	if got.Intent != Unknown || got.Confidence != 0.5 {
		t.Fatalf("long text should fall back to unknown: %+v", got)
	}
}

func TestFallbackOnUnknownIntentName(t *testing.T) {
	model := &fakeModel{classification: &llm.IntentClassification{Intent: "delete_blob", Confidence: 0.99}}
	got := NewClassifier(model).Classify(context.Background(), "Hello world!", false)
	if got.Intent != UploadText || got.Confidence != 0.7 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestFallbackWithoutModel(t *testing.T) {
	got := NewClassifier(nil).Classify(context.Background(), "Hello world!", false)
	if got.Intent != UploadText {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestClarify(t *testing.T) {
	c := NewClassifier(&fakeModel{clarification: "  Did you mean to upload?  "})
	if got := c.Clarify(context.Background(), "hmm"); got != "Did you mean to upload?" {
		t.Fatalf("unexpected clarification: %q", got)
	}

	c = NewClassifier(&fakeModel{clarifyErr: errors.New("down")})
	if got := c.Clarify(context.Background(), "hmm"); got != CannedClarification() {
		t.Fatalf("expected canned clarification, got %q", got)
	}

	c = NewClassifier(&fakeModel{})
	if got := c.Clarify(context.Background(), "hmm"); got != CannedClarification() {
		t.Fatalf("empty reply should use canned clarification, got %q", got)
	}
}

func TestNeedsClarification(t *testing.T) {
	if !(Result{Intent: UploadText, Confidence: 0.69}).NeedsClarification() {
		t.Fatalf("0.69 should need clarification")
	}
	if !(Result{Intent: Unknown, Confidence: 1}).NeedsClarification() {
		t.Fatalf("unknown should need clarification")
	}
	if (Result{Intent: Help, Confidence: 1}).NeedsClarification() {
		t.Fatalf("confident help should not need clarification")
	}
}
