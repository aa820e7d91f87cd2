package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"AskWorld-Agents/internal/agent"
	"AskWorld-Agents/internal/protocol"
)

type fakeTranscriber struct {
	text  string
	err   error
	calls []Audio
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio Audio) (string, error) {
	f.calls = append(f.calls, audio)
	return f.text, f.err
}

type fakeFetcher struct {
	data []byte
	err  error
	urls []string
}

func (f *fakeFetcher) FetchURL(_ context.Context, rawURL string) ([]byte, string, error) {
	f.urls = append(f.urls, rawURL)
	return f.data, "audio/mpeg", f.err
}

func TestTranscribeRequest(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	svc := NewService(tr, nil)

	resp := svc.Transcribe(context.Background(), protocol.AudioTranscriptionRequest{
		AudioDataBase64: base64.StdEncoding.EncodeToString([]byte("RIFF")),
		MimeType:        "audio/x-wav",
		SourceBlobID:    "blob-1",
		Description:     "a question",
	})
	if !resp.Success || resp.Transcript != "hello" || resp.SourceBlobID != "blob-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if tr.calls[0].Filename != "audio.wav" || tr.calls[0].Prompt != "a question" {
		t.Fatalf("unexpected audio: %+v", tr.calls[0])
	}
}

func TestTranscribeRequestFailures(t *testing.T) {
	svc := NewService(&fakeTranscriber{err: errors.New("quota exceeded")}, nil)

	resp := svc.Transcribe(context.Background(), protocol.AudioTranscriptionRequest{AudioDataBase64: "!!", SourceBlobID: "b"})
	if resp.Success || !strings.Contains(resp.ErrorMessage, "audio_data_base64") {
		t.Fatalf("expected decode failure: %+v", resp)
	}

	resp = svc.Transcribe(context.Background(), protocol.AudioTranscriptionRequest{
		AudioDataBase64: base64.StdEncoding.EncodeToString([]byte("x")),
		MimeType:        "audio/mpeg",
	})
	if resp.Success || resp.ErrorMessage != "quota exceeded" {
		t.Fatalf("expected transcriber failure: %+v", resp)
	}

	resp = svc.Transcribe(context.Background(), protocol.AudioTranscriptionRequest{
		AudioDataBase64: base64.StdEncoding.EncodeToString([]byte("x")),
		MimeType:        "image/png",
	})
	if resp.Success || !strings.Contains(resp.ErrorMessage, "image/png") {
		t.Fatalf("expected unsupported mime: %+v", resp)
	}
}

func TestHandleChat(t *testing.T) {
	tr := &fakeTranscriber{text: "spoken words"}
	fetcher := &fakeFetcher{data: []byte("ID3")}
	svc := NewService(tr, fetcher)

	reply := svc.Handle(context.Background(), agent.Request{
		Text: "https://example.com/clip.ogg please",
		Attachments: []agent.Attachment{
			{MimeType: "audio/mpeg", Data: []byte("ID3")},
			{MimeType: "image/png", Data: []byte("PNG")},
		},
	})
	if reply != "spoken words\nspoken words" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if len(fetcher.urls) != 1 || fetcher.urls[0] != "https://example.com/clip.ogg" {
		t.Fatalf("unexpected fetches: %v", fetcher.urls)
	}
	if tr.calls[1].Filename != "audio.ogg" {
		t.Fatalf("unexpected filename: %s", tr.calls[1].Filename)
	}
}

func TestHandleChatWithoutAudio(t *testing.T) {
	svc := NewService(&fakeTranscriber{}, &fakeFetcher{})
	if got := svc.Handle(context.Background(), agent.Request{Text: "just words"}); got != NoAudioReply {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestHandleChatFetchFailure(t *testing.T) {
	svc := NewService(&fakeTranscriber{}, &fakeFetcher{err: errors.New("404")})
	got := svc.Handle(context.Background(), agent.Request{Text: "http://example.com/a.mp3"})
	if !strings.HasPrefix(got, "❌ Could not download audio") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"audio/mpeg":             "mpeg",
		"audio/x-wav":            "wav",
		"audio/ogg; codecs=opus": "ogg",
		"":                       "mp3",
		"audio/":                 "mp3",
	}
	for in, want := range cases {
		if got := ExtensionFor(in); got != want {
			t.Fatalf("ExtensionFor(%q) = %q, want %q", in, got, want)
		}
	}
}
