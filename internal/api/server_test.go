package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"AskWorld-Agents/internal/agent"
	"AskWorld-Agents/internal/askworld"
	"AskWorld-Agents/internal/blob"
	"AskWorld-Agents/internal/dispatch"
	"AskWorld-Agents/internal/observability/metrics"
	"AskWorld-Agents/internal/protocol"
	"AskWorld-Agents/internal/speech"
)

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(_ context.Context, audio speech.Audio) (string, error) {
	return "heard " + audio.Filename, nil
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func blobServer(m *metrics.Metrics) (*Server, *blob.MemoryStore) {
	store := blob.NewMemoryStore("https://walruscan.com/testnet/blob")
	d := dispatch.New(store, nil)
	s := NewServer(":0", "blob", WithMetrics(m))
	chat := agent.HandlerFunc(func(_ context.Context, req agent.Request) string {
		return "echo: " + req.Text
	})
	MountBlob(s, d, chat, nil)
	return s, store
}

func TestHealthz(t *testing.T) {
	s, _ := blobServer(nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"agent":"blob"`) {
		t.Fatalf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUploadTextAndDownload(t *testing.T) {
	s, store := blobServer(nil)

	rec := postJSON(t, s.Handler(), "/upload-text", protocol.TextUploadRequest{Text: "hello walrus"})
	up := decode[protocol.UploadResponse](t, rec)
	if rec.Code != http.StatusOK || !up.Success || up.BlobID == "" {
		t.Fatalf("unexpected upload response: %d %+v", rec.Code, up)
	}
	if !strings.HasPrefix(up.BlobURL, "https://walruscan.com/testnet/blob/") || store.Len() != 1 {
		t.Fatalf("unexpected blob url %q", up.BlobURL)
	}

	rec = postJSON(t, s.Handler(), "/download", protocol.BlobDownloadRequest{BlobID: up.BlobID, RequestID: "r1"})
	down := decode[protocol.BlobDownloadResponse](t, rec)
	data, _ := base64.StdEncoding.DecodeString(down.BlobDataBase64)
	if !down.Success || string(data) != "hello walrus" || down.RequestID != "r1" {
		t.Fatalf("unexpected download response: %+v", down)
	}

	rec = postJSON(t, s.Handler(), "/download", protocol.BlobDownloadRequest{BlobID: "missing"})
	down = decode[protocol.BlobDownloadResponse](t, rec)
	if rec.Code != http.StatusOK || down.Success || down.ErrorMessage == "" {
		t.Fatalf("missing blob should be a 200 with success=false: %d %+v", rec.Code, down)
	}
}

func TestBadJSON(t *testing.T) {
	s, _ := blobServer(nil)
	for _, path := range []string{"/upload", "/upload-url", "/upload-text", "/download", "/transcribe-blob", "/chat"} {
		rec := postJSON(t, s.Handler(), path, "{not json")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status %d", path, rec.Code)
		}
		resp := decode[map[string]any](t, rec)
		if resp["success"] != false || !strings.Contains(resp["error_message"].(string), "invalid request body") {
			t.Fatalf("%s: unexpected body %v", path, resp)
		}
	}
}

func TestChatEndpoint(t *testing.T) {
	s, _ := blobServer(nil)
	rec := postJSON(t, s.Handler(), "/chat", protocol.ChatMessage{MsgID: "m-1", Text: []string{"hi", " there "}})
	reply := decode[protocol.ChatReply](t, rec)
	if reply.MsgID != "m-1" || reply.Text != "echo: hi there" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestTranscriberRoutes(t *testing.T) {
	s := NewServer(":0", "transcriber")
	MountTranscriber(s, speech.NewService(stubTranscriber{}, nil), nil)

	rec := postJSON(t, s.Handler(), "/transcribe", protocol.AudioTranscriptionRequest{
		AudioDataBase64: base64.StdEncoding.EncodeToString([]byte("ID3")),
		MimeType:        "audio/mpeg",
		SourceBlobID:    "b1",
	})
	resp := decode[protocol.AudioTranscriptionResponse](t, rec)
	if !resp.Success || !strings.HasPrefix(resp.Transcript, "heard ") || resp.SourceBlobID != "b1" {
		t.Fatalf("unexpected transcription: %+v", resp)
	}
}

func TestAskWorldCall(t *testing.T) {
	s := NewServer(":0", "askworld")
	MountAskWorld(s, askworld.NewService(askworld.Config{}), nil)

	rec := postJSON(t, s.Handler(), "/call", protocol.FunctionCallRequest{FunctionName: "selfdestruct"})
	resp := decode[protocol.FunctionCallResponse](t, rec)
	if rec.Code != http.StatusOK || resp.Success || !strings.HasPrefix(resp.ErrorMessage, "❌ Function 'selfdestruct'") {
		t.Fatalf("unexpected response: %d %+v", rec.Code, resp)
	}

	rec = postJSON(t, s.Handler(), "/chat", protocol.ChatMessage{MsgID: "m-2", Text: []string{"help"}})
	if reply := decode[protocol.ChatReply](t, rec); !strings.HasPrefix(reply.Text, "📋 Available read functions:") {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := blobServer(metrics.New("blob"))
	postJSON(t, s.Handler(), "/upload-text", protocol.TextUploadRequest{Text: "count me"})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	for _, want := range []string{
		`askworld_http_requests_total{agent="blob",code="200",method="POST",route="/upload-text"} 1`,
		`askworld_operations_total{agent="blob",operation="upload",result="success"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
