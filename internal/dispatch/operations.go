package dispatch

import (
	"context"
	"encoding/base64"
	"strings"

	"AskWorld-Agents/internal/blob"
	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/protocol"
)

// fetchError 标记“从 URL 下载”阶段的失败，以便给出不同的提示。
type fetchError struct {
	cause error
}

func (e *fetchError) Error() string { return "could not download file from url: " + e.cause.Error() }
func (e *fetchError) Unwrap() error { return e.cause }

// UploadBytes 上传原始字节。
func (d *Dispatcher) UploadBytes(ctx context.Context, data []byte, mimeType string) (Uploaded, error) {
	if d.store == nil {
		return Uploaded{}, xerrors.New(xerrors.CodeInitializationFailure, "blob store not configured")
	}
	id, err := d.store.Put(ctx, data, mimeType)
	d.metrics.RecordOperation("upload", err == nil)
	if err != nil {
		return Uploaded{}, err
	}
	return Uploaded{BlobID: id, URL: d.store.ViewerURL(id)}, nil
}

// UploadText 以 UTF-8 文本上传。
func (d *Dispatcher) UploadText(ctx context.Context, text string) (Uploaded, error) {
	if strings.TrimSpace(text) == "" {
		return Uploaded{}, xerrors.New(xerrors.CodeInvalidArgument, "text is empty")
	}
	return d.UploadBytes(ctx, []byte(text), "text/plain")
}

// UploadURL 下载 URL 内容后上传。
func (d *Dispatcher) UploadURL(ctx context.Context, rawURL string) (Uploaded, error) {
	if d.fetcher == nil {
		return Uploaded{}, xerrors.New(xerrors.CodeInitializationFailure, "url fetcher not configured")
	}
	data, mimeType, err := d.fetcher.FetchURL(ctx, strings.TrimSpace(rawURL))
	if err != nil {
		d.metrics.RecordOperation("upload_url", false)
		return Uploaded{}, &fetchError{cause: err}
	}
	return d.UploadBytes(ctx, data, mimeType)
}

// Download 下载 blob，存储未给出类型时嗅探音频格式。
func (d *Dispatcher) Download(ctx context.Context, blobID string) ([]byte, string, error) {
	if d.store == nil {
		return nil, "", xerrors.New(xerrors.CodeInitializationFailure, "blob store not configured")
	}
	blobID = strings.TrimSpace(blobID)
	if blobID == "" {
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, "blob id is empty")
	}
	data, mimeType, err := d.store.Get(ctx, blobID)
	d.metrics.RecordOperation("download", err == nil)
	if err != nil {
		return nil, "", err
	}
	return data, SniffMime(mimeType, blobID, data), nil
}

// HandleDownload 响应 BlobDownloadRequest。
func (d *Dispatcher) HandleDownload(ctx context.Context, req protocol.BlobDownloadRequest) protocol.BlobDownloadResponse {
	resp := protocol.BlobDownloadResponse{BlobID: req.BlobID, RequestID: req.RequestID}
	data, mimeType, err := d.Download(ctx, req.BlobID)
	if err != nil {
		resp.ErrorMessage = xerrors.DetailOf(err)
		return resp
	}
	resp.BlobDataBase64 = base64.StdEncoding.EncodeToString(data)
	resp.MimeType = mimeType
	resp.Success = true
	return resp
}

// TranscribeBlob 下载 blob 并委托转写智能体生成文字稿。
func (d *Dispatcher) TranscribeBlob(ctx context.Context, req protocol.BlobTranscriptionRequest) protocol.BlobTranscriptionResponse {
	resp := protocol.BlobTranscriptionResponse{BlobID: req.BlobID, RequestID: req.RequestID}
	if d.correlator == nil {
		resp.ErrorMessage = "transcription is not configured"
		return resp
	}
	data, mimeType, err := d.Download(ctx, req.BlobID)
	if err != nil {
		resp.ErrorMessage = "Download failed: " + xerrors.DetailOf(err)
		return resp
	}
	if !IsAudio(mimeType, req.BlobID, data) {
		resp.ErrorMessage = "blob " + req.BlobID + " is not an audio file (" + mimeType + ")"
		return resp
	}

	audio, status := d.requestTranscription(ctx, data, mimeType, req.BlobID)
	if !status.OK() {
		resp.ErrorMessage = "Transcription request failed: " + status.String()
		return resp
	}
	if !audio.Success {
		resp.ErrorMessage = audio.ErrorMessage
		if resp.ErrorMessage == "" {
			resp.ErrorMessage = "Unknown error"
		}
		return resp
	}
	resp.Transcript = audio.Transcript
	resp.Success = true
	return resp
}

// UploadRequest 响应 REST 上传请求。
func (d *Dispatcher) UploadRequest(ctx context.Context, req protocol.BlobUploadRequest) protocol.UploadResponse {
	data, err := base64.StdEncoding.DecodeString(req.DataBase64)
	if err != nil {
		return protocol.UploadResponse{ErrorMessage: "invalid data_base64: " + err.Error()}
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = blob.DefaultMimeType
	}
	return uploadResponse(d.UploadBytes(ctx, data, mimeType))
}

// UploadURLRequest 响应 REST 从 URL 上传请求。
func (d *Dispatcher) UploadURLRequest(ctx context.Context, req protocol.BlobUploadFromURLRequest) protocol.UploadResponse {
	return uploadResponse(d.UploadURL(ctx, req.URL))
}

// UploadTextRequest 响应 REST 文本上传请求。
func (d *Dispatcher) UploadTextRequest(ctx context.Context, req protocol.TextUploadRequest) protocol.UploadResponse {
	return uploadResponse(d.UploadText(ctx, req.Text))
}

func uploadResponse(up Uploaded, err error) protocol.UploadResponse {
	if err != nil {
		return protocol.UploadResponse{ErrorMessage: errorDetail(err)}
	}
	return protocol.UploadResponse{BlobID: up.BlobID, BlobURL: up.URL, Success: true}
}

// errorDetail 返回面向用户的错误描述。
func errorDetail(err error) string {
	if fe, ok := err.(*fetchError); ok {
		return "Could not download file from URL: " + xerrors.DetailOf(fe.cause)
	}
	return xerrors.DetailOf(err)
}
