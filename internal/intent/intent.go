// Package intent maps chat text to one of the blob agent's operations and
// produces clarification prompts when the classification is not confident.
package intent

import "strings"

// Intent 是用户消息的操作意图。
type Intent string

const (
	UploadFile   Intent = "upload_file"
	UploadText   Intent = "upload_text"
	DownloadBlob Intent = "download_blob"
	ListBlobs    Intent = "list_blobs"
	Help         Intent = "help"
	Unknown      Intent = "unknown"
)

// ConfidenceThreshold 低于该置信度时需要向用户澄清。
const ConfidenceThreshold = 0.7

// Parse 将词表中的名称转换为 Intent，未知名称返回 false。
func Parse(name string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(name))) {
	case UploadFile:
		return UploadFile, true
	case UploadText:
		return UploadText, true
	case DownloadBlob:
		return DownloadBlob, true
	case ListBlobs:
		return ListBlobs, true
	case Help:
		return Help, true
	case Unknown:
		return Unknown, true
	}
	return Unknown, false
}

// ExtractedData 保存分类过程中抽取的参数，空字符串表示未提供。
type ExtractedData struct {
	BlobID      string
	URL         string
	Description string
}

// Result 是一次分类的输出。
type Result struct {
	Intent     Intent
	Confidence float64
	Data       ExtractedData
}

// NeedsClarification 判断是否需要先向用户澄清意图。
func (r Result) NeedsClarification() bool {
	return r.Confidence < ConfidenceThreshold || r.Intent == Unknown
}
