package dispatch

import (
	"bytes"
	"fmt"
	"strings"

	"AskWorld-Agents/internal/blob"
)

var audioExtensions = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg", ".aac"}

// FormatSize 以 bytes / KB / MB 展示大小，阈值严格大于 1024。
func FormatSize(n int) string {
	switch {
	case n > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	case n > 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// SniffMime 在存储只给出 application/octet-stream 时根据 blob ID 与内容猜测音频类型。
func SniffMime(mimeType, blobID string, data []byte) string {
	if mimeType != "" && mimeType != blob.DefaultMimeType {
		return mimeType
	}
	lowerID := strings.ToLower(blobID)
	for _, ext := range audioExtensions {
		if strings.Contains(lowerID, ext) {
			return "audio/mpeg"
		}
	}
	switch {
	case bytes.HasPrefix(data, []byte("ID3")), bytes.HasPrefix(data, []byte{0xFF, 0xFB}):
		return "audio/mpeg"
	case bytes.HasPrefix(data, []byte("RIFF")):
		return "audio/wav"
	case bytes.HasPrefix(data, []byte("ftyp")), len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "audio/mp4"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "audio/ogg"
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "audio/webm"
	}
	return blob.DefaultMimeType
}

// IsAudio 判断下载的 blob 是否需要转写。
func IsAudio(mimeType, blobID string, data []byte) bool {
	if strings.HasPrefix(strings.ToLower(mimeType), "audio/") {
		return true
	}
	return strings.HasPrefix(SniffMime(blob.DefaultMimeType, blobID, data), "audio/")
}

func details(lines ...string) string {
	return "📋 **Details:**\n" + strings.Join(lines, "\n")
}

func uploadedBlock(title, blobID, viewURL string) string {
	return fmt.Sprintf("✅ **%s**\n\n%s", title, details(
		fmt.Sprintf("• **Blob ID:** `%s`", blobID),
		fmt.Sprintf("• **View at:** %s", viewURL),
	))
}

func failedBlock(title, detail string) string {
	return fmt.Sprintf("❌ **%s**\n\n%s", title, detail)
}

func downloadedBlock(blobID string, size int, mimeType string) string {
	return "✅ **Blob Downloaded Successfully!**\n\n" + details(
		fmt.Sprintf("• **Blob ID:** `%s`", blobID),
		fmt.Sprintf("• **File Size:** %s", FormatSize(size)),
		fmt.Sprintf("• **MIME Type:** %s", mimeType),
	)
}

const (
	audioDetectedBlock = "\n\n🎵 **Audio File Detected!**\nRequesting transcription..."

	noBlobIDMessage  = "❌ **No Valid Blob ID Provided**\n\nPlease use the format: `/download <blob_id>`"
	noContentMessage = "❌ **No Valid Content Found**\n\nPlease provide a file, URL, or text to upload."
)
