package blob

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	xerrors "AskWorld-Agents/internal/errors"
)

// DefaultMaxFetchBytes 是单次 URL 下载的默认上限。
const DefaultMaxFetchBytes int64 = 100 << 20

// Fetcher 下载远程文件用于“从 URL 上传”。
type Fetcher struct {
	client   *http.Client
	tempDir  string
	maxBytes int64
}

// FetcherOption 定义下载器的可选配置。
type FetcherOption func(*Fetcher)

// WithMaxBytes 限制下载内容的大小，超出时返回 INVALID_ARGUMENT。
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewFetcher 创建下载器，timeout 默认 30 秒，tempDir 为空时使用系统临时目录。
func NewFetcher(timeout time.Duration, tempDir string, opts ...FetcherOption) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	f := &Fetcher{client: &http.Client{Timeout: timeout}, tempDir: tempDir, maxBytes: DefaultMaxFetchBytes}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

func (f *Fetcher) tooLarge() error {
	return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("file exceeds the %d byte download limit", f.maxBytes))
}

// FetchURL 先将内容写入临时文件再读回内存，临时文件在任何路径上都会被删除。
func (f *Fetcher) FetchURL(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("invalid url %q", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构造下载请求失败")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeTransportFailure, err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", xerrors.New(xerrors.CodeUpstreamFailure, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	if resp.ContentLength > f.maxBytes {
		return nil, "", f.tooLarge()
	}

	suffix := path.Ext(parsed.Path)
	if suffix == "" {
		suffix = ".bin"
	}
	tmp, err := os.CreateTemp(f.tempDir, "askworld-fetch-*"+suffix)
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建临时文件失败")
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeTransportFailure, err, "read body failed")
	}
	if n > f.maxBytes {
		return nil, "", f.tooLarge()
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取临时文件失败")
	}
	data, err := io.ReadAll(tmp)
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取临时文件失败")
	}

	return data, MediaType(resp.Header.Get("Content-Type")), nil
}

// MediaType 去掉 Content-Type 中的参数部分，无法解析时返回默认类型。
func MediaType(contentType string) string {
	if contentType == "" {
		return DefaultMimeType
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		return DefaultMimeType
	}
	return mediaType
}
