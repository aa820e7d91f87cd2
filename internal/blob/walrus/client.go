// Package walrus talks to a Walrus publisher for uploads and an aggregator
// for downloads over the public HTTP API.
package walrus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"AskWorld-Agents/internal/blob"
	xerrors "AskWorld-Agents/internal/errors"
)

// Config 描述 Walrus 服务地址。
type Config struct {
	PublisherURL  string
	AggregatorURL string
	ScannerURL    string
	Epochs        int
	Timeout       time.Duration
}

// Client 实现 blob.Store。
type Client struct {
	publisher  string
	aggregator string
	scanner    string
	epochs     int
	httpClient *http.Client
}

var _ blob.Store = (*Client)(nil)

// NewClient 创建 Walrus 客户端。
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.PublisherURL) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Walrus publisher 地址不能为空")
	}
	if strings.TrimSpace(cfg.AggregatorURL) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Walrus aggregator 地址不能为空")
	}
	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		publisher:  strings.TrimRight(cfg.PublisherURL, "/"),
		aggregator: strings.TrimRight(cfg.AggregatorURL, "/"),
		scanner:    cfg.ScannerURL,
		epochs:     epochs,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type storeResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			BlobID string `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
}

// Put 通过 publisher 上传数据并返回 blob ID。
func (c *Client) Put(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "blob 内容为空")
	}
	endpoint := fmt.Sprintf("%s/v1/blobs?epochs=%s", c.publisher, strconv.Itoa(c.epochs))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构造上传请求失败")
	}
	if mimeType != "" {
		req.Header.Set("Content-Type", mimeType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeTransportFailure, err, "Walrus publisher 请求失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeTransportFailure, err, "读取 Walrus 响应失败")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", xerrors.New(xerrors.CodeUpstreamFailure,
			fmt.Sprintf("Walrus publisher 返回错误 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var parsed storeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析 Walrus 响应失败")
	}
	switch {
	case parsed.NewlyCreated != nil && parsed.NewlyCreated.BlobObject.BlobID != "":
		return parsed.NewlyCreated.BlobObject.BlobID, nil
	case parsed.AlreadyCertified != nil && parsed.AlreadyCertified.BlobID != "":
		return parsed.AlreadyCertified.BlobID, nil
	}
	return "", xerrors.New(xerrors.CodeUpstreamFailure, "Walrus 响应中缺少 blobId")
}

// Get 通过 aggregator 下载 blob。
func (c *Client) Get(ctx context.Context, id string) ([]byte, string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, "blob ID 不能为空")
	}
	endpoint := c.aggregator + "/v1/blobs/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构造下载请求失败")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeTransportFailure, err, "Walrus aggregator 请求失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("blob %s not found", id),
			xerrors.WithMetadata("blob_id", id))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeTransportFailure, err, "读取 blob 内容失败")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", xerrors.New(xerrors.CodeUpstreamFailure,
			fmt.Sprintf("Walrus aggregator 返回错误 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return body, blob.MediaType(resp.Header.Get("Content-Type")), nil
}

// ViewerURL 返回 walruscan 上的浏览地址。
func (c *Client) ViewerURL(id string) string {
	return blob.ViewerURL(c.scanner, id)
}
