package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Config 客户端配置
type Config struct {
	BaseURL       string        // 执行器地址，例如 http://localhost:8081
	Token         string        // 共享密钥（X-Pipeline-Token 认证）
	StartTimeout  time.Duration // start 调用超时
	ResumeTimeout time.Duration // resume 调用超时
	HTTPClient    *http.Client  // 自定义 HTTP 客户端（可选，用于 TLS）
}

// Client Pipeline 执行器 HTTP 客户端
type Client struct {
	baseURL       string
	httpClient    *http.Client
	startTimeout  time.Duration
	resumeTimeout time.Duration
}

// 确保 Client 实现了 Executor 接口
var _ Executor = (*Client)(nil)

// NewClient 创建执行器客户端
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	// 注入 X-Pipeline-Token header（如果配置了 Token）
	if cfg.Token != "" {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		httpClient = &http.Client{
			Timeout:   httpClient.Timeout,
			Jar:       httpClient.Jar,
			Transport: &pipelineTokenTransport{base: base, token: cfg.Token},
		}
	}

	startTimeout := cfg.StartTimeout
	if startTimeout <= 0 {
		startTimeout = 10 * time.Second
	}
	resumeTimeout := cfg.ResumeTimeout
	if resumeTimeout <= 0 {
		resumeTimeout = 10 * time.Second
	}

	return &Client{
		baseURL:       cfg.BaseURL,
		httpClient:    httpClient,
		startTimeout:  startTimeout,
		resumeTimeout: resumeTimeout,
	}
}

// Start 请求执行器启动一次新的同步执行
func (c *Client) Start(ctx context.Context, startReq *StartRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.startTimeout)
	defer cancel()

	body, _ := json.Marshal(startReq)
	req, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/api/v1/pipeline/start", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pipeline start: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("pipeline start: unexpected status: %d", resp.StatusCode)
	}

	var result StartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("pipeline start: decode response: %w", err)
	}
	if result.RunID == "" {
		return "", fmt.Errorf("pipeline start: empty run_id in response")
	}
	return result.RunID, nil
}

// Resume 请求执行器继续推进指定 Run
func (c *Client) Resume(ctx context.Context, runID string) (*ResumeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.resumeTimeout)
	defer cancel()

	body, _ := json.Marshal(ResumeRequest{RunID: runID})
	req, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/api/v1/pipeline/resume", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pipeline resume: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pipeline resume: unexpected status: %d", resp.StatusCode)
	}

	var result ResumeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("pipeline resume: decode response: %w", err)
	}
	switch result.Status {
	case ResumeStatusYielded, ResumeStatusRetryDelay, ResumeStatusCompleted, ResumeStatusFailed:
	default:
		return nil, fmt.Errorf("pipeline resume: unknown status %q", result.Status)
	}
	return &result, nil
}

// pipelineTokenTransport 包装 http.RoundTripper，自动注入 X-Pipeline-Token header
type pipelineTokenTransport struct {
	base  http.RoundTripper
	token string
}

func (t *pipelineTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-Pipeline-Token", t.token)
	return t.base.RoundTrip(req)
}
