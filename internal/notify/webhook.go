package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier 向固定 URL 推送 JSON 通知
type WebhookNotifier struct {
	webhookURL string
	timeout    time.Duration
	httpClient *http.Client
}

// 确保 WebhookNotifier 实现了 Notifier 接口
var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(webhookURL string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &WebhookNotifier{
		webhookURL: webhookURL,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// NotifyRunFinished 推送执行结束通知
func (n *WebhookNotifier) NotifyRunFinished(ctx context.Context, p *Payload) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	body, _ := json.Marshal(p)
	req, err := http.NewRequestWithContext(ctx, "POST", n.webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("[notify] Build webhook request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Printf("[notify] Webhook call failed: run=%s err=%v", p.RunID, err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("[notify] Webhook returned status %d: run=%s", resp.StatusCode, p.RunID)
	}
}
