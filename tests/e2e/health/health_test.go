package health

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"catalog-sync/tests/testutil"
)

// TestHealth_Check 验证健康检查端点可用
func TestHealth_Check(t *testing.T) {
	resp, err := c.Get("/health")
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	result := testutil.ReadJSON(resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Health check returned %d", resp.StatusCode)
	}
	if result["status"] != "ok" {
		t.Errorf("Status = %v, want 'ok'", result["status"])
	}
}

// TestHealth_APIPrefix 验证统一前缀下的健康检查别名
func TestHealth_APIPrefix(t *testing.T) {
	resp, err := c.Get("/api/v1/health")
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	result := testutil.ReadJSON(resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Health check returned %d", resp.StatusCode)
	}
	if result["status"] != "ok" {
		t.Errorf("Status = %v, want 'ok'", result["status"])
	}
}

// TestHealth_Metrics 验证 Prometheus 指标端点
func TestHealth_Metrics(t *testing.T) {
	resp, err := c.Get("/metrics")
	if err != nil {
		t.Fatalf("Metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Metrics returned %d", resp.StatusCode)
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	if len(body) == 0 {
		t.Error("Metrics body is empty")
	}
	if !strings.Contains(body, "catalog_sync_") {
		t.Error("Metrics missing catalog_sync_ series")
	}
}

// TestHealth_OpenAPISpec 验证 OpenAPI 描述文件可下载
func TestHealth_OpenAPISpec(t *testing.T) {
	resp, err := c.Get("/api/v1/openapi.yaml")
	if err != nil {
		t.Fatalf("OpenAPI request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("OpenAPI spec returned %d", resp.StatusCode)
	}
	bodyBytes, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(bodyBytes), "openapi:") {
		t.Error("Response does not look like an OpenAPI document")
	}
}

// TestHealth_Docs 验证内嵌 API 文档页
func TestHealth_Docs(t *testing.T) {
	resp, err := c.Get("/docs")
	if err != nil {
		t.Fatalf("Docs request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Docs returned %d", resp.StatusCode)
	}
}
