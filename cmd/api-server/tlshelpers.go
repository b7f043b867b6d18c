package main

import (
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// withCACertEndpoint 在自签名模式下挂出 /ca.pem 供客户端下载 CA
//
// 证书内容启动时读入内存，文件读不到就降级为不挂该路径。
func withCACertEndpoint(next http.Handler, caFile string) http.Handler {
	if caFile == "" {
		return next
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		log.Printf("[tls] CA file %s unreadable, /ca.pem disabled: %v", caFile, err)
		return next
	}
	log.Printf("[tls] Serving CA certificate at /ca.pem")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ca.pem" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h := w.Header()
		h.Set("Content-Type", "application/x-pem-file")
		h.Set("Content-Disposition", `attachment; filename="catalog-sync-ca.pem"`)
		h.Set("Content-Length", strconv.Itoa(len(pem)))
		if r.Method == http.MethodGet {
			w.Write(pem)
		}
	})
}

// handshakeNoiseFilter 丢弃 TLS handshake error 行，其余透传
//
// 自签名证书下浏览器每次首连都会留下一条 handshake error，属预期噪音。
type handshakeNoiseFilter struct {
	out io.Writer
}

func (f *handshakeNoiseFilter) Write(p []byte) (int, error) {
	if strings.Contains(string(p), "TLS handshake error") {
		return len(p), nil
	}
	return f.out.Write(p)
}

// newTLSFilteredLogger 给 http.Server.ErrorLog 用的降噪 logger
func newTLSFilteredLogger() *log.Logger {
	return log.New(&handshakeNoiseFilter{out: os.Stderr}, "", 0)
}
