package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"

	"golang.org/x/crypto/acme/autocert"

	"catalog-sync/internal/config"
	"catalog-sync/internal/tlsutil"
)

// serve 根据 TLS 配置选择监听方式
//
// 三种模式：
//   - 纯 HTTP（默认）
//   - 自签名/自备证书 HTTPS：auto_generate 时用内置 CA 生成证书，
//     TLS 端口上误发的 HTTP 请求自动 301 到 HTTPS，/ca.pem 提供 CA 下载
//   - ACME（Let's Encrypt）：公网域名自动签发，tls-alpn-01 验证
func serve(srv *http.Server, cfg *config.Config) error {
	if !cfg.TLS.Enabled {
		log.Printf("API Server listening on %s", srv.Addr)
		return srv.ListenAndServe()
	}

	if cfg.TLS.ACME.Enabled {
		return serveACME(srv, cfg.TLS.ACME)
	}
	return serveSelfSigned(srv, &cfg.TLS)
}

// serveACME 通过 Let's Encrypt 自动签发证书并监听 HTTPS
func serveACME(srv *http.Server, acme config.ACMEConfig) error {
	if len(acme.Domains) == 0 {
		return fmt.Errorf("acme enabled but no domains configured")
	}

	cacheDir := acme.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(tlsutil.DefaultCertDir, "acme")
	}

	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(acme.Domains...),
		Cache:      autocert.DirCache(cacheDir),
		Email:      acme.Email,
	}
	srv.TLSConfig = m.TLSConfig()

	log.Printf("API Server listening on %s (HTTPS, ACME domains=%v)", srv.Addr, acme.Domains)
	return srv.ListenAndServeTLS("", "")
}

// serveSelfSigned 使用自备或自动生成的自签名证书监听 HTTPS
func serveSelfSigned(srv *http.Server, tlsCfg *config.TLSConfig) error {
	certFile, keyFile, caFile := tlsCfg.CertFile, tlsCfg.KeyFile, tlsCfg.CAFile

	if tlsCfg.AutoGenerate {
		opts := tlsutil.DefaultGenerateOptions()
		if tlsCfg.CertDir != "" {
			opts.CertDir = tlsCfg.CertDir
		}
		if tlsCfg.Hosts != "" {
			opts.Hosts = tlsCfg.Hosts
		}
		files, err := tlsutil.EnsureCerts(opts)
		if err != nil {
			return fmt.Errorf("ensure tls certs: %w", err)
		}
		certFile, keyFile, caFile = files.CertFile, files.KeyFile, files.CAFile
	}

	// /ca.pem 提供 CA 证书下载，内网客户端借此信任自签名证书
	srv.Handler = withCACertEndpoint(srv.Handler, caFile)
	srv.ErrorLog = newTLSFilteredLogger()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	log.Printf("API Server listening on %s (HTTPS)", srv.Addr)
	return srv.ServeTLS(&httpOnTLSListener{Listener: ln}, certFile, keyFile)
}
