// Package tlsutil 自签名证书链生成
//
// 内网部署没有公网域名，走不了 ACME。启动时生成一个私有 CA 和
// 一张由它签发的服务端证书，客户端从 /ca.pem 下载 CA 导入后即可校验。
package tlsutil

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultCertDir 默认证书目录
const DefaultCertDir = "/etc/catalog-sync/certs"

// 文件名固定，运维文档和安装器都按这个布局写
const (
	caFileName   = "ca.pem"
	certFileName = "server.pem"
	keyFileName  = "server-key.pem"
)

// CA 十年；服务端证书默认一年，到期删掉文件重启即轮换
const caValidFor = 10 * 365 * 24 * time.Hour

// CertFiles 一套证书在磁盘上的路径
type CertFiles struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

// DefaultCertFiles 按固定文件名拼出目录下的证书路径
func DefaultCertFiles(dir string) CertFiles {
	if dir == "" {
		dir = DefaultCertDir
	}
	return CertFiles{
		CAFile:   filepath.Join(dir, caFileName),
		CertFile: filepath.Join(dir, certFileName),
		KeyFile:  filepath.Join(dir, keyFileName),
	}
}

// CertsExist 三个文件都在才算存在，缺任何一个都触发重新生成
func (c CertFiles) CertsExist() bool {
	for _, f := range []string{c.CAFile, c.CertFile, c.KeyFile} {
		if _, err := os.Stat(f); err != nil {
			return false
		}
	}
	return true
}

// GenerateOptions 证书生成选项
type GenerateOptions struct {
	// Hosts 额外 SAN，逗号分隔，IP 和域名可混写；
	// 回环地址和本机 hostname/IP 总是自动包含
	Hosts string

	// Organization 证书组织名，同时决定 CA 的 CommonName
	Organization string

	// ValidFor 服务端证书有效期
	ValidFor time.Duration

	// CertDir 证书输出目录
	CertDir string

	// Force 已有证书也强制覆盖
	Force bool
}

// DefaultGenerateOptions 返回默认选项
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Organization: "Catalog Sync",
		ValidFor:     365 * 24 * time.Hour,
		CertDir:      DefaultCertDir,
	}
}

func (o *GenerateOptions) normalize() {
	if o.CertDir == "" {
		o.CertDir = DefaultCertDir
	}
	if o.Organization == "" {
		o.Organization = "Catalog Sync"
	}
	if o.ValidFor <= 0 {
		o.ValidFor = 365 * 24 * time.Hour
	}
}

// EnsureCerts 证书齐备则直接复用，否则生成一套新的
func EnsureCerts(opts GenerateOptions) (*CertFiles, error) {
	opts.normalize()
	files := DefaultCertFiles(opts.CertDir)

	if files.CertsExist() && !opts.Force {
		log.Printf("[tls] Reusing certificates in %s", opts.CertDir)
		return &files, nil
	}

	if err := GenerateCerts(opts); err != nil {
		return nil, err
	}
	return &files, nil
}

// GenerateCerts 生成私有 CA 并签发服务端证书，写入 CertDir
//
// CA 私钥不落盘，签发完即丢弃；之后重新生成会产生一个全新的 CA，
// 客户端需要重新下载 /ca.pem。
func GenerateCerts(opts GenerateOptions) error {
	opts.normalize()

	if err := os.MkdirAll(opts.CertDir, 0755); err != nil {
		return fmt.Errorf("create cert dir: %w", err)
	}

	caCert, caKey, err := newCA(opts.Organization)
	if err != nil {
		return fmt.Errorf("generate CA: %w", err)
	}

	dnsNames, ips := serverSANs(opts.Hosts)
	serverDER, serverKey, err := issueServerCert(caCert, caKey, opts, dnsNames, ips)
	if err != nil {
		return fmt.Errorf("issue server cert: %w", err)
	}

	files := DefaultCertFiles(opts.CertDir)
	if err := writePEM(files.CAFile, "CERTIFICATE", caCert.Raw, 0644); err != nil {
		return fmt.Errorf("write %s: %w", files.CAFile, err)
	}
	if err := writePEM(files.CertFile, "CERTIFICATE", serverDER, 0644); err != nil {
		return fmt.Errorf("write %s: %w", files.CertFile, err)
	}

	keyDER, err := x509.MarshalECPrivateKey(serverKey)
	if err != nil {
		return fmt.Errorf("marshal server key: %w", err)
	}
	if err := writePEM(files.KeyFile, "EC PRIVATE KEY", keyDER, 0600); err != nil {
		return fmt.Errorf("write %s: %w", files.KeyFile, err)
	}

	log.Printf("[tls] CA:   %s", files.CAFile)
	log.Printf("[tls] Cert: %s (%d SANs, valid %s)", files.CertFile, len(dnsNames)+len(ips), opts.ValidFor)
	log.Printf("[tls] Key:  %s", files.KeyFile)
	return nil
}

// newCA 生成一次性私有 CA，私钥只存在于本次调用的内存里
func newCA(org string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	serial, err := newSerial()
	if err != nil {
		return nil, nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{org},
			CommonName:   org + " CA",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(caValidFor),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

// issueServerCert 由 CA 签发服务端证书，带 client auth 以备双向认证
func issueServerCert(ca *x509.Certificate, caKey *ecdsa.PrivateKey, opts GenerateOptions, dnsNames []string, ips []net.IP) ([]byte, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	serial, err := newSerial()
	if err != nil {
		return nil, nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{opts.Organization},
			CommonName:   "Catalog Sync Server",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(opts.ValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, err
	}
	return der, key, nil
}

// newSerial 128 位随机序列号
func newSerial() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
}

// serverSANs 汇总证书 SAN：回环地址、本机 hostname、非回环网卡 IP，
// 再并入配置里手写的条目，IP 和域名自动分流
func serverSANs(extra string) (dnsNames []string, ips []net.IP) {
	seen := map[string]bool{}
	add := func(h string) {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			return
		}
		seen[h] = true
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else {
			dnsNames = append(dnsNames, h)
		}
	}

	add("localhost")
	add("127.0.0.1")
	add("::1")

	if hostname, err := os.Hostname(); err == nil {
		add(hostname)
	}
	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				add(ipnet.IP.String())
			}
		}
	}
	for _, h := range strings.Split(extra, ",") {
		add(h)
	}
	return dnsNames, ips
}

// writePEM 以指定权限写单块 PEM 文件
func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), perm)
}
