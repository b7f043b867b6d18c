package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// TLS record 层的 handshake 类型，ClientHello 的首字节
const tlsHandshakeByte = 0x16

// httpOnTLSListener 识别误发到 TLS 端口的纯 HTTP 请求
//
// 浏览器直接访问 http://host:8443 时首字节不是 TLS handshake，
// 这类连接回一个 301 指向 https://，其余连接原样交给 TLS 层。
type httpOnTLSListener struct {
	net.Listener
}

func (l *httpOnTLSListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}

		first, err := sniffFirstByte(conn, 5*time.Second)
		if err != nil {
			conn.Close()
			continue
		}

		if first == tlsHandshakeByte {
			return replayConn(conn, first), nil
		}
		go redirectToHTTPS(replayConn(conn, first))
	}
}

// sniffFirstByte 带超时读一个字节用于协议识别
func sniffFirstByte(conn net.Conn, timeout time.Duration) (byte, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	var b [1]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// replayConn 把已嗅探的字节塞回连接开头
func replayConn(conn net.Conn, first byte) net.Conn {
	return &sniffedConn{
		Conn: conn,
		r:    io.MultiReader(bytes.NewReader([]byte{first}), conn),
	}
}

type sniffedConn struct {
	net.Conn
	r io.Reader
}

func (c *sniffedConn) Read(b []byte) (int, error) { return c.r.Read(b) }

// redirectToHTTPS 读出请求行后回 301，把客户端引向 https 同路径
func redirectToHTTPS(conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		return
	}

	host := req.Host
	if host == "" {
		host = conn.LocalAddr().String()
	}
	// 非 443 端口时 Location 里要带上实际监听端口
	if _, port, err := net.SplitHostPort(conn.LocalAddr().String()); err == nil && port != "443" {
		if _, _, hostErr := net.SplitHostPort(host); hostErr != nil {
			host = net.JoinHostPort(host, port)
		}
	}

	fmt.Fprintf(conn, "HTTP/1.1 301 Moved Permanently\r\n"+
		"Location: https://%s%s\r\n"+
		"Content-Length: 0\r\nConnection: close\r\n\r\n", host, req.URL.RequestURI())
}
