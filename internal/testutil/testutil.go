// Package testutil provides scripted fake servers for protocol tests.
package testutil

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
)

// Server is the server side of an in-memory connection. Its methods may be
// called from a goroutine other than the test's.
type Server struct {
	t    testing.TB
	conn net.Conn
	r    io.Reader
	w    io.Writer
	fw   *flate.Writer
	br   *bufio.Reader
}

// Pipe returns the client side of an in-memory connection and its scripted
// server side. Both are closed when the test ends.
func Pipe(t testing.TB) (net.Conn, *Server) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	s := &Server{t: t}
	s.setConn(server)
	return client, s
}

func (s *Server) setConn(conn net.Conn) {
	s.conn = conn
	s.r = conn
	s.w = conn
	s.br = bufio.NewReader(conn)
}

// Send writes each line followed by CRLF.
func (s *Server) Send(lines ...string) {
	for _, l := range lines {
		s.Write(l + "\r\n")
	}
}

// Write writes raw data.
func (s *Server) Write(data string) {
	if _, err := io.WriteString(s.w, data); err != nil {
		s.t.Errorf("server: write failed: %v", err)
		return
	}
	if s.fw != nil {
		if err := s.fw.Flush(); err != nil {
			s.t.Errorf("server: flush failed: %v", err)
		}
	}
}

// ReadLine reads a line without its CRLF. An empty string is returned on
// error.
func (s *Server) ReadLine() string {
	l, err := s.br.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSuffix(l, "\n"), "\r")
}

// Expect reads a line and reports a test error if it isn't want.
func (s *Server) Expect(want string) bool {
	got := s.ReadLine()
	if got != want {
		s.t.Errorf("server: got command %q, want %q", got, want)
		return false
	}
	return true
}

// ExpectPrefix reads a line and returns the part after prefix.
func (s *Server) ExpectPrefix(prefix string) string {
	got := s.ReadLine()
	if !strings.HasPrefix(got, prefix) {
		s.t.Errorf("server: got command %q, want prefix %q", got, prefix)
		return ""
	}
	return strings.TrimPrefix(got, prefix)
}

// StartTLS performs the server side of a TLS handshake.
func (s *Server) StartTLS(config *tls.Config) error {
	tlsConn := tls.Server(s.conn, config)
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	s.setConn(tlsConn)
	return nil
}

// Compress enables raw DEFLATE in both directions.
func (s *Server) Compress() {
	fw, err := flate.NewWriter(s.conn, flate.DefaultCompression)
	if err != nil {
		s.t.Errorf("server: flate.NewWriter: %v", err)
		return
	}
	s.fw = fw
	s.w = fw
	s.r = flate.NewReader(s.conn)
	s.br = bufio.NewReader(s.r)
}

// Close closes the server side of the connection.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Conn returns the current server-side connection.
func (s *Server) Conn() net.Conn {
	return s.conn
}

// TLSConfigs generates a self-signed certificate and returns a matching
// server and client configuration.
func TLSConfigs(t testing.TB) (server, client *tls.Config) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate private key: %v", err)
	}

	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Test"},
			CommonName:   "mail.example.org",
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"mail.example.org", "localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	server = &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  key,
			Leaf:        leaf,
		}},
		// Tickets would be left unread on the synchronous pipe
		SessionTicketsDisabled: true,
	}
	client = &tls.Config{
		RootCAs:    pool,
		ServerName: "mail.example.org",
	}
	return server, client
}
