// Package tlscollector implements the TLS Collector (spec.md §4.3): a
// single permissive handshake against (ip, port) extracting protocol,
// cipher, ALPN, and certificate metadata. Certificate field extraction
// is grounded on secinto-probeHTTP/internal/probe/certificate.go's
// parseCertificate/isSelfSigned, adapted for an RFC4514 issuer DN, a
// sha256:-prefixed fingerprint, and ALPN capture the teacher never
// extracts.
package tlscollector

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/reconscan/reconscan/internal/idgen"
	"github.com/reconscan/reconscan/internal/model"
)

// Collector opens a permissive TLS handshake and extracts certificate
// metadata without ever rejecting a connection on certificate grounds
// — the scan must observe invalid certs, not refuse to look at them.
type Collector struct {
	timeout time.Duration
}

// New builds a Collector with the given per-handshake timeout.
func New(timeout time.Duration) *Collector {
	return &Collector{timeout: timeout}
}

// Collect dials (ip, port), completes a permissive handshake, and
// extracts protocol/cipher/ALPN/certificate facts.
func (c *Collector) Collect(ctx context.Context, targetID, observedHost, ip string, port int) *model.TLSArtifact {
	start := time.Now()
	artifact := &model.TLSArtifact{
		TLSID:        idgen.New(),
		TargetID:     targetID,
		ObservedHost: observedHost,
		IP:           ip,
		Port:         port,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(ip, fmt.Sprintf("%d", port)))
	if err != nil {
		artifact.Error = err.Error()
		artifact.TimingsMs.Total = time.Since(start).Milliseconds()
		return artifact
	}
	defer rawConn.Close()

	tlsConfig := &tls.Config{
		InsecureSkipVerify: true, // permissive by design: observe invalid certs, don't reject them
		ServerName:         observedHost,
		NextProtos:         []string{"h2", "http/1.1"},
		MinVersion:         tls.VersionSSL30,
	}

	tlsConn := tls.Client(rawConn, tlsConfig)
	tlsConn.SetDeadline(time.Now().Add(c.timeout))
	if err := tlsConn.Handshake(); err != nil {
		artifact.Error = err.Error()
		artifact.TimingsMs.Total = time.Since(start).Milliseconds()
		return artifact
	}
	defer tlsConn.Close()

	state := tlsConn.ConnectionState()
	artifact.Protocol = tlsVersionString(state.Version)
	artifact.Cipher = tls.CipherSuiteName(state.CipherSuite)
	artifact.ALPN = state.NegotiatedProtocol

	if len(state.PeerCertificates) > 0 {
		fillCertificateFields(artifact, state.PeerCertificates[0])
	}

	artifact.TimingsMs.Total = time.Since(start).Milliseconds()
	return artifact
}

func fillCertificateFields(artifact *model.TLSArtifact, cert *x509.Certificate) {
	artifact.CN = cert.Subject.CommonName
	artifact.SAN = sanList(cert)
	artifact.IssuerDN = rfc4514(cert.Issuer)
	artifact.Serial = formatSerial(cert.SerialNumber.Bytes())
	artifact.NotBefore = cert.NotBefore.UTC().Format(time.RFC3339)
	artifact.NotAfter = cert.NotAfter.UTC().Format(time.RFC3339)
	artifact.SelfSigned = isSelfSigned(cert)
	sum := sha256.Sum256(cert.Raw)
	artifact.Hash = "sha256:" + hex.EncodeToString(sum[:])
}

func sanList(cert *x509.Certificate) []string {
	var sans []string
	sans = append(sans, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		sans = append(sans, ip.String())
	}
	sort.Strings(sans)
	return sans
}

// isSelfSigned mirrors secinto-probeHTTP/internal/probe/certificate.go's
// heuristic exactly: raw issuer equals raw subject and the certificate
// verifies its own signature.
func isSelfSigned(cert *x509.Certificate) bool {
	if !bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		return false
	}
	return cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}

func formatSerial(b []byte) string {
	parts := make([]string, len(b))
	for i, bt := range b {
		parts[i] = fmt.Sprintf("%02x", bt)
	}
	return strings.Join(parts, ":")
}

// rfc4514 renders an issuer pkix.Name as an RFC4514 distinguished name
// string (most-specific RDN first: CN, then OU, O, L, ST, C),
// reproducing what crypto/x509/pkix.Name lacks a built-in formatter for.
func rfc4514(name pkix.Name) string {
	var parts []string
	if name.CommonName != "" {
		parts = append(parts, "CN="+escapeDN(name.CommonName))
	}
	for _, ou := range reverseStrings(name.OrganizationalUnit) {
		parts = append(parts, "OU="+escapeDN(ou))
	}
	for _, o := range reverseStrings(name.Organization) {
		parts = append(parts, "O="+escapeDN(o))
	}
	for _, l := range reverseStrings(name.Locality) {
		parts = append(parts, "L="+escapeDN(l))
	}
	for _, st := range reverseStrings(name.Province) {
		parts = append(parts, "ST="+escapeDN(st))
	}
	for _, c := range reverseStrings(name.Country) {
		parts = append(parts, "C="+escapeDN(c))
	}
	return strings.Join(parts, ",")
}

func reverseStrings(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func escapeDN(v string) string {
	replacer := strings.NewReplacer(",", "\\,", "+", "\\+", "\"", "\\\"", "\\", "\\\\", "<", "\\<", ">", "\\>", ";", "\\;")
	return replacer.Replace(v)
}

func tlsVersionString(version uint16) string {
	switch version {
	case tls.VersionTLS13:
		return "1.3"
	case tls.VersionTLS12:
		return "1.2"
	case tls.VersionTLS11:
		return "1.1"
	case tls.VersionTLS10:
		return "1.0"
	default:
		return "unknown"
	}
}
