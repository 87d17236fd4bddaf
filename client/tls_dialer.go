package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"
)

// UTLSDialer returns a dial function that performs the TLS handshake using
// the uTLS library, impersonating the browser fingerprint described by
// helloID.
//
// The ClientHello offers only "http/1.1" in ALPN.  A uTLS connection is not a
// *tls.Conn, so net/http cannot switch it to HTTP/2, and a server that picked
// h2 would receive HTTP/1.1 bytes.
//
// tlsCfg may be nil.  When set, its ServerName, RootCAs and
// InsecureSkipVerify are forwarded; every other field is dictated by the
// ClientHelloSpec.
func UTLSDialer(helloID utls.ClientHelloID) func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
	return func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: parse addr %q: %w", addr, err)
		}
		sni := host
		if tlsCfg != nil && tlsCfg.ServerName != "" {
			sni = tlsCfg.ServerName
		}

		spec, err := buildClientHelloSpec(helloID)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: %w", err)
		}

		var d net.Dialer
		rawConn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: dial %s: %w", addr, err)
		}

		uCfg := &utls.Config{ServerName: sni}
		if tlsCfg != nil {
			uCfg.RootCAs = tlsCfg.RootCAs
			uCfg.InsecureSkipVerify = tlsCfg.InsecureSkipVerify // #nosec G402 – caller-controlled
		}

		uConn := utls.UClient(rawConn, uCfg, utls.HelloCustom)
		if err := uConn.ApplyPreset(&spec); err != nil {
			_ = rawConn.Close()
			return nil, fmt.Errorf("utls dialer: apply preset for %s: %w", helloID.Str(), err)
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = uConn.Close()
			return nil, fmt.Errorf("utls dialer: TLS handshake with %s: %w", addr, err)
		}
		return uConn, nil
	}
}

// UTLSDialerHTTP1 adapts UTLSDialer to the http.Transport.DialTLSContext
// signature, forwarding tlsCfg on every dial.
func UTLSDialerHTTP1(helloID utls.ClientHelloID, tlsCfg *tls.Config) func(ctx context.Context, network, addr string) (net.Conn, error) {
	inner := UTLSDialer(helloID)
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return inner(ctx, network, addr, tlsCfg)
	}
}

// buildClientHelloSpec returns the parrot spec for helloID with ALPN
// restricted to HTTP/1.1.  UTLSIdToSpec generates a fresh spec on every call
// (new GREASE values, new extension shuffle), so specs are never shared
// between connections.
func buildClientHelloSpec(helloID utls.ClientHelloID) (utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(helloID)
	if err != nil {
		return utls.ClientHelloSpec{}, fmt.Errorf("no ClientHello spec for %s: %w", helloID.Str(), err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return spec, nil
}
