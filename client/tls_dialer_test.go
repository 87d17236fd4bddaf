package client_test

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	utls "github.com/refraction-networking/utls"

	"github.com/firasghr/GoClearance/client"
)

// chromeTLS13Ciphers is the set of TLS 1.3 cipher suite IDs that Chrome
// advertises.  A Go TLS 1.3 server always negotiates one of these when the
// client presents a Chrome ClientHello.
var chromeTLS13Ciphers = map[uint16]bool{
	tls.TLS_AES_128_GCM_SHA256:       true,
	tls.TLS_AES_256_GCM_SHA384:       true,
	tls.TLS_CHACHA20_POLY1305_SHA256: true,
}

func TestUTLSDialer_NotNil(t *testing.T) {
	for _, id := range []utls.ClientHelloID{
		utls.HelloChrome_120,
		utls.HelloChrome_131,
		utls.HelloChrome_Auto,
	} {
		if d := client.UTLSDialer(id); d == nil {
			t.Errorf("UTLSDialer returned nil for %s", id.Str())
		}
		if d := client.UTLSDialerHTTP1(id, nil); d == nil {
			t.Errorf("UTLSDialerHTTP1 returned nil for %s", id.Str())
		}
	}
}

// TestUTLSDialer_TLSState stands up a TLS server that offers both h2 and
// http/1.1 and checks the handshake looks like Chrome and that the
// connection stays on HTTP/1.1.
func TestUTLSDialer_TLSState(t *testing.T) {
	tlsStateCh := make(chan tls.ConnectionState, 1)

	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil {
			select {
			case tlsStateCh <- *r.TLS:
			default:
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	ts.EnableHTTP2 = true
	// With EnableHTTP2 alone httptest offers only "h2".
	ts.TLS = &tls.Config{NextProtos: []string{"h2", "http/1.1"}}
	ts.StartTLS()
	t.Cleanup(ts.Close)

	dialInvoked := make(chan struct{}, 1)
	dialFn := client.UTLSDialerHTTP1(utls.HelloChrome_120, &tls.Config{InsecureSkipVerify: true}) // #nosec G402 – test only
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			select {
			case dialInvoked <- struct{}{}:
			default:
			}
			return dialFn(ctx, network, addr)
		},
	}
	httpClient := &http.Client{Transport: transport, Timeout: 5 * time.Second}

	resp, err := httpClient.Get(ts.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	select {
	case <-dialInvoked:
	default:
		t.Fatal("UTLSDialer was never invoked; default Go dialer may have been used")
	}

	select {
	case state := <-tlsStateCh:
		if state.Version != tls.VersionTLS13 {
			t.Errorf("expected TLS 1.3 (0x%04x), got 0x%04x", tls.VersionTLS13, state.Version)
		}
		if !chromeTLS13Ciphers[state.CipherSuite] {
			t.Errorf("cipher suite 0x%04x is not in Chrome's TLS 1.3 set", state.CipherSuite)
		}
		if state.NegotiatedProtocol != "http/1.1" {
			t.Errorf("NegotiatedProtocol: got %q, want %q", state.NegotiatedProtocol, "http/1.1")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout: server handler did not capture TLS state")
	}
}

func TestUTLSDialer_VerifiesCertificates(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	t.Cleanup(ts.Close)

	dial := client.UTLSDialerHTTP1(utls.HelloChrome_120, nil)
	_, err := dial(context.Background(), "tcp", ts.Listener.Addr().String())
	if err == nil {
		t.Fatal("expected handshake to fail against a self-signed certificate")
	}
}

func TestUTLSDialer_BadAddr(t *testing.T) {
	_, err := client.UTLSDialer(utls.HelloChrome_120)(context.Background(), "tcp", "no-port", nil)
	if err == nil {
		t.Error("expected error for address without port")
	}
}
