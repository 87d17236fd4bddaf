package client

import (
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decoders maps a Content-Encoding token to a reader constructor.
var decoders = map[string]func(io.Reader) (io.ReadCloser, error){
	"gzip":   gzipReader,
	"x-gzip": gzipReader,
	"deflate": func(r io.Reader) (io.ReadCloser, error) {
		return zlib.NewReader(r)
	},
	"br": func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(brotli.NewReader(r)), nil
	},
	"zstd": func(r io.Reader) (io.ReadCloser, error) {
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	},
}

func gzipReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// decodeTransport transparently decodes response bodies.  The base
// transport runs with DisableCompression, so whatever the header profile
// advertises in Accept-Encoding is decoded here, including br and zstd
// which net/http does not handle.
type decodeTransport struct {
	next http.RoundTripper
}

func (t *decodeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	open, ok := decoders[enc]
	if !ok || req.Method == http.MethodHead || resp.Body == nil || resp.Body == http.NoBody {
		return resp, nil
	}
	resp.Body = &decodedBody{body: resp.Body, open: open}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

// decodedBody opens the decoder on first Read so that an empty body only
// fails if someone actually reads it.
type decodedBody struct {
	body io.ReadCloser
	open func(io.Reader) (io.ReadCloser, error)
	r    io.ReadCloser
	err  error
}

func (d *decodedBody) Read(p []byte) (int, error) {
	if d.r == nil && d.err == nil {
		r, err := d.open(d.body)
		if err != nil {
			d.err = err
		} else {
			d.r = r
		}
	}
	if d.err != nil {
		return 0, d.err
	}
	return d.r.Read(p)
}

func (d *decodedBody) Close() error {
	if d.r != nil {
		d.r.Close()
	}
	return d.body.Close()
}
