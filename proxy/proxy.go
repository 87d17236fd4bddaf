// Package proxy loads proxy lists and rotates work across per-proxy clients.
//
// A clearance cookie is bound to the address that solved the challenge, so
// each proxy gets its own client and cookie jar; Rotation spreads requests
// across those clients instead of across bare proxy addresses.
package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
)

// Load reads a newline-delimited list of proxy URLs from filename.  Blank
// lines and lines beginning with '#' are ignored, and entries without a
// scheme ("host:port") are taken as http proxies.  Every entry is validated.
func Load(filename string) ([]string, error) {
	f, err := os.Open(filename) // #nosec G304 – filename is an operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("proxy: open %q: %w", filename, err)
	}
	defer f.Close()

	var loaded []string
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := normalize(line)
		if err != nil {
			return nil, fmt.Errorf("proxy: %s:%d: %w", filename, n, err)
		}
		loaded = append(loaded, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("proxy: read %q: %w", filename, err)
	}
	return loaded, nil
}

func normalize(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("%q has no host", raw)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return "", fmt.Errorf("%q: unsupported scheme %q", raw, u.Scheme)
	}
	return u.String(), nil
}

// Rotation hands out items round-robin.  It is safe for concurrent use; each
// concurrent caller advances the rotation by exactly one.
type Rotation[T any] struct {
	items []T
	next  atomic.Uint64
}

// NewRotation returns a Rotation over items.  items must not be empty.
func NewRotation[T any](items []T) *Rotation[T] {
	if len(items) == 0 {
		panic("proxy: NewRotation with no items")
	}
	return &Rotation[T]{items: items}
}

// Next returns the next item in the rotation.
func (r *Rotation[T]) Next() T {
	i := r.next.Add(1) - 1
	return r.items[i%uint64(len(r.items))]
}

// Len returns the number of items.
func (r *Rotation[T]) Len() int { return len(r.items) }
