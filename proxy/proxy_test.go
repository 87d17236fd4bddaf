package proxy_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/firasghr/GoClearance/proxy"
)

func writeProxyFile(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxies.txt")
	if err := os.WriteFile(path, []byte(lines), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeProxyFile(t, "http://proxy1:8080\nproxy2:8080\n# comment\n\nsocks5://user:pw@proxy3:1080\n")
	got, err := proxy.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"http://proxy1:8080", "http://proxy2:8080", "socks5://user:pw@proxy3:1080"}
	if len(got) != len(want) {
		t.Fatalf("got %d proxies, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("proxy %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoad_Invalid(t *testing.T) {
	for _, content := range []string{"ftp://proxy:21\n", "http://\n"} {
		if _, err := proxy.Load(writeProxyFile(t, content)); err == nil {
			t.Errorf("%q: expected error", content)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := proxy.Load("/nonexistent/proxies.txt"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRotation_RoundRobin(t *testing.T) {
	r := proxy.NewRotation([]string{"a", "b", "c"})
	for i, want := range []string{"a", "b", "c", "a", "b"} {
		if got := r.Next(); got != want {
			t.Errorf("Next #%d: got %q, want %q", i, got, want)
		}
	}
}

func TestRotation_ConcurrentIsEven(t *testing.T) {
	r := proxy.NewRotation([]int{0, 1, 2, 3})
	var mu sync.Mutex
	counts := make([]int, 4)
	var wg sync.WaitGroup
	for i := 0; i < 400; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := r.Next()
			mu.Lock()
			counts[n]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	for i, c := range counts {
		if c != 100 {
			t.Errorf("item %d handed out %d times, want 100", i, c)
		}
	}
}

func TestNewRotation_EmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for empty rotation")
		}
	}()
	proxy.NewRotation([]string{})
}
