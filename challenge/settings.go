package challenge

import (
	"net/http"
	"time"
)

// DefaultDelay is how long the proxy expects a browser to take before
// submitting the answer.  Answers sent sooner are rejected.
const DefaultDelay = 4 * time.Second

// Settings configures challenge handling.  It is read-only once handed to a
// client.
type Settings struct {
	// Delay is the wait between receiving a challenge and submitting its
	// answer.
	Delay time.Duration

	// TransportCustomizer, when non-nil, is called with the base transport
	// after the client package has configured it.
	TransportCustomizer func(*http.Transport)
}

// DefaultSettings returns Settings with DefaultDelay and no customizer.
func DefaultSettings() Settings {
	return Settings{Delay: DefaultDelay}
}
