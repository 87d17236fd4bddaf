// Package config provides configuration management for GoClearance.
// It supports JSON and YAML configuration files layered over safe defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/firasghr/GoClearance/challenge"
	"github.com/firasghr/GoClearance/fingerprint"
	"github.com/firasghr/GoClearance/jschallenge"
	"github.com/firasghr/GoClearance/logger"
)

// Evaluation engines accepted in Config.Engine.
const (
	EngineNative = "native"
	EngineOtto   = "otto"
)

// Config holds all tunable parameters for the clearance client.
// The struct is loaded once at startup and then shared across goroutines as a
// read-only value.
type Config struct {
	// Delay is the wait between receiving a challenge and submitting the
	// answer.  Either a duration string ("4s") or integer milliseconds.
	Delay Duration `json:"delay" yaml:"delay"`

	// RequestTimeout is the end-to-end timeout for one logical request,
	// including the challenge delay and the follow-up.
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`

	// EvalTimeout bounds a single puzzle evaluation when Engine is "otto".
	EvalTimeout Duration `json:"eval_timeout" yaml:"eval_timeout"`

	// Engine selects the puzzle evaluator: "native" or "otto".
	Engine string `json:"engine" yaml:"engine"`

	// Profile names the fingerprint profile: "iuam", "chrome" or "firefox".
	Profile string `json:"profile" yaml:"profile"`

	// Proxy is an optional proxy URL (scheme://host:port).  Leave empty to
	// connect directly.
	Proxy string `json:"proxy" yaml:"proxy"`

	// HTTP2 enables HTTP/2 negotiation for crypto/tls profiles.
	HTTP2 bool `json:"http2" yaml:"http2"`

	// InsecureSkipVerify disables certificate verification.  Only meant for
	// test origins with self-signed certificates.
	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`

	// MaxIdleConns is the total maximum number of idle (keep-alive)
	// connections across all hosts in the HTTP transport pool.
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost caps idle connections to a single host.
	MaxIdleConnsPerHost int `json:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`

	// MaxConnsPerHost limits the total number of connections (idle +
	// active) to a single host.
	MaxConnsPerHost int `json:"max_conns_per_host" yaml:"max_conns_per_host"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// LoadConfig reads filename and overlays it on DefaultConfig.  Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON.  Unknown fields
// are rejected in both formats.  The result is validated before it is
// returned.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 – filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		err = dec.Decode(cfg)
	default:
		dec := json.NewDecoder(f)
		dec.DisallowUnknownFields() // catch typos in config files early
		err = dec.Decode(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %q: %w", filename, err)
	}
	return cfg, nil
}

// DefaultConfig returns a *Config pre-filled with defaults.  Each call
// returns a fresh independent copy.
func DefaultConfig() *Config {
	return &Config{
		Delay:               Duration(challenge.DefaultDelay),
		RequestTimeout:      Duration(30 * time.Second),
		EvalTimeout:         Duration(2 * time.Second),
		Engine:              EngineNative,
		Profile:             "iuam",
		MaxIdleConns:        500,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		LogLevel:            "info",
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Delay < 0 {
		return errors.New("delay must not be negative")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must not be negative")
	}
	if c.EvalTimeout < 0 {
		return errors.New("eval_timeout must not be negative")
	}
	// The client timeout covers the challenge delay, so a shorter one
	// fails every challenge.
	if c.RequestTimeout > 0 && c.RequestTimeout <= c.Delay {
		return fmt.Errorf("request_timeout (%s) must exceed delay (%s)", c.RequestTimeout, c.Delay)
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConnsPerHost < 0 || c.MaxConnsPerHost < 0 {
		return errors.New("connection pool limits must not be negative")
	}
	switch strings.ToLower(c.Engine) {
	case "", EngineNative, EngineOtto:
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	profile, err := fingerprint.Lookup(c.Profile)
	if err != nil {
		return err
	}
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil {
			return fmt.Errorf("parse proxy URL %q: %w", c.Proxy, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy URL %q needs a scheme and host", c.Proxy)
		}
		// The uTLS dialer connects straight to the origin and would
		// handshake with the proxy instead.
		if profile.UTLS {
			return fmt.Errorf("profile %q cannot be used with a proxy", profile.Name)
		}
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Settings returns the challenge settings described by c.
func (c *Config) Settings() challenge.Settings {
	s := challenge.DefaultSettings()
	s.Delay = c.Delay.Std()
	return s
}

// Evaluator returns the puzzle evaluator selected by Engine.
func (c *Config) Evaluator() jschallenge.Evaluator {
	if strings.EqualFold(c.Engine, EngineOtto) {
		return jschallenge.NewOttoEvaluator(c.EvalTimeout.Std())
	}
	return jschallenge.NewInterpreter()
}
