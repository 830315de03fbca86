// Package config loads the orchestrator's environment-driven settings.
//
// Parsing is deliberately plain: one function per concern, explicit
// defaults, no magic reflection.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EngineKind selects which Orchestrator backend the service runs.
type EngineKind string

const (
	EngineLocal EngineKind = "local"
	EngineKFP   EngineKind = "kfp" // external workflow-engine backend
)

// Settings holds the fully-resolved service configuration.
type Settings struct {
	EngKind EngineKind

	// Local backend.
	LocNumWorkers int

	// Options cache.
	OptionsCacheSize int

	// Timeouts.
	MaxSyncWait        time.Duration
	MaxDocumentTimeout time.Duration
	DocumentTimeout    time.Duration

	// Guards (0 means unbounded).
	MaxNumPages int
	MaxFileSize int64

	// Result lifecycle.
	SingleUseResults   bool
	ResultRemovalDelay time.Duration

	// Scratch directory; empty means "create and own a private temp dir".
	ScratchPath string

	// Engine policy.
	AllowExternalPlugins bool
	EnableRemoteServices bool

	// CORS allow-lists.
	CORSOrigins []string
	CORSMethods []string
	CORSHeaders []string

	// Remote (workflow-engine) backend.
	RemoteEndpointURL   string
	RemoteTokenPath     string
	RemoteCACertPath    string
	RemoteCallbackURL   string
	RemoteCallbackToken string
	RemoteCallbackCA    string

	// HTTP listen address.
	Addr string
}

// Load builds Settings from the process environment, applying the
// documented defaults.
func Load() Settings {
	return Settings{
		EngKind:              EngineKind(envOrDefault("ENG_KIND", string(EngineLocal))),
		LocNumWorkers:        envInt("ENG_LOC_NUM_WORKERS", 2),
		OptionsCacheSize:     envInt("OPTIONS_CACHE_SIZE", 2),
		MaxSyncWait:          envSeconds("MAX_SYNC_WAIT", 120),
		MaxDocumentTimeout:   envSeconds("MAX_DOCUMENT_TIMEOUT", 7*24*3600),
		DocumentTimeout:      envSeconds("DOCUMENT_TIMEOUT", 0),
		MaxNumPages:          envInt("MAX_NUM_PAGES", 0),
		MaxFileSize:          envInt64("MAX_FILE_SIZE", 0),
		SingleUseResults:     envBool("SINGLE_USE_RESULTS", true),
		ResultRemovalDelay:   envSeconds("RESULT_REMOVAL_DELAY", 300),
		ScratchPath:          os.Getenv("SCRATCH_PATH"),
		AllowExternalPlugins: envBool("ALLOW_EXTERNAL_PLUGINS", false),
		EnableRemoteServices: envBool("ENABLE_REMOTE_SERVICES", false),
		CORSOrigins:          envList("CORS_ORIGINS", []string{"*"}),
		CORSMethods:          envList("CORS_METHODS", []string{"*"}),
		CORSHeaders:          envList("CORS_HEADERS", []string{"*"}),
		RemoteEndpointURL:    os.Getenv("ENG_KFP_ENDPOINT"),
		RemoteTokenPath:      os.Getenv("ENG_KFP_TOKEN_PATH"),
		RemoteCACertPath:     os.Getenv("ENG_KFP_CA_CERT_PATH"),
		RemoteCallbackURL:    os.Getenv("ENG_KFP_SELF_CALLBACK_URL"),
		RemoteCallbackToken:  os.Getenv("ENG_KFP_SELF_CALLBACK_TOKEN"),
		RemoteCallbackCA:     os.Getenv("ENG_KFP_SELF_CALLBACK_CA_CERT_PATH"),
		Addr:                 envOrDefault("ADDR", ":5001"),
	}
}

// ClampDocumentTimeout bounds a per-request document timeout by
// MaxDocumentTimeout, falling back to the configured default when unset.
func (s Settings) ClampDocumentTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return s.DocumentTimeout
	}
	if s.MaxDocumentTimeout > 0 && requested > s.MaxDocumentTimeout {
		return s.MaxDocumentTimeout
	}
	return requested
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envSeconds(key string, fallbackSeconds int) time.Duration {
	n := envInt(key, fallbackSeconds)
	return time.Duration(n) * time.Second
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
