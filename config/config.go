// Package config holds the gateway's process-wide configuration,
// populated from CLI flags with environment-variable fallback. The
// package-level-var plus Init()/getter shape follows the teacher's
// environment package; env vars are layered in first the way the
// teacher's flags also accept a default, here sourced from the process
// environment so container deployments need no flags at all (spec §6).
package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// TLSMode selects how the startup-phase SSLRequest is answered.
type TLSMode string

const (
	TLSDisable TLSMode = "disable"
	TLSAllow   TLSMode = "allow"
	TLSRequire TLSMode = "require"
)

var (
	listenHost = "0.0.0.0"
	listenPort = 5432

	backendHost      = "localhost"
	backendPort      = 1972
	backendNamespace = "USER"
	backendUsername  = "_SYSTEM"
	backendPassword  = ""

	tlsMode = string(TLSAllow)
	debug   = false

	translationCacheSize = 4096
	translationCacheTTLSeconds = 300

	backendPoolSize = 16

	logLevel = int(logrus.InfoLevel)

	// authMethod overrides auto-selection of the client-facing auth
	// method (spec §4.10: Trust, CleartextPassword, SCRAM-SHA-256).
	// Empty means auto: Trust if backendPassword is unset, SCRAM-SHA-256
	// otherwise. The gateway has no separate client credential store —
	// it authenticates incoming clients against the same configured
	// backend password (see pgserver/scram.go).
	authMethod = ""
)

// envOr returns the environment variable's value, or def if unset.
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Init parses CLI flags, falling back to the IRIS_PGWIRE_* environment
// variables enumerated in spec §6, then flag defaults. Must be called
// once, before any Get* accessor, typically from main().
func Init() {
	listenHost = envOr("IRIS_PGWIRE_LISTEN_HOST", listenHost)
	listenPort = envOrInt("IRIS_PGWIRE_LISTEN_PORT", listenPort)
	backendHost = envOr("IRIS_PGWIRE_BACKEND_HOST", backendHost)
	backendPort = envOrInt("IRIS_PGWIRE_BACKEND_PORT", backendPort)
	backendNamespace = envOr("IRIS_PGWIRE_BACKEND_NAMESPACE", backendNamespace)
	backendUsername = envOr("IRIS_PGWIRE_BACKEND_USERNAME", backendUsername)
	backendPassword = envOr("IRIS_PGWIRE_BACKEND_PASSWORD", backendPassword)
	tlsMode = envOr("IRIS_PGWIRE_TLS_MODE", tlsMode)
	debug = envOrBool("IRIS_PGWIRE_DEBUG", debug)

	flag.StringVar(&listenHost, "listen-host", listenHost, "Host to bind the PostgreSQL wire listener to.")
	flag.IntVar(&listenPort, "listen-port", listenPort, "Port to bind the PostgreSQL wire listener to.")
	flag.StringVar(&backendHost, "backend-host", backendHost, "IRIS backend host.")
	flag.IntVar(&backendPort, "backend-port", backendPort, "IRIS backend port.")
	flag.StringVar(&backendNamespace, "backend-namespace", backendNamespace, "IRIS namespace to connect to.")
	flag.StringVar(&backendUsername, "backend-username", backendUsername, "IRIS connection username.")
	flag.StringVar(&backendPassword, "backend-password", backendPassword, "IRIS connection password.")
	flag.StringVar(&tlsMode, "tls-mode", tlsMode, "TLS negotiation mode: disable, allow, require.")
	flag.BoolVar(&debug, "debug", debug, "Enable debug logging.")
	flag.IntVar(&translationCacheSize, "translation-cache-size", translationCacheSize, "Max entries in the SQL translation LRU cache.")
	flag.IntVar(&translationCacheTTLSeconds, "translation-cache-ttl-seconds", translationCacheTTLSeconds, "TTL in seconds for translation cache entries.")
	flag.IntVar(&backendPoolSize, "backend-pool-size", backendPoolSize, "Max concurrent IRIS backend connections.")
	flag.StringVar(&authMethod, "auth-method", authMethod, "Client auth method: trust, cleartext, scram. Empty auto-selects.")

	flag.Parse()

	if debug {
		logLevel = int(logrus.DebugLevel)
	}
}

func GetListenHost() string { return listenHost }
func GetListenPort() int    { return listenPort }

func GetBackendHost() string      { return backendHost }
func GetBackendPort() int         { return backendPort }
func GetBackendNamespace() string { return backendNamespace }
func GetBackendUsername() string  { return backendUsername }
func GetBackendPassword() string  { return backendPassword }

func GetTLSMode() TLSMode { return TLSMode(tlsMode) }
func GetDebug() bool      { return debug }
func GetLogLevel() int    { return logLevel }

func GetTranslationCacheSize() int       { return translationCacheSize }
func GetTranslationCacheTTLSeconds() int { return translationCacheTTLSeconds }
func GetBackendPoolSize() int            { return backendPoolSize }

// GetAuthMethod returns the configured override ("trust", "cleartext",
// "scram"), or "" if auto-selection should be used.
func GetAuthMethod() string { return authMethod }
