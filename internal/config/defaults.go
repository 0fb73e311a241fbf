package config

// DefaultGame is announced when no game is configured.
const DefaultGame = "Selaco"

// DefaultItemsHandling receives items from other worlds and our own.
const DefaultItemsHandling = 2

// DefaultLogLevel is the log level when none is configured.
const DefaultLogLevel = "info"

// DefaultPollIntervalMs bounds network loop latency.
const DefaultPollIntervalMs = 10

// Reconnect defaults.
const (
	DefaultReconnectDelayMs     = 5000
	DefaultMaxReconnectAttempts = 10
)

// Chat limiter defaults.
const (
	DefaultChatRatePerSec = 2.0
	DefaultChatBurst      = 5
)
