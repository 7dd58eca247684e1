// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultIP              = "0.0.0.0"
	DefaultPort            = 8080
	DefaultMetricsPort     = 9090
	DefaultMaxConnections  = 10
	DefaultLogLevel        = "INFO"
	DefaultEmbeddingsSize  = 2560
	DefaultMaxInputSize    = 8192
	DefaultSuggestionLimit = 3
	DefaultSuggestionFloor = 0.7
	DefaultWebhookDeadline = 5 * time.Second
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// ErrInvalidConfig indicates the configuration is incomplete or inconsistent.
// Startup failures carrying this error exit with code 2.
var ErrInvalidConfig = errors.New("invalid configuration")

// DatabaseConfig configures the store connection pool.
type DatabaseConfig struct {
	connectionString string
	maxConnections   int
}

// NewDatabaseConfig creates a DatabaseConfig.
func NewDatabaseConfig(connectionString string, maxConnections int) DatabaseConfig {
	if maxConnections <= 0 {
		maxConnections = DefaultMaxConnections
	}
	return DatabaseConfig{connectionString: connectionString, maxConnections: maxConnections}
}

// ConnectionString returns the database connection URL.
func (d DatabaseConfig) ConnectionString() string { return d.connectionString }

// MaxConnections returns the connection pool cap.
func (d DatabaseConfig) MaxConnections() int { return d.maxConnections }

// ServerConfig configures the listen addresses.
type ServerConfig struct {
	ip          string
	port        int
	metricsPort int
}

// NewServerConfig creates a ServerConfig.
func NewServerConfig(ip string, port, metricsPort int) ServerConfig {
	if ip == "" {
		ip = DefaultIP
	}
	if port == 0 {
		port = DefaultPort
	}
	if metricsPort == 0 {
		metricsPort = DefaultMetricsPort
	}
	return ServerConfig{ip: ip, port: port, metricsPort: metricsPort}
}

// IP returns the bind address.
func (s ServerConfig) IP() string { return s.ip }

// Port returns the API port.
func (s ServerConfig) Port() int { return s.port }

// MetricsPort returns the Prometheus exposition port.
func (s ServerConfig) MetricsPort() int { return s.metricsPort }

// Addr returns the ip:port address of the API server.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.ip, s.port) }

// MetricsAddr returns the ip:port address of the metrics server.
func (s ServerConfig) MetricsAddr() string { return fmt.Sprintf("%s:%d", s.ip, s.metricsPort) }

// ModelConfig identifies the embedding model and its input bounds.
type ModelConfig struct {
	id             string
	revision       string
	embeddingsSize int
	maxInputSize   int
}

// NewModelConfig creates a ModelConfig.
func NewModelConfig(id, revision string, embeddingsSize, maxInputSize int) ModelConfig {
	if embeddingsSize <= 0 {
		embeddingsSize = DefaultEmbeddingsSize
	}
	if maxInputSize <= 0 {
		maxInputSize = DefaultMaxInputSize
	}
	return ModelConfig{id: id, revision: revision, embeddingsSize: embeddingsSize, maxInputSize: maxInputSize}
}

// ID returns the model identifier.
func (m ModelConfig) ID() string { return m.id }

// Revision returns the model revision.
func (m ModelConfig) Revision() string { return m.revision }

// EmbeddingsSize returns the vector dimensionality. The store asserts its
// vector column matches this at startup.
func (m ModelConfig) EmbeddingsSize() int { return m.embeddingsSize }

// MaxInputSize returns the maximum embedding input length in characters.
// Longer inputs are truncated, never rejected.
func (m ModelConfig) MaxInputSize() int { return m.maxInputSize }

// ForgeConfig configures credentials for one upstream forge.
type ForgeConfig struct {
	authToken       string
	webhookSecret   string
	botLogin        string
	commentsEnabled bool
}

// NewForgeConfig creates a ForgeConfig.
func NewForgeConfig(authToken, webhookSecret, botLogin string, commentsEnabled bool) ForgeConfig {
	return ForgeConfig{
		authToken:       authToken,
		webhookSecret:   webhookSecret,
		botLogin:        botLogin,
		commentsEnabled: commentsEnabled,
	}
}

// AuthToken returns the bearer token for outbound API calls.
func (f ForgeConfig) AuthToken() string { return f.authToken }

// WebhookSecret returns the shared secret for inbound webhook verification.
func (f ForgeConfig) WebhookSecret() string { return f.webhookSecret }

// BotLogin returns the bot account's login on this forge. Comments authored
// by this login are never indexed.
func (f ForgeConfig) BotLogin() string { return f.botLogin }

// CommentsEnabled reports whether suggestions are posted as forge comments.
// When false, suggestions are redirected to the Slack sink.
func (f ForgeConfig) CommentsEnabled() bool { return f.commentsEnabled }

// EmbeddingAPIConfig configures the remote embedding service.
type EmbeddingAPIConfig struct {
	url       string
	authToken string
}

// NewEmbeddingAPIConfig creates an EmbeddingAPIConfig.
func NewEmbeddingAPIConfig(url, authToken string) EmbeddingAPIConfig {
	return EmbeddingAPIConfig{url: url, authToken: authToken}
}

// URL returns the embedding endpoint URL.
func (e EmbeddingAPIConfig) URL() string { return e.url }

// AuthToken returns the bearer token.
func (e EmbeddingAPIConfig) AuthToken() string { return e.authToken }

// SummarizationAPIConfig configures the chat-completion service used for
// thread summaries.
type SummarizationAPIConfig struct {
	url           string
	authToken     string
	model         string
	systemPrompt  string
	specialTokens []string
}

// NewSummarizationAPIConfig creates a SummarizationAPIConfig.
func NewSummarizationAPIConfig(url, authToken, model, systemPrompt string, specialTokens []string) SummarizationAPIConfig {
	tokens := make([]string, len(specialTokens))
	copy(tokens, specialTokens)
	return SummarizationAPIConfig{
		url:           url,
		authToken:     authToken,
		model:         model,
		systemPrompt:  systemPrompt,
		specialTokens: tokens,
	}
}

// URL returns the base URL of the chat-completion service.
func (s SummarizationAPIConfig) URL() string { return s.url }

// AuthToken returns the bearer token.
func (s SummarizationAPIConfig) AuthToken() string { return s.authToken }

// Model returns the chat model identifier.
func (s SummarizationAPIConfig) Model() string { return s.model }

// SystemPrompt returns the fixed system prompt.
func (s SummarizationAPIConfig) SystemPrompt() string { return s.systemPrompt }

// SpecialTokens returns the model's special tokens, stripped from responses.
func (s SummarizationAPIConfig) SpecialTokens() []string {
	tokens := make([]string, len(s.specialTokens))
	copy(tokens, s.specialTokens)
	return tokens
}

// IsConfigured reports whether summarization is available.
func (s SummarizationAPIConfig) IsConfigured() bool { return s.url != "" && s.model != "" }

// SlackConfig configures the fallback notification sink.
type SlackConfig struct {
	authToken    string
	channel      string
	chatWriteURL string
}

// NewSlackConfig creates a SlackConfig.
func NewSlackConfig(authToken, channel, chatWriteURL string) SlackConfig {
	return SlackConfig{authToken: authToken, channel: channel, chatWriteURL: chatWriteURL}
}

// AuthToken returns the Slack bearer token.
func (s SlackConfig) AuthToken() string { return s.authToken }

// Channel returns the target channel.
func (s SlackConfig) Channel() string { return s.channel }

// ChatWriteURL returns the chat.postMessage endpoint URL.
func (s SlackConfig) ChatWriteURL() string { return s.chatWriteURL }

// IsConfigured reports whether the Slack sink is usable. The endpoint URL is
// optional; the client falls back to the public chat.postMessage API.
func (s SlackConfig) IsConfigured() bool { return s.authToken != "" && s.channel != "" }

// MessageConfig holds the two halves of the suggestion reply template. The
// rendered reply is pre, then one bullet per suggestion, then post.
type MessageConfig struct {
	pre  string
	post string
}

// NewMessageConfig creates a MessageConfig.
func NewMessageConfig(pre, post string) MessageConfig {
	return MessageConfig{pre: pre, post: post}
}

// Pre returns the text placed before the suggestion list.
func (m MessageConfig) Pre() string { return m.pre }

// Post returns the text placed after the suggestion list.
func (m MessageConfig) Post() string { return m.post }

// SuggestionConfig bounds the suggestion path.
type SuggestionConfig struct {
	limit      int
	scoreFloor float64
}

// NewSuggestionConfig creates a SuggestionConfig.
func NewSuggestionConfig(limit int, scoreFloor float64) SuggestionConfig {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	if scoreFloor <= 0 {
		scoreFloor = DefaultSuggestionFloor
	}
	return SuggestionConfig{limit: limit, scoreFloor: scoreFloor}
}

// Limit returns the maximum number of suggestions per reply.
func (s SuggestionConfig) Limit() int { return s.limit }

// ScoreFloor returns the minimum cosine similarity for a suggestion.
func (s SuggestionConfig) ScoreFloor() float64 { return s.scoreFloor }

// AppConfig holds the full application configuration. It is immutable once
// built; tests construct variants through the functional options.
type AppConfig struct {
	authToken     string
	database      DatabaseConfig
	server        ServerConfig
	model         ModelConfig
	github        ForgeConfig
	huggingface   ForgeConfig
	embeddingAPI  EmbeddingAPIConfig
	summarization SummarizationAPIConfig
	slack         SlackConfig
	message       MessageConfig
	suggestion    SuggestionConfig
	logLevel      string
	logFormat     LogFormat
}

// NewAppConfig creates an AppConfig with defaults.
func NewAppConfig() AppConfig {
	return AppConfig{
		database:   NewDatabaseConfig("", DefaultMaxConnections),
		server:     NewServerConfig(DefaultIP, DefaultPort, DefaultMetricsPort),
		model:      NewModelConfig("", "", DefaultEmbeddingsSize, DefaultMaxInputSize),
		suggestion: NewSuggestionConfig(DefaultSuggestionLimit, DefaultSuggestionFloor),
		logLevel:   DefaultLogLevel,
		logFormat:  LogFormatPretty,
	}
}

// AuthToken returns the bearer token required on management endpoints.
func (c AppConfig) AuthToken() string { return c.authToken }

// Database returns the store configuration.
func (c AppConfig) Database() DatabaseConfig { return c.database }

// Server returns the listen configuration.
func (c AppConfig) Server() ServerConfig { return c.server }

// Model returns the embedding model configuration.
func (c AppConfig) Model() ModelConfig { return c.model }

// GitHub returns the GitHub forge configuration.
func (c AppConfig) GitHub() ForgeConfig { return c.github }

// HuggingFace returns the Hugging Face forge configuration.
func (c AppConfig) HuggingFace() ForgeConfig { return c.huggingface }

// EmbeddingAPI returns the embedding service configuration.
func (c AppConfig) EmbeddingAPI() EmbeddingAPIConfig { return c.embeddingAPI }

// SummarizationAPI returns the summarization service configuration.
func (c AppConfig) SummarizationAPI() SummarizationAPIConfig { return c.summarization }

// Slack returns the Slack sink configuration.
func (c AppConfig) Slack() SlackConfig { return c.slack }

// Message returns the reply template configuration.
func (c AppConfig) Message() MessageConfig { return c.message }

// Suggestion returns the suggestion path configuration.
func (c AppConfig) Suggestion() SuggestionConfig { return c.suggestion }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// Validate checks that required configuration is present, reporting every
// missing key at once so operators can fix them in a single pass.
func (c AppConfig) Validate() error {
	var missing []string
	if c.authToken == "" {
		missing = append(missing, "auth_token")
	}
	if c.database.connectionString == "" {
		missing = append(missing, "database.connection_string")
	}
	if c.embeddingAPI.url == "" {
		missing = append(missing, "embedding_api.url")
	}
	if c.github.webhookSecret == "" {
		missing = append(missing, "github_api.webhook_secret")
	}
	if c.huggingface.webhookSecret == "" {
		missing = append(missing, "huggingface_api.webhook_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithAuthToken sets the management bearer token.
func WithAuthToken(token string) AppConfigOption {
	return func(c *AppConfig) { c.authToken = token }
}

// WithDatabase sets the database configuration.
func WithDatabase(d DatabaseConfig) AppConfigOption {
	return func(c *AppConfig) { c.database = d }
}

// WithServer sets the server configuration.
func WithServer(s ServerConfig) AppConfigOption {
	return func(c *AppConfig) { c.server = s }
}

// WithModel sets the model configuration.
func WithModel(m ModelConfig) AppConfigOption {
	return func(c *AppConfig) { c.model = m }
}

// WithGitHub sets the GitHub forge configuration.
func WithGitHub(f ForgeConfig) AppConfigOption {
	return func(c *AppConfig) { c.github = f }
}

// WithHuggingFace sets the Hugging Face forge configuration.
func WithHuggingFace(f ForgeConfig) AppConfigOption {
	return func(c *AppConfig) { c.huggingface = f }
}

// WithEmbeddingAPI sets the embedding service configuration.
func WithEmbeddingAPI(e EmbeddingAPIConfig) AppConfigOption {
	return func(c *AppConfig) { c.embeddingAPI = e }
}

// WithSummarizationAPI sets the summarization service configuration.
func WithSummarizationAPI(s SummarizationAPIConfig) AppConfigOption {
	return func(c *AppConfig) { c.summarization = s }
}

// WithSlack sets the Slack sink configuration.
func WithSlack(s SlackConfig) AppConfigOption {
	return func(c *AppConfig) { c.slack = s }
}

// WithMessage sets the reply template configuration.
func WithMessage(m MessageConfig) AppConfigOption {
	return func(c *AppConfig) { c.message = m }
}

// WithSuggestion sets the suggestion path configuration.
func WithSuggestion(s SuggestionConfig) AppConfigOption {
	return func(c *AppConfig) { c.suggestion = s }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) {
		if level != "" {
			c.logLevel = level
		}
	}
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) {
		if format != "" {
			c.logFormat = format
		}
	}
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a copy of the config with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes describing the configuration. Secrets
// are masked or reduced to booleans.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("addr", c.server.Addr()),
		slog.String("metrics_addr", c.server.MetricsAddr()),
		slog.String("db_url", maskedDBURL(c.database.connectionString)),
		slog.Int("db_max_connections", c.database.maxConnections),
		slog.String("embedding_url", c.embeddingAPI.url),
		slog.String("model_id", c.model.id),
		slog.Int("embeddings_size", c.model.embeddingsSize),
		slog.Int("max_input_size", c.model.maxInputSize),
		slog.Bool("github_comments_enabled", c.github.commentsEnabled),
		slog.Bool("huggingface_comments_enabled", c.huggingface.commentsEnabled),
		slog.Bool("slack_configured", c.slack.IsConfigured()),
		slog.Bool("summarization_configured", c.summarization.IsConfigured()),
		slog.Int("suggestion_limit", c.suggestion.limit),
		slog.Float64("suggestion_score_floor", c.suggestion.scoreFloor),
	}
}

func maskedDBURL(url string) string {
	if url == "" {
		return "(not configured)"
	}
	if strings.HasPrefix(url, "sqlite:") {
		return url
	}
	return "postgres://***@***"
}
