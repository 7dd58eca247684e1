package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix for all environment variables. Nested keys use a
// double-underscore separator, e.g. ISSUE_BOT_DATABASE__CONNECTION_STRING.
const envPrefix = "ISSUE_BOT"

// fileConfig mirrors the YAML configuration file. All fields are optional;
// pointers distinguish "absent" from zero values so the file only overrides
// what it sets.
type fileConfig struct {
	AuthToken *string `yaml:"auth_token"`
	Database  struct {
		ConnectionString *string `yaml:"connection_string"`
		MaxConnections   *int    `yaml:"max_connections"`
	} `yaml:"database"`
	Server struct {
		IP          *string `yaml:"ip"`
		Port        *int    `yaml:"port"`
		MetricsPort *int    `yaml:"metrics_port"`
	} `yaml:"server"`
	Model struct {
		ID             *string `yaml:"id"`
		Revision       *string `yaml:"revision"`
		EmbeddingsSize *int    `yaml:"embeddings_size"`
		MaxInputSize   *int    `yaml:"max_input_size"`
	} `yaml:"model"`
	GitHubAPI      forgeFileConfig `yaml:"github_api"`
	HuggingFaceAPI forgeFileConfig `yaml:"huggingface_api"`
	EmbeddingAPI   struct {
		URL       *string `yaml:"url"`
		AuthToken *string `yaml:"auth_token"`
	} `yaml:"embedding_api"`
	SummarizationAPI struct {
		URL               *string  `yaml:"url"`
		AuthToken         *string  `yaml:"auth_token"`
		Model             *string  `yaml:"model"`
		SystemPrompt      *string  `yaml:"system_prompt"`
		SpecialTokensUsed []string `yaml:"special_tokens_used"`
	} `yaml:"summarization_api"`
	Slack struct {
		AuthToken    *string `yaml:"auth_token"`
		Channel      *string `yaml:"channel"`
		ChatWriteURL *string `yaml:"chat_write_url"`
	} `yaml:"slack"`
	MessageConfig struct {
		Pre  *string `yaml:"pre"`
		Post *string `yaml:"post"`
	} `yaml:"message_config"`
	Suggestion struct {
		Limit      *int     `yaml:"limit"`
		ScoreFloor *float64 `yaml:"score_floor"`
	} `yaml:"suggestion"`
	Log struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
	} `yaml:"log"`
}

type forgeFileConfig struct {
	AuthToken       *string `yaml:"auth_token"`
	WebhookSecret   *string `yaml:"webhook_secret"`
	BotLogin        *string `yaml:"bot_login"`
	CommentsEnabled *bool   `yaml:"comments_enabled"`
}

// envOverrides mirrors the environment variable surface. Processed with the
// ISSUE_BOT prefix; explicit tags keep the double-underscore nesting.
type envOverrides struct {
	AuthToken                        *string  `envconfig:"AUTH_TOKEN"`
	DatabaseConnectionString         *string  `envconfig:"DATABASE__CONNECTION_STRING"`
	DatabaseMaxConnections           *int     `envconfig:"DATABASE__MAX_CONNECTIONS"`
	ServerIP                         *string  `envconfig:"SERVER__IP"`
	ServerPort                       *int     `envconfig:"SERVER__PORT"`
	ServerMetricsPort                *int     `envconfig:"SERVER__METRICS_PORT"`
	ModelID                          *string  `envconfig:"MODEL__ID"`
	ModelRevision                    *string  `envconfig:"MODEL__REVISION"`
	ModelEmbeddingsSize              *int     `envconfig:"MODEL__EMBEDDINGS_SIZE"`
	ModelMaxInputSize                *int     `envconfig:"MODEL__MAX_INPUT_SIZE"`
	GitHubAuthToken                  *string  `envconfig:"GITHUB_API__AUTH_TOKEN"`
	GitHubWebhookSecret              *string  `envconfig:"GITHUB_API__WEBHOOK_SECRET"`
	GitHubBotLogin                   *string  `envconfig:"GITHUB_API__BOT_LOGIN"`
	GitHubCommentsEnabled            *bool    `envconfig:"GITHUB_API__COMMENTS_ENABLED"`
	HuggingFaceAuthToken             *string  `envconfig:"HUGGINGFACE_API__AUTH_TOKEN"`
	HuggingFaceWebhookSecret         *string  `envconfig:"HUGGINGFACE_API__WEBHOOK_SECRET"`
	HuggingFaceBotLogin              *string  `envconfig:"HUGGINGFACE_API__BOT_LOGIN"`
	HuggingFaceCommentsEnabled       *bool    `envconfig:"HUGGINGFACE_API__COMMENTS_ENABLED"`
	EmbeddingAPIURL                  *string  `envconfig:"EMBEDDING_API__URL"`
	EmbeddingAPIAuthToken            *string  `envconfig:"EMBEDDING_API__AUTH_TOKEN"`
	SummarizationAPIURL              *string  `envconfig:"SUMMARIZATION_API__URL"`
	SummarizationAPIAuthToken        *string  `envconfig:"SUMMARIZATION_API__AUTH_TOKEN"`
	SummarizationAPIModel            *string  `envconfig:"SUMMARIZATION_API__MODEL"`
	SummarizationAPISystemPrompt     *string  `envconfig:"SUMMARIZATION_API__SYSTEM_PROMPT"`
	SummarizationAPISpecialTokens    []string `envconfig:"SUMMARIZATION_API__SPECIAL_TOKENS_USED"`
	SlackAuthToken                   *string  `envconfig:"SLACK__AUTH_TOKEN"`
	SlackChannel                     *string  `envconfig:"SLACK__CHANNEL"`
	SlackChatWriteURL                *string  `envconfig:"SLACK__CHAT_WRITE_URL"`
	MessagePre                       *string  `envconfig:"MESSAGE_CONFIG__PRE"`
	MessagePost                      *string  `envconfig:"MESSAGE_CONFIG__POST"`
	SuggestionLimit                  *int     `envconfig:"SUGGESTION__LIMIT"`
	SuggestionScoreFloor             *float64 `envconfig:"SUGGESTION__SCORE_FLOOR"`
	LogLevel                         *string  `envconfig:"LOG__LEVEL"`
	LogFormat                        *string  `envconfig:"LOG__FORMAT"`
}

// Load builds the AppConfig from defaults, the optional YAML file at path,
// and environment variable overrides, in that order of precedence.
func Load(path string) (AppConfig, error) {
	var file fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Config file is optional; env can carry everything.
		case err != nil:
			return AppConfig{}, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		default:
			if err := yaml.Unmarshal(data, &file); err != nil {
				return AppConfig{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
			}
		}
	}

	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return AppConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return merge(file, env), nil
}

func merge(file fileConfig, env envOverrides) AppConfig {
	c := NewAppConfig()

	c.authToken = pick(env.AuthToken, file.AuthToken, "")
	c.database = NewDatabaseConfig(
		pick(env.DatabaseConnectionString, file.Database.ConnectionString, ""),
		pick(env.DatabaseMaxConnections, file.Database.MaxConnections, DefaultMaxConnections),
	)
	c.server = NewServerConfig(
		pick(env.ServerIP, file.Server.IP, DefaultIP),
		pick(env.ServerPort, file.Server.Port, DefaultPort),
		pick(env.ServerMetricsPort, file.Server.MetricsPort, DefaultMetricsPort),
	)
	c.model = NewModelConfig(
		pick(env.ModelID, file.Model.ID, ""),
		pick(env.ModelRevision, file.Model.Revision, ""),
		pick(env.ModelEmbeddingsSize, file.Model.EmbeddingsSize, DefaultEmbeddingsSize),
		pick(env.ModelMaxInputSize, file.Model.MaxInputSize, DefaultMaxInputSize),
	)
	c.github = NewForgeConfig(
		pick(env.GitHubAuthToken, file.GitHubAPI.AuthToken, ""),
		pick(env.GitHubWebhookSecret, file.GitHubAPI.WebhookSecret, ""),
		pick(env.GitHubBotLogin, file.GitHubAPI.BotLogin, ""),
		pick(env.GitHubCommentsEnabled, file.GitHubAPI.CommentsEnabled, false),
	)
	c.huggingface = NewForgeConfig(
		pick(env.HuggingFaceAuthToken, file.HuggingFaceAPI.AuthToken, ""),
		pick(env.HuggingFaceWebhookSecret, file.HuggingFaceAPI.WebhookSecret, ""),
		pick(env.HuggingFaceBotLogin, file.HuggingFaceAPI.BotLogin, ""),
		pick(env.HuggingFaceCommentsEnabled, file.HuggingFaceAPI.CommentsEnabled, false),
	)
	c.embeddingAPI = NewEmbeddingAPIConfig(
		pick(env.EmbeddingAPIURL, file.EmbeddingAPI.URL, ""),
		pick(env.EmbeddingAPIAuthToken, file.EmbeddingAPI.AuthToken, ""),
	)
	specialTokens := file.SummarizationAPI.SpecialTokensUsed
	if len(env.SummarizationAPISpecialTokens) > 0 {
		specialTokens = env.SummarizationAPISpecialTokens
	}
	c.summarization = NewSummarizationAPIConfig(
		pick(env.SummarizationAPIURL, file.SummarizationAPI.URL, ""),
		pick(env.SummarizationAPIAuthToken, file.SummarizationAPI.AuthToken, ""),
		pick(env.SummarizationAPIModel, file.SummarizationAPI.Model, ""),
		pick(env.SummarizationAPISystemPrompt, file.SummarizationAPI.SystemPrompt, ""),
		specialTokens,
	)
	c.slack = NewSlackConfig(
		pick(env.SlackAuthToken, file.Slack.AuthToken, ""),
		pick(env.SlackChannel, file.Slack.Channel, ""),
		pick(env.SlackChatWriteURL, file.Slack.ChatWriteURL, ""),
	)
	c.message = NewMessageConfig(
		pick(env.MessagePre, file.MessageConfig.Pre, ""),
		pick(env.MessagePost, file.MessageConfig.Post, ""),
	)
	c.suggestion = NewSuggestionConfig(
		pick(env.SuggestionLimit, file.Suggestion.Limit, DefaultSuggestionLimit),
		pick(env.SuggestionScoreFloor, file.Suggestion.ScoreFloor, DefaultSuggestionFloor),
	)
	c.logLevel = pick(env.LogLevel, file.Log.Level, DefaultLogLevel)
	c.logFormat = LogFormat(pick(env.LogFormat, file.Log.Format, string(LogFormatPretty)))

	return c
}

// pick returns the first non-nil value, falling back to def.
func pick[T any](env, file *T, def T) T {
	if env != nil {
		return *env
	}
	if file != nil {
		return *file
	}
	return def
}
