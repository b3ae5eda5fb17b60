package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	LLM    LLMConfig    `mapstructure:"llm"`
	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
	Log    LogConfig    `mapstructure:"log"`
}

// LLMConfig holds the upstream provider configuration. The model identifier
// is fixed per provider and not configurable.
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
}

// ServerConfig holds the relay server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// ClientConfig holds the terminal client configuration
type ClientConfig struct {
	ServerURL  string `mapstructure:"server_url"`
	ReadBuffer int    `mapstructure:"read_buffer"`
}

// LogConfig holds logging options. File is only used by the terminal client.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Load reads config.yaml from the working directory, or the file named by
// CONFIG_PATH. A missing config.yaml is not an error; defaults and
// environment variables (WANDERCHAT_*, OPENAI_API_KEY, GEMINI_API_KEY) apply.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("wanderchat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.LLM.APIKey == "" {
		config.LLM.APIKey = providerKeyFromEnv(config.LLM.Provider)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("client.server_url", "http://localhost:8080/api/chat")
	v.SetDefault("client.read_buffer", 4096)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "wanderchat.log")
}

func providerKeyFromEnv(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}
