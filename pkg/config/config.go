package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Embedder struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"embedder"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Captions struct {
		WatchURL    string        `yaml:"watch_url"`
		MaxAttempts int           `yaml:"max_attempts"`
		Interval    time.Duration `yaml:"interval"`
		RateLimit   float64       `yaml:"rate_limit"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"captions"`

	Processor struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"processor"`

	Cache struct {
		RedisURL   string        `yaml:"redis_url"`
		TTL        time.Duration `yaml:"ttl"`
		MaxEntries int           `yaml:"max_entries"`
	} `yaml:"cache"`

	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		SearchLimit    int      `yaml:"search_limit"`
		HistoryTurns   int      `yaml:"history_turns"`
	} `yaml:"server"`

	Client struct {
		BackendURL          string        `yaml:"backend_url"`
		SendVideoURL        bool          `yaml:"send_video_url"`
		MinTranscriptLength int           `yaml:"min_transcript_length"`
		Timeout             time.Duration `yaml:"timeout"`
	} `yaml:"client"`

	UI struct {
		Streaming bool `yaml:"streaming"`
	} `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/tubeqa/config.yaml"),
			"/etc/tubeqa/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

// newConfig presets the fields whose zero value is a valid setting, so a
// file can still set them to false or 0.
func newConfig() *Config {
	config := &Config{}
	config.Client.SendVideoURL = true
	config.Client.MinTranscriptLength = 10
	return config
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 512
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.4
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedder.Model == "" {
		config.Embedder.Model = "nomic-embed-text:latest"
	}
	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = config.LLM.BaseURL
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "transcript_chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Captions.WatchURL == "" {
		config.Captions.WatchURL = "https://www.youtube.com/watch"
	}
	if config.Captions.MaxAttempts == 0 {
		config.Captions.MaxAttempts = 20
	}
	if config.Captions.Interval == 0 {
		config.Captions.Interval = 400 * time.Millisecond
	}
	if config.Captions.RateLimit == 0 {
		config.Captions.RateLimit = 2.0
	}
	if config.Captions.Timeout == 0 {
		config.Captions.Timeout = 15 * time.Second
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}

	if config.Cache.TTL == 0 {
		config.Cache.TTL = time.Hour
	}
	if config.Cache.MaxEntries == 0 {
		config.Cache.MaxEntries = 256
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{"*"}
	}
	if config.Server.SearchLimit == 0 {
		config.Server.SearchLimit = 4
	}
	if config.Server.HistoryTurns == 0 {
		config.Server.HistoryTurns = 10
	}

	if config.Client.BackendURL == "" {
		config.Client.BackendURL = "http://localhost:8080/api/ask"
	}
	if config.Client.Timeout == 0 {
		config.Client.Timeout = 2 * time.Minute
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
		config.Embedder.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.Cache.RedisURL = redisURL
	}
	if backend := os.Getenv("BACKEND_API_URL"); backend != "" {
		config.Client.BackendURL = backend
	}
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			config.Server.Addr = ":" + port
		}
	}
}
