package config

import (
	"sync"
	"time"
)

var (
	embeddingOnce   sync.Once
	embeddingConfig *EmbeddingConfig
)

type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func GetEmbeddingConfig() *EmbeddingConfig {
	embeddingOnce.Do(func() {
		loadEnv()

		embeddingConfig = &EmbeddingConfig{
			BaseURL: getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  getEnv("EMBEDDING_API_KEY", ""),
			Model:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Timeout: getEnvAsDuration("EMBEDDING_TIMEOUT", 45*time.Second),
		}
	})
	return embeddingConfig
}
