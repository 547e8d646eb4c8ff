// Package config loads service configuration from the environment with an
// optional YAML overlay. Environment variables always win over file values so
// container deployments can override a checked-in config file per instance.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// IndexParams describes how the ANN index on the embedding field is built and
// queried. The zero value is not usable; DefaultIndexParams matches the
// corpus-wide deployment (inner product over IVF_FLAT).
type IndexParams struct {
	MetricType string         `json:"metric_type" yaml:"metric_type"`
	IndexType  string         `json:"index_type" yaml:"index_type"`
	Params     map[string]any `json:"params" yaml:"params"`
}

func DefaultIndexParams() IndexParams {
	return IndexParams{
		MetricType: "IP",
		IndexType:  "IVF_FLAT",
		Params:     map[string]any{"nlist": 128},
	}
}

// Config holds every recognized option. Field-by-field documentation lives in
// the README; defaults are set in Load.
type Config struct {
	ElasticsearchURL string `yaml:"elasticsearch_url"`
	CandidateAPIURL  string `yaml:"candidate_api_url"`

	RabbitMQHost string `yaml:"rabbitmq_host"`
	RabbitMQPort int    `yaml:"rabbitmq_port"`
	RabbitMQUser string `yaml:"rabbitmq_user"`
	RabbitMQPass string `yaml:"rabbitmq_pass"`
	ExchangeName string `yaml:"candidate_exchange_name"`

	CandidateAlias string `yaml:"candidate_alias"`
	BatchSize      int    `yaml:"batch_size"`
	RRFK           int    `yaml:"rrf_k"`

	MilvusHost        string      `yaml:"milvus_host"`
	MilvusPort        int         `yaml:"milvus_port"`
	MilvusIndexParams IndexParams `yaml:"milvus_index_params"`

	SentenceModelName string `yaml:"sentence_model_name"`
	EmbedderURL       string `yaml:"embedder_url"`

	HTTPAddr       string `yaml:"http_addr"`
	SearchSize     int    `yaml:"search_size"`
	SemanticTopK   int    `yaml:"semantic_top_k"`
	EmbedPoolSize  int    `yaml:"embed_pool_size"`
	EmbedCacheSize int    `yaml:"embed_cache_size"`
}

// Load builds the configuration: defaults, then the optional YAML file at
// path (empty path skips the file), then environment variables on top.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{
		RabbitMQHost:      "localhost",
		RabbitMQPort:      5672,
		RabbitMQUser:      "guest",
		RabbitMQPass:      "guest",
		CandidateAlias:    "candidates",
		BatchSize:         500,
		RRFK:              60,
		MilvusHost:        "localhost",
		MilvusPort:        19530,
		MilvusIndexParams: DefaultIndexParams(),
		SentenceModelName: "paraphrase-multilingual-mpnet-base-v2",
		EmbedderURL:       "http://localhost:11434",
		HTTPAddr:          ":8080",
		SearchSize:        500,
		SemanticTopK:      10,
		EmbedPoolSize:     4,
		EmbedCacheSize:    1024,
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	expanded, err := yaml.Marshal(ExpandEnvVarsInData(raw))
	if err != nil {
		return fmt.Errorf("failed to expand config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(expanded, c); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) loadEnv() {
	setString(&c.ElasticsearchURL, "ELASTICSEARCH_URL")
	setString(&c.CandidateAPIURL, "CANDIDATE_API_URL")
	setString(&c.RabbitMQHost, "RABBITMQ_HOST")
	setInt(&c.RabbitMQPort, "RABBITMQ_PORT")
	setString(&c.RabbitMQUser, "RABBITMQ_USER")
	setString(&c.RabbitMQPass, "RABBITMQ_PASS")
	setString(&c.ExchangeName, "CANDIDATE_EXCHANGE_NAME")
	setString(&c.CandidateAlias, "CANDIDATE_ALIAS")
	setInt(&c.BatchSize, "BATCH_SIZE")
	setInt(&c.RRFK, "RRF_K")
	setString(&c.MilvusHost, "MILVUS_HOST")
	setInt(&c.MilvusPort, "MILVUS_PORT")
	setString(&c.SentenceModelName, "SENTENCE_MODEL_NAME")
	setString(&c.EmbedderURL, "EMBEDDER_URL")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setInt(&c.SearchSize, "SEARCH_SIZE")
	setInt(&c.SemanticTopK, "SEMANTIC_TOP_K")
	setInt(&c.EmbedPoolSize, "EMBED_POOL_SIZE")
	setInt(&c.EmbedCacheSize, "EMBED_CACHE_SIZE")

	if v := os.Getenv("MILVUS_INDEX_PARAMS"); v != "" {
		var params IndexParams
		if err := json.Unmarshal([]byte(v), &params); err == nil {
			c.MilvusIndexParams = params
		}
	}
}

// Validate checks required options and value ranges.
func (c *Config) Validate() error {
	if c.ElasticsearchURL == "" {
		return fmt.Errorf("ELASTICSEARCH_URL is required")
	}
	if _, err := url.Parse(c.ElasticsearchURL); err != nil {
		return fmt.Errorf("invalid ELASTICSEARCH_URL: %w", err)
	}
	if c.CandidateAPIURL == "" {
		return fmt.Errorf("CANDIDATE_API_URL is required")
	}
	if c.ExchangeName == "" {
		return fmt.Errorf("CANDIDATE_EXCHANGE_NAME is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.RRFK <= 0 {
		return fmt.Errorf("RRF_K must be positive, got %d", c.RRFK)
	}
	if c.EmbedPoolSize <= 0 {
		return fmt.Errorf("EMBED_POOL_SIZE must be positive, got %d", c.EmbedPoolSize)
	}
	if c.EmbedCacheSize <= 0 {
		return fmt.Errorf("EMBED_CACHE_SIZE must be positive, got %d", c.EmbedCacheSize)
	}
	return nil
}

// AMQPURL renders the bus connection string.
func (c *Config) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		url.QueryEscape(c.RabbitMQUser), url.QueryEscape(c.RabbitMQPass),
		c.RabbitMQHost, c.RabbitMQPort)
}

// MilvusURL renders the ANN store HTTP endpoint.
func (c *Config) MilvusURL() string {
	return fmt.Sprintf("http://%s:%d", c.MilvusHost, c.MilvusPort)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
