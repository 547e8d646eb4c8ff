package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ELASTICSEARCH_URL", "http://localhost:9200")
	t.Setenv("CANDIDATE_API_URL", "http://localhost:8000")
	t.Setenv("CANDIDATE_EXCHANGE_NAME", "candidates_events")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "candidates", cfg.CandidateAlias)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 60, cfg.RRFK)
	assert.Equal(t, 500, cfg.SearchSize)
	assert.Equal(t, 10, cfg.SemanticTopK)
	assert.Equal(t, 4, cfg.EmbedPoolSize)
	assert.Equal(t, 1024, cfg.EmbedCacheSize)
	assert.Equal(t, "IP", cfg.MilvusIndexParams.MetricType)
	assert.Equal(t, "IVF_FLAT", cfg.MilvusIndexParams.IndexType)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("ELASTICSEARCH_URL", "")
	t.Setenv("CANDIDATE_API_URL", "")
	t.Setenv("CANDIDATE_EXCHANGE_NAME", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ELASTICSEARCH_URL")
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("RABBITMQ_HOST", "mq.internal")
	t.Setenv("MILVUS_INDEX_PARAMS", `{"metric_type":"L2","index_type":"HNSW","params":{"M":16}}`)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, "mq.internal", cfg.RabbitMQHost)
	assert.Equal(t, "L2", cfg.MilvusIndexParams.MetricType)
	assert.Equal(t, "HNSW", cfg.MilvusIndexParams.IndexType)
}

func TestLoad_YAMLFileWithEnvExpansion(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TEST_ALIAS", "people")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "candidate_alias: ${TEST_ALIAS:-fallback}\nbatch_size: 250\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "people", cfg.CandidateAlias)
	assert.Equal(t, 250, cfg.BatchSize)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BATCH_SIZE", "50")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 250\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.BatchSize)
}

func TestValidate_Ranges(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("BATCH_SIZE", "0")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")

	t.Setenv("BATCH_SIZE", "500")
	t.Setenv("RRF_K", "-1")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RRF_K")
}

func TestAMQPURL(t *testing.T) {
	cfg := &Config{
		RabbitMQHost: "mq",
		RabbitMQPort: 5672,
		RabbitMQUser: "user",
		RabbitMQPass: "p@ss",
	}
	assert.Equal(t, "amqp://user:p%40ss@mq:5672/", cfg.AMQPURL())
}

func TestMilvusURL(t *testing.T) {
	cfg := &Config{MilvusHost: "milvus", MilvusPort: 19530}
	assert.Equal(t, "http://milvus:19530", cfg.MilvusURL())
}
