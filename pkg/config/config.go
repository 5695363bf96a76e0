package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config 应用配置
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Storage     StorageConfig     `yaml:"storage"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Queue       QueueConfig       `yaml:"queue"`
	Worker      WorkerConfig      `yaml:"worker"`
	Auth        AuthConfig        `yaml:"auth"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port          int   `yaml:"port"`
	MaxUploadSize int64 `yaml:"max_upload_size"` // 单个文件大小上限（字节）
	MaxBatchFiles int   `yaml:"max_batch_files"` // 单次上传文件数上限
}

// DatabaseConfig PostgreSQL 配置
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig Redis 读缓存配置（可选）
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// StorageConfig 对象存储配置（S3 兼容）
type StorageConfig struct {
	Endpoint             string `yaml:"endpoint"`
	AccessKey            string `yaml:"access_key"`
	SecretKey            string `yaml:"secret_key"`
	Bucket               string `yaml:"bucket"`
	UseSSL               bool   `yaml:"use_ssl"`
	PresignExpirySeconds int    `yaml:"presign_expiry_seconds"` // 签名 URL 有效期
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
}

// TranscriberConfig 转录配置
type TranscriberConfig struct {
	Provider              string  `yaml:"provider"`                // whisper（直连 HTTP）或 openai-sdk
	FetchTimeoutSeconds   int     `yaml:"fetch_timeout_seconds"`   // 对象存储下载超时（快速失败）
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"` // 转录请求超时（大文件可能需要几十秒）
	AnnotationSimulation  bool    `yaml:"annotation_simulation"`   // 演示用的随机标注钩子，默认关闭
	AnnotationRate        float64 `yaml:"annotation_rate"`
}

// QueueConfig 队列配置
type QueueConfig struct {
	Type       string         `yaml:"type"` // memory 或 rabbitmq
	BufferSize int            `yaml:"buffer_size"`
	RabbitMQ   RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig RabbitMQ 配置
type RabbitMQConfig struct {
	URL       string `yaml:"url"`
	QueueName string `yaml:"queue_name"`
	Prefetch  int    `yaml:"prefetch"` // 预取数量，一般等于 Worker 数量
}

// WorkerConfig Worker 池配置
type WorkerConfig struct {
	Count int `yaml:"count"` // 并发转录上限（背压控制）
}

// AuthConfig 认证配置
// 三种方式按优先级取第一个配置了的：
// jwks_url（身份提供方公钥）> jwt_secret（HS256 会话令牌）> static_user（仅限本地开发）
type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret"`
	StaticUser     string `yaml:"static_user"`
	JWKSURL        string `yaml:"jwks_url"`
	JWKSIssuer     string `yaml:"jwks_issuer"`
	JWKSAudience   string `yaml:"jwks_audience"`
	JWKSTTLSeconds int    `yaml:"jwks_ttl_seconds"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %v", err)
	}

	return &config, nil
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" || c.OpenAI.APIKey == "your-openai-api-key-here" {
		return fmt.Errorf("请在配置文件中设置有效的 OpenAI API Key")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("请在配置文件中设置 database.url")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("请在配置文件中设置 storage.bucket")
	}

	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}

	if c.Server.MaxUploadSize <= 0 {
		c.Server.MaxUploadSize = 100 * 1024 * 1024 // 默认 100MB
	}

	if c.Server.MaxBatchFiles <= 0 {
		c.Server.MaxBatchFiles = 10
	}

	if c.Storage.PresignExpirySeconds <= 0 {
		c.Storage.PresignExpirySeconds = 7200
	}

	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = 3600
	}

	if c.Transcriber.Provider == "" {
		c.Transcriber.Provider = "whisper"
	}
	if c.Transcriber.Provider != "whisper" && c.Transcriber.Provider != "openai-sdk" {
		return fmt.Errorf("不支持的转录后端: %s", c.Transcriber.Provider)
	}

	if c.Transcriber.FetchTimeoutSeconds <= 0 {
		c.Transcriber.FetchTimeoutSeconds = 30
	}

	if c.Transcriber.RequestTimeoutSeconds <= 0 {
		c.Transcriber.RequestTimeoutSeconds = 300
	}

	if c.Transcriber.AnnotationRate <= 0 {
		c.Transcriber.AnnotationRate = 0.083 // 约 1/12
	}

	if c.Queue.Type == "" {
		c.Queue.Type = "memory"
	}

	if c.Queue.BufferSize <= 0 {
		c.Queue.BufferSize = 100
	}

	if c.Queue.RabbitMQ.Prefetch <= 0 {
		c.Queue.RabbitMQ.Prefetch = 3
	}

	if c.Worker.Count <= 0 {
		c.Worker.Count = 3
	}

	if c.Auth.JWKSTTLSeconds <= 0 {
		c.Auth.JWKSTTLSeconds = 3600
	}

	return nil
}
