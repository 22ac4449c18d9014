package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Generation GenerationConfig `mapstructure:"generation"`
	Queue      QueueConfig      `mapstructure:"queue"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	SQLitePath      string `mapstructure:"sqlite_path"` // driver=sqlite 时的文件路径
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
// 用于嵌入缓存的 L2 层和 asynq 任务队列。
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// StorageConfig 文件与索引存储配置
type StorageConfig struct {
	UploadDir   string `mapstructure:"upload_dir"`    // 上传文件原件目录
	IndexDir    string `mapstructure:"index_dir"`     // index.bin / documents.json 所在目录
	MaxFileSize int64  `mapstructure:"max_file_size"` // 单文件上限（字节）
}

// EmbeddingConfig 嵌入服务配置
type EmbeddingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Provider       string `mapstructure:"provider"` // openai, custom
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	Dimension      int    `mapstructure:"dimension"`
	BatchSize      int    `mapstructure:"batch_size"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	CacheEnabled   bool   `mapstructure:"cache_enabled"`
	CacheTTLHours  int    `mapstructure:"cache_ttl_hours"`
}

// GenerationConfig 回答生成配置
type GenerationConfig struct {
	// Restricted 受限模式：禁用本地模型兜底，远程失败后直接返回预热提示
	Restricted     bool   `mapstructure:"restricted"`
	MaxNewTokens   int    `mapstructure:"max_new_tokens"`
	Persona        string `mapstructure:"persona"`
	RemoteAPIURL   string `mapstructure:"remote_api_url"`
	RemoteAPIToken string `mapstructure:"remote_api_token"`
	RemoteTimeout  int    `mapstructure:"remote_timeout"` // 秒
	OllamaBaseURL  string `mapstructure:"ollama_base_url"`
	OllamaModel    string `mapstructure:"ollama_model"`
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	// Mode: asynq(Redis 队列异步处理), inline(上传请求内同步处理)
	Mode        string `mapstructure:"mode"`
	Concurrency int    `mapstructure:"concurrency"`
	MaxRetry    int    `mapstructure:"max_retry"`
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
// 配置文件缺失时使用默认值加环境变量，不视为错误。
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP") // 环境变量前缀：APP_
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_DATABASE_HOST

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// setDefaults 默认值保证零配置可启动（sqlite + inline 队列 + 嵌入禁用）
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/ragchat.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("storage.upload_dir", "./data/uploads")
	v.SetDefault("storage.index_dir", "./data/index")
	v.SetDefault("storage.max_file_size", 20<<20)

	v.SetDefault("embedding.enabled", true)
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.timeout_seconds", 30)
	v.SetDefault("embedding.cache_enabled", true)
	v.SetDefault("embedding.cache_ttl_hours", 168)

	v.SetDefault("generation.restricted", false)
	v.SetDefault("generation.max_new_tokens", 200)
	v.SetDefault("generation.remote_timeout", 25)
	v.SetDefault("generation.ollama_base_url", "http://localhost:11434")
	v.SetDefault("generation.ollama_model", "llama3")

	v.SetDefault("queue.mode", "inline")
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.max_retry", 3)
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisAddr Redis 地址
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
