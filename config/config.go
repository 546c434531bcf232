package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port           string        `mapstructure:"port" yaml:"port" json:"port"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	AllowedOrigins []string      `mapstructure:"allowedOrigins" yaml:"allowedOrigins" json:"allowedOrigins"`
}

type DatabaseConfig struct {
	// Driver 取值 mongo 或 memory，memory 仅用于本地演示和测试。
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"`
	URI    string `mapstructure:"uri" yaml:"uri" json:"uri"`
	Name   string `mapstructure:"name" yaml:"name" json:"name"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	Path   string `mapstructure:"path" yaml:"path" json:"path"`
}

type UploadConfig struct {
	// Dir 是图片文件的存放目录，所有请求共享。
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"`
	// PublicPrefix 是对外暴露的静态访问前缀，描述符的 path 字段由它拼接。
	PublicPrefix string `mapstructure:"publicPrefix" yaml:"publicPrefix" json:"publicPrefix"`
	MaxSizeMB    int64  `mapstructure:"maxSizeMB" yaml:"maxSizeMB" json:"maxSizeMB"`
}

type OptimizerConfig struct {
	WorkerCount int `mapstructure:"workerCount" yaml:"workerCount" json:"workerCount"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database" json:"database"`
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger" json:"logger"`
	Upload    UploadConfig    `mapstructure:"upload" yaml:"upload" json:"upload"`
	Optimizer OptimizerConfig `mapstructure:"optimizer" yaml:"optimizer" json:"optimizer"`
}

var C *Config

// LoadConfig 读取 path 目录下的 config.yaml 并写入全局变量 C。
// 配置文件不存在时只使用默认值和环境变量。
func LoadConfig(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	C = cfg
	return nil
}

// Load 与 LoadConfig 相同，但不修改全局状态。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":5003")
	v.SetDefault("server.timeout", 60*time.Second)
	v.SetDefault("server.allowedOrigins", []string{"*"})

	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "thiep-cuoi")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.path", "./logs")

	v.SetDefault("upload.dir", "./uploads")
	v.SetDefault("upload.publicPrefix", "/uploads")
	v.SetDefault("upload.maxSizeMB", 10)

	v.SetDefault("optimizer.workerCount", 0)
}

// Save 把配置序列化为 YAML 写回 path 目录下的 config.yaml。
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(path, "config.yaml"), data, 0644)
}

// MaxUploadBytes 返回单个上传文件的字节上限。
func (c *Config) MaxUploadBytes() int64 {
	if c.Upload.MaxSizeMB <= 0 {
		return 10 << 20
	}
	return c.Upload.MaxSizeMB << 20
}
