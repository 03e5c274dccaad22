package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Minio  MinioConfig  `yaml:"minio"`
	Mineru MineruConfig `yaml:"mineru"`
	Auth   AuthConfig   `yaml:"auth"`
	Users  []User       `yaml:"users"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Upload UploadConfig `yaml:"upload"`
}

type ServerConfig struct {
	Port      int `yaml:"port"`
	RateLimit int `yaml:"rate_limit"` // requests per minute per client
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

type MineruConfig struct {
	APIURL       string `yaml:"api_url"`
	APIToken     string `yaml:"api_token"`
	ModelVersion string `yaml:"model_version"`
	CallbackURL  string `yaml:"callback_url"`
	Seed         string `yaml:"seed"`
	UID          string `yaml:"uid"` // account id mixed into callback checksums
	// PollInterval and PollAttempts bound the wait for a parse task when no
	// callback is configured.
	PollInterval time.Duration `yaml:"poll_interval"`
	PollAttempts int           `yaml:"poll_attempts"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

// User is a configured account. Password is either plain text or a bcrypt
// hash ("$2a$...").
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the database. Driver is "sqlite" or "postgres".
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type UploadConfig struct {
	MaxSizeMB        int `yaml:"max_size_mb"`
	MaxPages         int `yaml:"max_pages"` // 0 means unlimited
	BatchConcurrency int `yaml:"batch_concurrency"`
}

// MaxSizeBytes is the upload limit in bytes.
func (u UploadConfig) MaxSizeBytes() int64 {
	return int64(u.MaxSizeMB) << 20
}

var GlobalConfig *Config

// Load reads the YAML file at path, fills defaults and overlays secrets from
// the environment. A .env file next to the process is loaded first if present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Missing .env is fine
	_ = godotenv.Load()
	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.Store.Driver != "sqlite" && cfg.Store.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overlay := map[string]*string{
		"JWT_SECRET":       &c.Auth.JWTSecret,
		"MINIO_ACCESS_KEY": &c.Minio.AccessKey,
		"MINIO_SECRET_KEY": &c.Minio.SecretKey,
		"MINERU_API_TOKEN": &c.Mineru.APIToken,
		"STORE_DSN":        &c.Store.DSN,
	}
	for key, field := range overlay {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*field = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 100
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Mineru.ModelVersion == "" {
		c.Mineru.ModelVersion = "vlm"
	}
	if c.Mineru.PollInterval == 0 {
		c.Mineru.PollInterval = 5 * time.Second
	}
	if c.Mineru.PollAttempts == 0 {
		c.Mineru.PollAttempts = 120
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.DSN == "" && c.Store.Driver == "sqlite" {
		c.Store.DSN = "ledger.db"
	}
	if c.Upload.MaxSizeMB == 0 {
		c.Upload.MaxSizeMB = 50
	}
	if c.Upload.BatchConcurrency == 0 {
		c.Upload.BatchConcurrency = 4
	}
	for i := range c.Users {
		if c.Users[i].Role == "" {
			c.Users[i].Role = "user"
		}
	}
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
