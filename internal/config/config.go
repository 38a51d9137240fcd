// Package config загружает конфигурацию Surveyor.
//
// Источники в порядке приоритета: переменные окружения SURVEYOR_*
// (точка в ключе заменяется на "_", например SURVEYOR_DOWNLOAD_QUOTA),
// YAML-файл, значения по умолчанию. Результат — неизменяемое значение Config,
// которое передаётся в конструкторы компонентов.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/spf13/viper"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "surveyor"

// Config — полная конфигурация процесса.
type Config struct {
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Restore  RestoreConfig  `mapstructure:"restore"`
	FTP      FTPConfig      `mapstructure:"ftp"`
	Download DownloadConfig `mapstructure:"download"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Pool     PoolConfig     `mapstructure:"pool"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

// TrackerConfig — tracker store.
type TrackerConfig struct {
	// DSN — путь к SQLite или postgres:// URL.
	DSN string `mapstructure:"dsn"`
}

// RestoreConfig — удалённый сервис restore (SOAP).
type RestoreConfig struct {
	URL      string        `mapstructure:"url"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Beams    int           `mapstructure:"beams"`
	Bits     int           `mapstructure:"bits"`
	FileType string        `mapstructure:"file_type"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// FTPConfig — FTP-сервер с restore-каталогами.
type FTPConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	UploadDir          string        `mapstructure:"upload_dir"`
}

// Addr возвращает host:port.
func (c FTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DownloadConfig — orchestrator скачиваний.
type DownloadConfig struct {
	StagingDir    string        `mapstructure:"staging_dir"`
	Quota         string        `mapstructure:"quota"`
	MaxRestores   int           `mapstructure:"max_restores"`
	MaxRetries    int           `mapstructure:"max_retries"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	IgnorePattern string        `mapstructure:"ignore_pattern"`

	// QuotaBytes — Quota в байтах, вычисляется при загрузке.
	QuotaBytes int64 `mapstructure:"-"`
}

// QueueConfig — batch-очередь PBS.
type QueueConfig struct {
	JobPrefix string `mapstructure:"job_prefix"`
	Resources string `mapstructure:"resources"`
	Script    string `mapstructure:"script"`
	LogDir    string `mapstructure:"log_dir"`
	OutputDir string `mapstructure:"output_dir"`
	ExtraArgs string `mapstructure:"extra_args"`
}

// PoolConfig — job lifecycle manager.
type PoolConfig struct {
	RawdataDir    string `mapstructure:"rawdata_dir"`
	RawdataGlob   string `mapstructure:"rawdata_glob"`
	LogDir        string `mapstructure:"log_dir"`
	ArchiveDir    string `mapstructure:"archive_dir"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
	DeleteRawdata bool   `mapstructure:"delete_rawdata"`
	Schedule      string `mapstructure:"schedule"`
	ResultsDir    string `mapstructure:"results_dir"`

	// Uploader — "ftp" или "dir".
	Uploader string `mapstructure:"uploader"`
}

// RabbitMQConfig — брокер событий и алертов. Пустой URL отключает брокер.
type RabbitMQConfig struct {
	URL string `mapstructure:"url"`
}

// HTTPConfig — адрес /healthz, /metrics и status API.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// setDefaults регистрирует значения по умолчанию.
// Каждый ключ должен быть здесь, иначе env-переопределение не сработает при Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("tracker.dsn", "surveyor.db")

	v.SetDefault("restore.url", "")
	v.SetDefault("restore.user", "")
	v.SetDefault("restore.password", "")
	v.SetDefault("restore.beams", 1)
	v.SetDefault("restore.bits", 4)
	v.SetDefault("restore.file_type", "wapp")
	v.SetDefault("restore.timeout", 30*time.Second)

	v.SetDefault("ftp.host", "localhost")
	v.SetDefault("ftp.port", 31001)
	v.SetDefault("ftp.user", "")
	v.SetDefault("ftp.password", "")
	v.SetDefault("ftp.insecure_skip_verify", false)
	v.SetDefault("ftp.dial_timeout", 30*time.Second)
	v.SetDefault("ftp.upload_dir", "")

	v.SetDefault("download.staging_dir", "/data/staging")
	v.SetDefault("download.quota", "200GiB")
	v.SetDefault("download.max_restores", 2)
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.poll_interval", 37*time.Second)
	v.SetDefault("download.ignore_pattern", `.*7\.w4bit\.fits`)

	v.SetDefault("queue.job_prefix", "surveyor")
	v.SetDefault("queue.resources", "nodes=1:ppn=1")
	v.SetDefault("queue.script", "search.sh")
	v.SetDefault("queue.log_dir", "/data/qsublog")
	v.SetDefault("queue.output_dir", "/data/results")
	v.SetDefault("queue.extra_args", "")

	v.SetDefault("pool.rawdata_dir", "/data/staging")
	v.SetDefault("pool.rawdata_glob", "**/*.fits")
	v.SetDefault("pool.log_dir", "/data/joblogs")
	v.SetDefault("pool.archive_dir", "/data/joblogs/archive")
	v.SetDefault("pool.max_attempts", 2)
	v.SetDefault("pool.delete_rawdata", true)
	v.SetDefault("pool.schedule", "@every 30s")
	v.SetDefault("pool.results_dir", "/data/uploaded")
	v.SetDefault("pool.uploader", "dir")

	v.SetDefault("rabbitmq.url", "")

	v.SetDefault("http.addr", ":8090")
}

// Load читает конфигурацию. path может быть пустым.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	quota, err := units.ParseStrictBytes(cfg.Download.Quota)
	if err != nil {
		return Config{}, fmt.Errorf("download.quota %q: %w", cfg.Download.Quota, err)
	}
	cfg.Download.QuotaBytes = quota

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет значения, без которых компоненты не могут работать.
func (c Config) Validate() error {
	var errs []error

	if c.Download.MaxRestores <= 0 {
		errs = append(errs, errors.New("download.max_restores must be positive"))
	}
	if c.Download.MaxRetries <= 0 {
		errs = append(errs, errors.New("download.max_retries must be positive"))
	}
	if c.Download.QuotaBytes <= 0 {
		errs = append(errs, errors.New("download.quota must be positive"))
	}
	if c.Download.PollInterval <= 0 {
		errs = append(errs, errors.New("download.poll_interval must be positive"))
	}
	if _, err := regexp.Compile(c.Download.IgnorePattern); err != nil {
		errs = append(errs, fmt.Errorf("download.ignore_pattern: %w", err))
	}
	if c.Pool.MaxAttempts <= 0 {
		errs = append(errs, errors.New("pool.max_attempts must be positive"))
	}
	if c.Queue.JobPrefix == "" {
		errs = append(errs, errors.New("queue.job_prefix is required"))
	}
	switch c.Pool.Uploader {
	case "dir", "ftp":
	default:
		errs = append(errs, fmt.Errorf("pool.uploader %q: want dir or ftp", c.Pool.Uploader))
	}

	return errors.Join(errs...)
}
