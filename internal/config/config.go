package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/Meet/internal/logger"
)

const envPrefix = "MEET"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	TCPPort    int           `mapstructure:"tcp_port"`
	UDPPort    int           `mapstructure:"udp_port"`
	HTTPPort   int           `mapstructure:"http_port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Log      logger.Config  `mapstructure:"log"`
	Hub      HubConfig      `mapstructure:"hub"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Events   EventsConfig   `mapstructure:"events"`
}

type HubConfig struct {
	BacklogThreshold int           `mapstructure:"backlog_threshold"`
	Policy           string        `mapstructure:"policy"`
	JoinLimit        int           `mapstructure:"join_limit"`
	JoinInterval     time.Duration `mapstructure:"join_interval"`
}

type RelayConfig struct {
	Freshness     time.Duration `mapstructure:"freshness"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RecorderConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ContentRoot string        `mapstructure:"content_root"`
	FPS         int           `mapstructure:"fps"`
	JPEGQuality int           `mapstructure:"jpeg_quality"`
	Width       int           `mapstructure:"width"`
	Height      int           `mapstructure:"height"`
	FFmpegPath  string        `mapstructure:"ffmpeg_path"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type StorageConfig struct {
	Type string   `mapstructure:"type"`
	S3   S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	Prefix          string `mapstructure:"prefix"`
}

type EventsConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("tcp_port", 9000)
	v.SetDefault("udp_port", 0)
	v.SetDefault("http_port", 8080)
	v.SetDefault("read_limit", 8<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	v.SetDefault("hub.backlog_threshold", 3<<20)
	v.SetDefault("hub.policy", "drop")
	v.SetDefault("hub.join_limit", 10)
	v.SetDefault("hub.join_interval", "10s")

	v.SetDefault("relay.freshness", "10s")
	v.SetDefault("relay.timeout", "15s")
	v.SetDefault("relay.sweep_interval", "5s")

	v.SetDefault("recorder.enabled", true)
	v.SetDefault("recorder.content_root", "knowledge")
	v.SetDefault("recorder.fps", 12)
	v.SetDefault("recorder.jpeg_quality", 80)
	v.SetDefault("recorder.width", 1280)
	v.SetDefault("recorder.height", 720)
	v.SetDefault("recorder.ffmpeg_path", "")
	v.SetDefault("recorder.stop_timeout", "5s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "knowledge/catalog.db")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.host", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("storage.s3.prefix", "recordings")

	v.SetDefault("events.redis_addr", "")
	v.SetDefault("events.redis_password", "")
	v.SetDefault("events.redis_db", 0)
	v.SetDefault("events.channel_prefix", "meet.room")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) over the defaults, then the
// environment: MEET_TCP_PORT, MEET_RECORDER_FPS and so on. An optional .env is loaded first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("cannot read .env")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit file; a missing file leaves the defaults in place.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", fileName, err)
			}
		}
		log.Info().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDerived()
	return &cfg, nil
}

func (c *Config) applyDerived() {
	if c.UDPPort == 0 {
		c.UDPPort = c.TCPPort + 1
	}
	if p := os.Getenv("FFMPEG_PATH"); p != "" && c.Recorder.FFmpegPath == "" {
		c.Recorder.FFmpegPath = p
	}
	if c.Recorder.FPS <= 0 {
		c.Recorder.FPS = 12
	}
}
