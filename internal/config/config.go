package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CALLROOM"

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type RateLimit struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type Config struct {
	Mode               string        `mapstructure:"mode"`
	Port               int           `mapstructure:"port"`
	LogLevel           string        `mapstructure:"log_level"`
	Secret             string        `mapstructure:"secret"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins"`
	ReadLimit          int64         `mapstructure:"read_limit"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	PongWait           time.Duration `mapstructure:"pong_wait"`
	WriteWait          time.Duration `mapstructure:"write_wait"`
	SendBuffer         int           `mapstructure:"send_buffer"`
	RateLimit          RateLimit     `mapstructure:"rate_limit"`
	NotifyDropped      bool          `mapstructure:"notify_dropped"`
	BackpressurePolicy string        `mapstructure:"backpressure_policy"`
	AdminAPI           bool          `mapstructure:"admin_api"`
	MaxIdentityLen     int           `mapstructure:"max_identity_len"`
	MaxRoomLen         int           `mapstructure:"max_room_len"`
	ICEServers         []ICEServer   `mapstructure:"ice_servers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("rate_limit.per_second", 50)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("notify_dropped", false)
	v.SetDefault("backpressure_policy", "kick")
	v.SetDefault("admin_api", false)
	v.SetDefault("max_identity_len", 254)
	v.SetDefault("max_room_len", 128)
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

// Flags registers the command line overrides.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to the config file")
	fs.Int("port", 0, "listen port")
	fs.String("mode", "", "gin mode: debug or release")
	fs.String("log-level", "", "log level: trace, debug, info, warn, error")
}

// Load reads config/config.<CONFIG_ENV>.yaml (or --config), then the
// CALLROOM_* environment, then flags that were set explicitly.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	fileName := ""
	if fs != nil {
		fileName, _ = fs.GetString("config")
		bindFlag(v, fs, "port", "port")
		bindFlag(v, fs, "mode", "mode")
		bindFlag(v, fs, "log_level", "log-level")
	}
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
		watchLogLevel(v)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}

func bindFlag(v *viper.Viper, fs *pflag.FlagSet, key, name string) {
	if f := fs.Lookup(name); f != nil && f.Changed {
		_ = v.BindPFlag(key, f)
	}
}

// watchLogLevel re-applies log_level when the config file changes.
func watchLogLevel(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level, err := zerolog.ParseLevel(v.GetString("log_level"))
		if err != nil {
			log.Error().Err(err).Str("module", "config").Msg("bad log_level on reload")
			return
		}
		zerolog.SetGlobalLevel(level)
		log.Info().Str("module", "config").Str("file", e.Name).Str("level", level.String()).Msg("log level reloaded")
	})
	v.WatchConfig()
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		return fmt.Errorf("ping_period %s must be positive and shorter than pong_wait %s", c.PingPeriod, c.PongWait)
	}
	for _, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("ice server without urls")
		}
		for _, raw := range s.URLs {
			if _, err := stun.ParseURI(raw); err != nil {
				return fmt.Errorf("invalid ice server url %q: %w", raw, err)
			}
		}
	}
	return nil
}

func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// WebRTCServers converts the configured ICE servers into the shape browsers
// pass to RTCPeerConnection.
func (c *Config) WebRTCServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}
