package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type VideoSource struct {
	Width     int     `mapstructure:"width"`
	Height    int     `mapstructure:"height"`
	FrameRate float64 `mapstructure:"frame_rate"`
}

type Config struct {
	Mode        string `mapstructure:"mode"`
	LogLevel    string `mapstructure:"log_level"`
	ControlPort int    `mapstructure:"control_port"`

	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`

	ICEServers        []ICEServer   `mapstructure:"ice_servers"`
	MaxVideoBitrate   int           `mapstructure:"max_video_bitrate"` // kbit/s
	AudioBitrate      int           `mapstructure:"audio_bitrate"`     // bit/s
	ForcePassiveSetup bool          `mapstructure:"force_passive_setup"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	VideoCodecs       []string      `mapstructure:"video_codecs"`

	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	DialRetries int           `mapstructure:"dial_retries"`

	Camera      VideoSource `mapstructure:"camera"`
	Screen      VideoSource `mapstructure:"screen"`
	Placeholder VideoSource `mapstructure:"placeholder"`
}

var DefaultICEServers = []ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// Flags declares the command-line overrides understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	fs.String("address", "", "signaling websocket address (wss://host/rtc)")
	fs.String("token", "", "session token")
	fs.String("log_level", "info", "log level")
	fs.Int("control_port", 8090, "local control API port, 0 disables it")
	fs.Int("max_video_bitrate", 3000, "maximum outbound video bitrate, kbit/s")
	fs.Bool("force_passive_setup", true, "answer server renegotiations as passive DTLS party")
	return fs
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default), then VOICE_*
// environment variables, then any flags set in fs. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("voice")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = DefaultICEServers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("control_port", cfg.ControlPort).
		Int("max_video_bitrate", cfg.MaxVideoBitrate).
		Bool("force_passive_setup", cfg.ForcePassiveSetup).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("control_port", 8090)
	v.SetDefault("address", "")
	v.SetDefault("token", "")
	v.SetDefault("max_video_bitrate", 3000)
	v.SetDefault("audio_bitrate", 32000)
	v.SetDefault("force_passive_setup", true)
	v.SetDefault("handshake_timeout", "5s")
	v.SetDefault("video_codecs", []string{"video/VP8"})
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("dial_retries", 0)
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.frame_rate", 30)
	v.SetDefault("screen.frame_rate", 15)
	v.SetDefault("placeholder.width", 160)
	v.SetDefault("placeholder.height", 120)
	v.SetDefault("placeholder.frame_rate", 5)
}

func (c *Config) Validate() error {
	if c.MaxVideoBitrate <= 0 {
		return fmt.Errorf("max_video_bitrate must be positive, got %d", c.MaxVideoBitrate)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake_timeout must be positive, got %s", c.HandshakeTimeout)
	}
	if c.DialRetries < 0 {
		return fmt.Errorf("dial_retries must not be negative, got %d", c.DialRetries)
	}
	return nil
}

// MaxVideoBitrateBPS converts the configured kbit/s cap to bit/s.
func (c *Config) MaxVideoBitrateBPS() int {
	return c.MaxVideoBitrate * 1000
}
