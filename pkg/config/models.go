package config

import "time"

type Config struct {
	LogLevel   string           `mapstructure:"logLevel"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Matchmaker MatchmakerConfig `mapstructure:"matchmaker"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Transport  TransportConfig  `mapstructure:"transport"`
}

type RelayConfig struct {
	Address string `mapstructure:"address"`
	// Domain is the XMPP domain used to build JIDs and MUC addresses.
	Domain string `mapstructure:"domain"`
}

type MatchmakerConfig struct {
	Address      string        `mapstructure:"address"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	JoinDelaySec int           `mapstructure:"joinDelaySec"`
}

type AuthConfig struct {
	// UplinkKey is the process-wide HMAC secret shared with the token
	// issuer and the matchmaking ticket endpoint.
	UplinkKey string `mapstructure:"uplinkKey"`
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}
