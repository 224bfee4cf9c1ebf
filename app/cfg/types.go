package cfg

import (
	"net"
	"strconv"
	"time"
)

type Cfg struct {
	// Server configuration
	Host string
	Port int

	// Aggregation configuration
	CacheTTL     time.Duration
	FetchLimit   int
	FetchTimeout time.Duration
	WarmInterval time.Duration
	WorkerCount  int

	// Streaming configuration
	HeartbeatInterval time.Duration

	// Application metadata
	ConfigFile string
	UserAgent  string
	Timezone   string
	Debug      bool
	Version    string

	Providers map[string]ProviderConfig
}

// ProviderConfig is the per-provider block of the config file. Fields a
// provider does not use are ignored.
type ProviderConfig struct {
	Enabled bool `yaml:"enabled"`

	// readwise
	Token    string `yaml:"token"`
	Location string `yaml:"location"`
	Category string `yaml:"category"`
	BaseURL  string `yaml:"baseUrl"`

	// rss
	Feeds []string `yaml:"feeds"`
}

func (c *Cfg) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
