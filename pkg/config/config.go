package config

import (
	"time"

	"github.com/spf13/pflag"
)

type RelayConfig struct {
	Relay Relay
}

type Relay struct {
	Debug        bool
	Tag          string `fig:"tag" default:"relay"`
	PublicDomain string `fig:"publicdomain" default:"http://localhost:3000"`
	Server       Server
	Monitoring   Monitoring
	Session      Session
}

type Server struct {
	Address string `fig:"address" default:":3000"`
	Https   bool
	Tls     Tls
}

type Tls struct {
	Address   string `fig:"address" default:":443"`
	Domain    string
	HttpsCert string
	HttpsKey  string
}

type Monitoring struct {
	Port             int    `fig:"port" default:"6601"`
	URLPrefix        string `fig:"urlprefix" default:"/relay"`
	MetricEnabled    bool
	ProfilingEnabled bool
}

type Session struct {
	TTL           time.Duration `fig:"ttl" default:"10m"`
	SweepInterval time.Duration `fig:"sweepinterval" default:"30s"`
	QueueLimit    int           `fig:"queuelimit" default:"1000"`
}

// allows custom config path
var configPath string

func NewRelayConfig() (conf RelayConfig) {
	if err := LoadConfig(&conf, configPath); err != nil {
		panic(err)
	}
	return
}

// ParseFlags updates config values from passed runtime flags.
// Define own flags with default value set to the current config param.
func (c *RelayConfig) ParseFlags() {
	fs := pflag.CommandLine
	fs.BoolVarP(&c.Relay.Debug, "debug", "v", c.Relay.Debug, "Enable debug logging")
	fs.StringVar(&c.Relay.Server.Address, "address", c.Relay.Server.Address, "HTTP server address")
	fs.StringVarP(&c.Relay.PublicDomain, "domain", "n", c.Relay.PublicDomain, "Public domain used in controller URLs")
	fs.IntVar(&c.Relay.Monitoring.Port, "monitoring.port", c.Relay.Monitoring.Port, "Monitoring server port")
	fs.StringVar(&configPath, "conf", configPath, "Set custom configuration file path")
	pflag.Parse()
}

func (s *Server) GetAddr() string {
	if s.Https {
		return s.Tls.Address
	}
	return s.Address
}

func (m *Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }
