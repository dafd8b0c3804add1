package client

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/net/http2"

	"github.com/AcalephStorage/etcdv2/cluster"
)

const DefaultEndpoint = "http://127.0.0.1:2379"

type (
	Config struct {
		// Endpoints seed the member table. With Discover set they are only
		// used to ask the cluster for its members.
		Endpoints   []string      `mapstructure:"endpoints"`
		Discover    bool          `mapstructure:"discover"`
		FailWait    time.Duration `mapstructure:"failWait"`
		DialTimeout time.Duration `mapstructure:"dialTimeout"`
		// Election is "first" or "last", see cluster.Election.
		Election string    `mapstructure:"election"`
		TLS      TLSConfig `mapstructure:"tls"`
	}

	TLSConfig struct {
		CACert string `mapstructure:"caCert"`
		Cert   string `mapstructure:"cert"`
		Key    string `mapstructure:"key"`
		Verify bool   `mapstructure:"verify"`
	}

	certConfig struct {
		caCert string
		cert   string
		key    string
	}
)

// NewConfig returns the configuration used when no file is given.
func NewConfig(endpoints ...string) *Config {
	if len(endpoints) == 0 {
		endpoints = []string{DefaultEndpoint}
	}
	return &Config{
		Endpoints:   endpoints,
		Discover:    true,
		FailWait:    cluster.DefaultFailWait,
		DialTimeout: 30 * time.Second,
		Election:    "first",
		TLS:         TLSConfig{Verify: true},
	}
}

// LoadConfig reads a yaml config file. An empty file name only applies the
// defaults and the PEC_SSL_* environment variables.
func LoadConfig(file string) (*Config, error) {
	log := clientLog.InFunc("LoadConfig")

	v := newViper()
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			log.WithError(err).Errorln("Unable to read config file")
			return nil, err
		}
		v.SetConfigType("yaml")
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			log.WithError(err).Errorln("Unable to read config file")
			return nil, err
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		log.WithError(err).Errorln("Unable to read config file")
		return nil, err
	}

	if err := config.validate(); err != nil {
		log.WithError(err).Errorln("Invalid config file")
		return nil, err
	}
	return config, nil
}

func newViper() *viper.Viper {
	defaults := NewConfig()

	v := viper.New()
	v.SetDefault("endpoints", defaults.Endpoints)
	v.SetDefault("discover", defaults.Discover)
	v.SetDefault("failWait", defaults.FailWait)
	v.SetDefault("dialTimeout", defaults.DialTimeout)
	v.SetDefault("election", defaults.Election)
	v.SetDefault("tls.verify", defaults.TLS.Verify)

	v.BindEnv("tls.verify", "PEC_SSL_DO_VERIFY")
	v.BindEnv("tls.caCert", "PEC_SSL_CA_BUNDLE_FILEPATH")
	v.BindEnv("tls.cert", "PEC_SSL_CLIENT_CRT_FILEPATH")
	v.BindEnv("tls.key", "PEC_SSL_CLIENT_KEY_FILEPATH")
	return v
}

func (c *Config) validate() error {
	missing := []string{}
	if len(c.Endpoints) == 0 {
		missing = append(missing, "endpoints")
	}
	if len(missing) > 0 {
		return fmt.Errorf("Missing configuration: [%s]", strings.Join(missing, ", "))
	}

	for _, e := range c.Endpoints {
		u, err := url.Parse(e)
		if err != nil {
			return fmt.Errorf("Invalid endpoint %q: %v", e, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("Invalid endpoint %q: expected http(s)://host:port", e)
		}
	}

	if _, err := c.election(); err != nil {
		return err
	}
	if c.TLS.Key != "" && c.TLS.Cert == "" {
		return errors.New("Invalid configuration: tls.key requires tls.cert")
	}
	return nil
}

func (c *Config) election() (cluster.Election, error) {
	switch strings.ToLower(c.Election) {
	case "", "first":
		return cluster.FirstEligible, nil
	case "last":
		return cluster.LastEligible, nil
	}
	return 0, fmt.Errorf("Invalid election %q: expected first or last", c.Election)
}

func (c *Config) failWait() time.Duration {
	if c.FailWait <= 0 {
		return cluster.DefaultFailWait
	}
	return c.FailWait
}

func (c *Config) usesTLS() bool {
	if c.TLS.CACert != "" || c.TLS.Cert != "" || c.TLS.Key != "" {
		return true
	}
	for _, e := range c.Endpoints {
		if strings.HasPrefix(e, "https://") {
			return true
		}
	}
	return false
}

func newTransport(config *Config) (*http.Transport, error) {
	dialTimeout := config.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if !config.usesTLS() {
		return transport, nil
	}

	certCfg := &certConfig{
		caCert: config.TLS.CACert,
		cert:   config.TLS.Cert,
		key:    config.TLS.Key,
	}

	ca, err := certCfg.loadCa()
	if err != nil {
		return nil, err
	}

	certs, err := certCfg.loadCert()
	if err != nil {
		return nil, err
	}

	transport.TLSClientConfig = &tls.Config{
		RootCAs:            ca,
		Certificates:       certs,
		InsecureSkipVerify: !config.TLS.Verify,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, err
	}
	return transport, nil
}

// loadCa returns nil, meaning the system roots, when no bundle is configured.
func (cfg *certConfig) loadCa() (*x509.CertPool, error) {
	if cfg.caCert == "" {
		return nil, nil
	}

	capem, err := os.ReadFile(cfg.caCert)
	if err != nil {
		return nil, err
	}

	if ca := x509.NewCertPool(); ca.AppendCertsFromPEM(capem) {
		return ca, nil
	}
	return nil, errors.New("unable to load certificate authority")
}

// loadCert accepts a certificate without a key when the file holds both.
func (cfg *certConfig) loadCert() ([]tls.Certificate, error) {
	if cfg.cert == "" {
		return nil, nil
	}
	key := cfg.key
	if key == "" {
		key = cfg.cert
	}
	c, err := tls.LoadX509KeyPair(cfg.cert, key)
	if err != nil {
		return nil, err
	}
	return []tls.Certificate{c}, nil
}
