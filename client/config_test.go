package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AcalephStorage/etcdv2/cluster"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0600))
	return file
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultEndpoint}, config.Endpoints)
	assert.True(t, config.Discover)
	assert.Equal(t, cluster.DefaultFailWait, config.FailWait)
	assert.Equal(t, "first", config.Election)
	assert.True(t, config.TLS.Verify)
}

func TestLoadConfigFile(t *testing.T) {
	file := writeConfig(t, `
endpoints:
  - http://10.0.0.1:2379
  - http://10.0.0.2:2379
discover: false
failWait: 5s
election: last
`)

	config, err := LoadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://10.0.0.1:2379", "http://10.0.0.2:2379"}, config.Endpoints)
	assert.False(t, config.Discover)
	assert.Equal(t, 5*time.Second, config.FailWait)
	election, _ := config.election()
	assert.Equal(t, cluster.LastEligible, election)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("PEC_SSL_DO_VERIFY", "false")
	t.Setenv("PEC_SSL_CA_BUNDLE_FILEPATH", "/etc/ssl/ca.pem")
	t.Setenv("PEC_SSL_CLIENT_CRT_FILEPATH", "/etc/ssl/client.pem")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.False(t, config.TLS.Verify)
	assert.Equal(t, "/etc/ssl/ca.pem", config.TLS.CACert)
	assert.Equal(t, "/etc/ssl/client.pem", config.TLS.Cert)
	assert.True(t, config.usesTLS())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		config *Config
		valid  bool
	}{
		{"defaults", NewConfig(), true},
		{"no endpoints", &Config{}, false},
		{"no scheme", NewConfig("127.0.0.1:2379"), false},
		{"bad election", &Config{Endpoints: []string{DefaultEndpoint}, Election: "random"}, false},
		{"key without cert", &Config{Endpoints: []string{DefaultEndpoint}, TLS: TLSConfig{Key: "k.pem"}}, false},
	}
	for _, c := range cases {
		err := c.config.validate()
		if c.valid {
			assert.NoError(t, err, c.name)
		} else {
			assert.Error(t, err, c.name)
		}
	}
}

func TestNewTransportMissingCA(t *testing.T) {
	config := NewConfig("https://127.0.0.1:2379")
	config.TLS.CACert = filepath.Join(t.TempDir(), "missing.pem")

	_, err := newTransport(config)
	assert.Error(t, err)
}

func TestNewTransportPlain(t *testing.T) {
	transport, err := newTransport(NewConfig())
	require.NoError(t, err)
	assert.Nil(t, transport.TLSClientConfig)
}

func TestNewTransportTLS(t *testing.T) {
	config := NewConfig("https://127.0.0.1:2379")
	config.TLS.Verify = false

	transport, err := newTransport(config)
	require.NoError(t, err)
	require.NotNil(t, transport.TLSClientConfig)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)
	assert.Contains(t, transport.TLSClientConfig.NextProtos, "h2")
}
