package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := NewConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, "iframe", c.Host.FrameSelector)
	assert.Equal(t, 5*time.Second, c.Delivery.LoadTimeout())
	assert.Equal(t, 2*time.Second, c.Delivery.MessageTimeout())
	assert.Equal(t, 300*time.Second, c.Proxy.CacheTTL())
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	c, err := FromYAML([]byte(`
host:
  origin: http://localhost:3000
  frameSelector: "#preview"
delivery:
  messageTimeoutMS: 750
proxy:
  cacheTTLSeconds: 0
  rules:
    - action: allow
      mode: glob
      pattern: "https://*"
`))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", c.Host.Origin)
	assert.Equal(t, "#preview", c.Host.FrameSelector)
	assert.Equal(t, 750*time.Millisecond, c.Delivery.MessageTimeout())
	assert.Equal(t, 5*time.Second, c.Delivery.LoadTimeout())
	assert.Equal(t, time.Duration(0), c.Proxy.CacheTTL())
	require.Len(t, c.Proxy.Rules, 1)
	assert.Equal(t, "allow", c.Proxy.Rules[0].Action)
}

func TestFromYAMLRejectsUnknownFields(t *testing.T) {
	_, err := FromYAML([]byte("nope: 1\n"))
	require.Error(t, err)
}

func TestFromYAMLRejectsBadRuleAction(t *testing.T) {
	_, err := FromYAML([]byte("proxy:\n  rules:\n    - action: maybe\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("manual:\n  opener: none\n"), 0o600))
	t.Setenv(EnvPath, path)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "none", c.Manual.Opener)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDefaultProxySharesHostOrigin(t *testing.T) {
	c := NewConfig()
	assert.True(t, SameOrigin(c.ProxyBaseURL(), c.Host.Origin))

	c, err := FromYAML([]byte("host:\n  origin: http://localhost:3000\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", c.ProxyBaseURL())
}

func TestValidateRejectsCrossOriginProxy(t *testing.T) {
	_, err := FromYAML([]byte("proxy:\n  baseURL: http://localhost:8000\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must share the origin")

	c, err := FromYAML([]byte("proxy:\n  baseURL: http://LOCALHOST:5173/\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://LOCALHOST:5173/", c.ProxyBaseURL())
}

func TestSameOrigin(t *testing.T) {
	assert.True(t, SameOrigin("https://example.com", "https://example.com:443/app"))
	assert.True(t, SameOrigin("http://example.com:80", "http://EXAMPLE.com"))
	assert.False(t, SameOrigin("http://example.com", "https://example.com"))
	assert.False(t, SameOrigin("http://localhost:5173", "http://localhost:8000"))
	assert.False(t, SameOrigin("://bad", "http://localhost"))
}

func TestValidateRejectsBadCIDR(t *testing.T) {
	_, err := FromYAML([]byte("proxy:\n  rules:\n    - action: deny\n      mode: cidr\n      pattern: 10.0.0.0/33\n"))
	require.Error(t, err)

	_, err = FromYAML([]byte("proxy:\n  rules:\n    - action: deny\n      mode: subnet\n      pattern: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
