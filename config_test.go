package revstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

func TestDefaultConfig(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig()
	c.Storage.Backend = "s3"
	c.Reviews.Workers = -1
	c.Revisions.CacheSize = -2
	err := c.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)

	c = DefaultConfig()
	c.Storage.Dir = ""
	assert.Error(t, c.Validate())
	c.Storage.Backend = BackendMemory
	assert.NoError(t, c.Validate())

	c.Logging.Encoding = "xml"
	c.HTTP.ListenLimit = -1
	assert.Len(t, multierr.Errors(c.Validate()), 2)
}

func TestConfigYAML(t *testing.T) {
	var c Config
	require.NoError(t, yaml.Unmarshal([]byte(`
storage:
  backend: memory
reviews:
  workers: 3
http:
  listen: ":9090"
`), &c))
	assert.Equal(t, BackendMemory, c.Storage.Backend)
	assert.Equal(t, 3, c.Reviews.Workers)
	assert.Equal(t, ":9090", c.HTTP.Listen)
}
