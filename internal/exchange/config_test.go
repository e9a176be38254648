package exchange

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func (s *ConfigTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.T().Setenv("BINANCE_API_KEY", "")
	s.T().Setenv("BINANCE_SECRET_KEY", "")
}

func (s *ConfigTestSuite) writeConfig(content string) string {
	path := filepath.Join(s.dir, "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))

	return path
}

func (s *ConfigTestSuite) TestLoadValidConfig() {
	path := s.writeConfig(`
api_key: key
secret_key: secret
testnet: true
filters_cache_ttl: 2m
`)

	config, err := LoadConfig(path)

	s.Require().NoError(err)
	s.Equal("key", config.APIKey)
	s.Equal("secret", config.SecretKey)
	s.True(config.Testnet)
	s.Equal(2*time.Minute, config.FiltersCacheTTL)
}

func (s *ConfigTestSuite) TestLoadAppliesDefaultTTL() {
	path := s.writeConfig(`
api_key: key
secret_key: secret
`)

	config, err := LoadConfig(path)

	s.Require().NoError(err)
	s.Equal(DefaultFiltersCacheTTL, config.FiltersCacheTTL)
}

func (s *ConfigTestSuite) TestEnvironmentOverridesFile() {
	s.T().Setenv("BINANCE_API_KEY", "env-key")
	s.T().Setenv("BINANCE_SECRET_KEY", "env-secret")
	path := s.writeConfig(`
api_key: file-key
secret_key: file-secret
`)

	config, err := LoadConfig(path)

	s.Require().NoError(err)
	s.Equal("env-key", config.APIKey)
	s.Equal("env-secret", config.SecretKey)
}

func (s *ConfigTestSuite) TestMissingCredentials() {
	path := s.writeConfig(`
testnet: true
`)

	_, err := LoadConfig(path)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *ConfigTestSuite) TestMissingFile() {
	_, err := LoadConfig(filepath.Join(s.dir, "missing.yaml"))

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *ConfigTestSuite) TestNegativeTTLRejected() {
	path := s.writeConfig(`
api_key: key
secret_key: secret
filters_cache_ttl: -1m
`)

	_, err := LoadConfig(path)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
