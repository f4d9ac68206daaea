// Package clustertesting provides the shared test context for the cluster map
// packages.
package clustertesting

import (
	"math/rand"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type TestContext struct {
	Log logger.Logger
	// Fs is an in memory filesystem private to the test
	Fs   afero.Fs
	Rand *rand.Rand
	T    *testing.T
}

type TestConfig struct {
	// The RNG is seeded from Seed. It is normal to force it to some fixed value
	// so that the generated data is the same from run to run.
	Seed            int64
	TestLabelPrefix string
	// LogLevel defaults to NOOP
	LogLevel string
}

func NewTestContext(t *testing.T, cfg TestConfig) TestContext {
	level := cfg.LogLevel
	if level == "" {
		level = "NOOP"
	}
	logger.New(level)
	t.Cleanup(logger.OnExit)

	label := cfg.TestLabelPrefix
	if label == "" {
		label = t.Name()
	}
	return TestContext{
		Log:  logger.Sugar.WithServiceName(label),
		Fs:   afero.NewMemMapFs(),
		Rand: rand.New(rand.NewSource(cfg.Seed)),
		T:    t,
	}
}

func (c *TestContext) GetLog() logger.Logger { return c.Log }

// CreateFile creates, or truncates, name on the test filesystem
func (c *TestContext) CreateFile(name string) afero.File {
	f, err := c.Fs.Create(name)
	require.NoError(c.T, err)
	c.T.Cleanup(func() { f.Close() })
	return f
}

// ReadFile returns the current content of name on the test filesystem
func (c *TestContext) ReadFile(name string) []byte {
	data, err := afero.ReadFile(c.Fs, name)
	require.NoError(c.T, err)
	return data
}

// RandomBytes returns n bytes from the context's deterministic RNG
func (c *TestContext) RandomBytes(n int) []byte {
	b := make([]byte, n)
	c.Rand.Read(b)
	return b
}
