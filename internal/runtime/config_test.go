package runtime_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/agentropic/internal/agent"
	"github.com/p-blackswan/agentropic/internal/mailbox"
	"github.com/p-blackswan/agentropic/internal/runtime"
)

const sampleYAML = `
runtime:
  max_concurrency: 8
  mailbox_capacity: ${TEST_MAILBOX_CAPACITY}
  overflow_policy: drop-oldest
  tick_timeout: 250ms
  round_interval: 2ms
  tombstone_limit: 64

agents:
  - id: dispatcher
    role: coordinator
  - name: courier
    role: worker
    count: 3
    settings:
      depot: $TEST_DEPOT
`

func TestLoadConfigBytes(t *testing.T) {
	t.Setenv("TEST_MAILBOX_CAPACITY", "16")
	t.Setenv("TEST_DEPOT", "north")

	fc, err := runtime.LoadConfigBytes([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 8, fc.Runtime.MaxConcurrency)
	assert.Equal(t, 16, fc.Runtime.MailboxCapacity)
	assert.Equal(t, mailbox.DropOldest, fc.Runtime.OverflowPolicy)
	assert.Equal(t, 250*time.Millisecond, fc.Runtime.TickTimeout)

	require.Len(t, fc.Agents, 2)
	assert.Equal(t, "dispatcher", fc.Agents[0].Name, "name defaults to id")
	assert.Equal(t, 1, fc.Agents[0].Count)
	assert.Equal(t, 3, fc.Agents[1].Count)
	assert.Equal(t, agent.RoleCoordinator, fc.Agents[0].Role)
	assert.Equal(t, agent.RoleWorker, fc.Agents[1].Role)
	assert.Equal(t, "north", fc.Agents[1].Settings["depot"])

	cfg, err := fc.ToRuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, 16, cfg.MailboxCapacity)
	assert.Equal(t, mailbox.DropOldest, cfg.OverflowPolicy)
	assert.Equal(t, 2*time.Millisecond, cfg.RoundInterval)
	assert.Equal(t, 64, cfg.TombstoneLimit)
}

func TestToRuntimeConfig_Defaults(t *testing.T) {
	fc, err := runtime.LoadConfigBytes([]byte("runtime: {}\n"))
	require.NoError(t, err)
	cfg, err := fc.ToRuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, runtime.DefaultConfig(), cfg)
}

func TestToRuntimeConfig_Invalid(t *testing.T) {
	fc, err := runtime.LoadConfigBytes([]byte("runtime:\n  max_concurrency: -1\n"))
	require.NoError(t, err)
	_, err = fc.ToRuntimeConfig()
	assert.Error(t, err)

	fc, err = runtime.LoadConfigBytes([]byte("runtime:\n  mailbox_capacity: -5\n"))
	require.NoError(t, err)
	_, err = fc.ToRuntimeConfig()
	assert.Error(t, err)
}

func TestLoadConfigBytes_UnknownPolicy(t *testing.T) {
	_, err := runtime.LoadConfigBytes([]byte("runtime:\n  overflow_policy: drop-newest\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drop-newest")
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentropic.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime:\n  max_concurrency: 2\n"), 0o600))

	fc, err := runtime.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, fc.Runtime.MaxConcurrency)

	_, err = runtime.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
