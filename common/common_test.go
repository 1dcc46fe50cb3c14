package common_test

import (
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/hiveteam/hive/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func Test_VersionVectorObserve(t *testing.T) {
	v := common.VersionVector{}
	v.Observe("a", 3)
	v.Observe("a", 2) // entries only move forward
	v.Observe("b", 1)
	assert.EqualValues(t, 3, v.Get("a"))
	assert.EqualValues(t, 1, v.Get("b"))
	assert.EqualValues(t, 0, v.Get("c"))
}

func Test_VersionVectorContains(t *testing.T) {
	v := common.VersionVector{"a": 3, "b": 1}
	assert.True(t, v.Contains(common.VersionVector{}))
	assert.True(t, v.Contains(common.VersionVector{"a": 3}))
	assert.True(t, v.Contains(common.VersionVector{"a": 2, "b": 1}))
	assert.False(t, v.Contains(common.VersionVector{"a": 4}))
	assert.False(t, v.Contains(common.VersionVector{"c": 1}))
}

func Test_VersionVectorCopyIsIndependent(t *testing.T) {
	v := common.VersionVector{"a": 3}
	copied := v.Copy()
	copied.Observe("a", 9)
	assert.EqualValues(t, 3, v.Get("a"))
	assert.EqualValues(t, 9, copied.Get("a"))
}

func validConfig() common.ClusterConfig {
	return common.ClusterConfig{
		NodeID:                   "node-a",
		ListenHost:               "127.0.0.1",
		ListenPort:               9000,
		HeartbeatIntervalMs:      100,
		ElectionTimeoutMinMs:     300,
		ElectionTimeoutMaxMs:     600,
		SyncIntervalMs:           2000,
		RequestTimeoutMs:         500,
		StorySimilarityThreshold: 0.8,
		Peers: []common.PeerConfig{
			{ID: "node-b", URL: "127.0.0.1:9001"},
		},
	}
}

func Test_ConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.NodeID = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.ElectionTimeoutMaxMs = cfg.ElectionTimeoutMinMs - 1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.StorySimilarityThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Peers = append(cfg.Peers, common.PeerConfig{ID: "node-a", URL: "127.0.0.1:9002"})
	assert.Error(t, cfg.Validate(), "peer list must not contain this node")

	cfg = validConfig()
	cfg.Peers = append(cfg.Peers, common.PeerConfig{ID: "node-c"})
	assert.Error(t, cfg.Validate(), "peer without url")
}

func Test_ConfigAccessors(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, common.ServerAddress("127.0.0.1:9000"), cfg.ListenAddress())
	assert.Equal(t, 2, cfg.ClusterSize())
	assert.Equal(t, 100*time.Millisecond, cfg.HeartbeatInterval())
	assert.Equal(t, 300*time.Millisecond, cfg.ElectionTimeoutMin())
	assert.Equal(t, 600*time.Millisecond, cfg.ElectionTimeoutMax())
	assert.Equal(t, 2*time.Second, cfg.SyncInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.RequestTimeout())
}

func Test_ConfigYAMLWithDefaults(t *testing.T) {
	raw := `
node_id: node-a
listen_port: 9000
peers:
  - id: node-b
    url: "127.0.0.1:9001"
`
	var cfg common.ClusterConfig
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	require.NoError(t, defaults.Set(&cfg))

	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, 9000, cfg.ListenPort)
	require.Len(t, cfg.Peers, 1)
	assert.Equal(t, "node-b", cfg.Peers[0].ID)
	assert.InDelta(t, 0.8, cfg.StorySimilarityThreshold, 1e-9)
	require.NoError(t, cfg.Validate())
}
