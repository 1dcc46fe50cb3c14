package common

import (
	"fmt"
	"time"
)

// ServerAddress represents a network address of a cluster node (hostname:port)
type ServerAddress string

// PeerConfig identifies one remote member of the statically configured cluster.
type PeerConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// ClusterConfig specifies the full membership of a Hive cluster along with
// tunable properties such as the different timeouts. It is supplied once at
// node startup and must not be mutated afterwards.
type ClusterConfig struct {
	NodeID     string       `yaml:"node_id"`
	ListenHost string       `yaml:"listen_host" default:"127.0.0.1"`
	ListenPort int          `yaml:"listen_port" default:"7600"`
	PublicURL  string       `yaml:"public_url"`
	Peers      []PeerConfig `yaml:"peers"`

	HeartbeatIntervalMs  int `yaml:"heartbeat_interval_ms" default:"150"`
	ElectionTimeoutMinMs int `yaml:"election_timeout_min_ms" default:"300"`
	ElectionTimeoutMaxMs int `yaml:"election_timeout_max_ms" default:"600"`
	SyncIntervalMs       int `yaml:"sync_interval_ms" default:"1000"`
	RequestTimeoutMs     int `yaml:"request_timeout_ms" default:"500"`

	StorySimilarityThreshold float64 `yaml:"story_similarity_threshold" default:"0.8"`
}

func (c ClusterConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

func (c ClusterConfig) ElectionTimeoutMin() time.Duration {
	return time.Duration(c.ElectionTimeoutMinMs) * time.Millisecond
}

func (c ClusterConfig) ElectionTimeoutMax() time.Duration {
	return time.Duration(c.ElectionTimeoutMaxMs) * time.Millisecond
}

func (c ClusterConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMs) * time.Millisecond
}

func (c ClusterConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c ClusterConfig) ListenAddress() ServerAddress {
	return ServerAddress(fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort))
}

// ClusterSize is the full configured membership including this node,
// the denominator for majority quorums.
func (c ClusterConfig) ClusterSize() int {
	return len(c.Peers) + 1
}

func (c ClusterConfig) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.ElectionTimeoutMinMs <= 0 || c.ElectionTimeoutMaxMs < c.ElectionTimeoutMinMs {
		return fmt.Errorf("invalid election timeout range [%d, %d]", c.ElectionTimeoutMinMs, c.ElectionTimeoutMaxMs)
	}
	if c.HeartbeatIntervalMs <= 0 {
		return fmt.Errorf("heartbeat_interval_ms must be positive")
	}
	if c.SyncIntervalMs <= 0 {
		return fmt.Errorf("sync_interval_ms must be positive")
	}
	if c.RequestTimeoutMs <= 0 {
		return fmt.Errorf("request_timeout_ms must be positive")
	}
	if c.StorySimilarityThreshold <= 0 || c.StorySimilarityThreshold > 1 {
		return fmt.Errorf("story_similarity_threshold must be in (0, 1], got %v", c.StorySimilarityThreshold)
	}
	for _, peer := range c.Peers {
		if peer.ID == "" || peer.URL == "" {
			return fmt.Errorf("peer entries need both id and url: %+v", peer)
		}
		if peer.ID == c.NodeID {
			return fmt.Errorf("peer list must not contain this node (%s)", c.NodeID)
		}
	}
	return nil
}
