// Package benchmarks contains small end-to-end benchmarks of the
// coordination layer, run via the bench1/bench2 sub-commands.
package benchmarks

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hiveteam/hive/cluster"
	"github.com/hiveteam/hive/common"
	"github.com/hiveteam/hive/logging"
	"github.com/hiveteam/hive/store"
)

func makeConfigs(n, basePort int) []common.ClusterConfig {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("bench-node-%d", i)
	}
	configs := make([]common.ClusterConfig, n)
	for i := range configs {
		configs[i] = common.ClusterConfig{
			NodeID:                   ids[i],
			ListenHost:               "127.0.0.1",
			ListenPort:               basePort + i,
			HeartbeatIntervalMs:      50,
			ElectionTimeoutMinMs:     150,
			ElectionTimeoutMaxMs:     300,
			SyncIntervalMs:           3600000, // driven manually below
			RequestTimeoutMs:         500,
			StorySimilarityThreshold: 0.8,
		}
		for j := range ids {
			if j == i {
				continue
			}
			configs[i].Peers = append(configs[i].Peers, common.PeerConfig{
				ID:  ids[j],
				URL: fmt.Sprintf("127.0.0.1:%d", basePort+j),
			})
		}
	}
	return configs
}

func startNodes(configs []common.ClusterConfig, dir string) ([]*cluster.Node, error) {
	var nodes []*cluster.Node
	for i, cfg := range configs {
		st, err := store.Open(filepath.Join(dir, fmt.Sprintf("bench-%d.db", i)))
		if err != nil {
			return nodes, err
		}
		node, err := cluster.New(cfg, st, logging.Nop())
		if err != nil {
			return nodes, err
		}
		if err := node.Start(); err != nil {
			return nodes, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func stopNodes(nodes []*cluster.Node) {
	for _, node := range nodes {
		if err := node.Stop(); err != nil {
			fmt.Println(err)
		}
	}
}

func writeStories(node *cluster.Node, count int) error {
	for i := 0; i < count; i++ {
		err := node.Store().PutRow("stories", store.Row{
			"id":          fmt.Sprintf("STORY-BENCH-%05d", i),
			"title":       fmt.Sprintf("Benchmark story %d", i),
			"description": fmt.Sprintf("Synthetic workload item number %d", i),
			"status":      "backlog",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func converged(nodes []*cluster.Node) bool {
	first := nodes[0].Status().Vector
	for _, node := range nodes[1:] {
		vector := node.Status().Vector
		if !vector.Contains(first) || !first.Contains(vector) {
			return false
		}
	}
	return true
}

// BenchmarkConvergenceTime measures how long a cluster takes to converge
// after a burst of story writes on one node.
func BenchmarkConvergenceTime(args []string) {
	flagset := flag.NewFlagSet("bench1", flag.ExitOnError)
	numNodes := flagset.Int("nodes", 3, "cluster size")
	numStories := flagset.Int("stories", 200, "stories written on the first node")
	basePort := flagset.Int("base-port", 25100, "first listen port")
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	dir, err := os.MkdirTemp("", "hive-bench")
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	defer os.RemoveAll(dir)

	nodes, err := startNodes(makeConfigs(*numNodes, *basePort), dir)
	defer stopNodes(nodes)
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := writeStories(nodes[0], *numStories); err != nil {
		fmt.Println(err)
		return
	}

	start := time.Now()
	rounds := 0
	for {
		for _, node := range nodes {
			if _, err := node.SyncNow(); err != nil {
				fmt.Println(err)
				return
			}
		}
		rounds++
		if converged(nodes) {
			break
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("converged %d stories across %d nodes in %v (%d sync rounds)\n",
		*numStories, *numNodes, elapsed, rounds)
}

// BenchmarkCatchUpTime measures how long a fresh node takes to drain the
// full backlog of an established node's change log.
func BenchmarkCatchUpTime(args []string) {
	flagset := flag.NewFlagSet("bench2", flag.ExitOnError)
	numStories := flagset.Int("stories", 1000, "stories the fresh node must catch up on")
	basePort := flagset.Int("base-port", 25200, "first listen port")
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	dir, err := os.MkdirTemp("", "hive-bench")
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	defer os.RemoveAll(dir)

	nodes, err := startNodes(makeConfigs(2, *basePort), dir)
	defer stopNodes(nodes)
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := writeStories(nodes[0], *numStories); err != nil {
		fmt.Println(err)
		return
	}
	if _, err := nodes[0].SyncNow(); err != nil {
		fmt.Println(err)
		return
	}

	start := time.Now()
	stats, err := nodes[1].SyncNow()
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("caught up %d events in %v\n", stats.Applied, time.Since(start))
}
