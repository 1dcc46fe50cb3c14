package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/hiveteam/hive/benchmarks"
	"github.com/hiveteam/hive/cluster"
	"github.com/hiveteam/hive/common"
	"github.com/hiveteam/hive/logging"
	"github.com/hiveteam/hive/store"
	"gopkg.in/yaml.v2"
)

func loadConfig(path string) (common.ClusterConfig, error) {
	var cfg common.ClusterConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	if err := defaults.Set(&cfg); err != nil {
		return cfg, err
	}
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	return cfg, nil
}

func runServer(args []string) {
	flagset := flag.NewFlagSet("server", flag.ExitOnError)
	configFile := flagset.String("config", "", "YAML file containing node & cluster configuration")
	dbFile := flagset.String("db", "", "path of the node's store file (default <node_id>.db)")
	logLevel := flagset.String("log-level", "info", "log level (debug, info, warn, error)")
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	logger, err := logging.New(*logLevel)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	path := *dbFile
	if path == "" {
		path = fmt.Sprintf("%s.db", cfg.NodeID)
	}
	st, err := store.Open(path)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	node, err := cluster.New(cfg, st, logger)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	if err := node.Start(); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c
	fmt.Println("Stopping node ...")
	if err := node.Stop(); err != nil {
		fmt.Println(err)
	}
}

// generateConfig writes one config file per node for a local cluster,
// which is handy for trying out a multi-node setup on a single machine.
func generateConfig(args []string) {
	flagset := flag.NewFlagSet("config", flag.ExitOnError)
	var prefix, addresses string
	flagset.StringVar(&prefix, "prefix", "hive", "prefix for the generated config file names")
	flagset.StringVar(&addresses, "addresses", "127.0.0.1:7600,127.0.0.1:7601,127.0.0.1:7602", "comma-separated listen addresses, one per node")
	if err := flagset.Parse(args); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	addrs := strings.Split(addresses, ",")
	ids := make([]string, len(addrs))
	for i := range addrs {
		ids[i] = uuid.NewString()
	}
	for i, addr := range addrs {
		host, port, err := parseListenAddress(addr)
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
		var cfg common.ClusterConfig
		if err := defaults.Set(&cfg); err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
		cfg.NodeID = ids[i]
		cfg.ListenHost = host
		cfg.ListenPort = port
		cfg.PublicURL = addr
		for j, other := range addrs {
			if j == i {
				continue
			}
			cfg.Peers = append(cfg.Peers, common.PeerConfig{ID: ids[j], URL: strings.TrimSpace(other)})
		}
		raw, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
		name := fmt.Sprintf("%s-%d.yaml", prefix, i)
		if err := os.WriteFile(name, raw, 0644); err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
		fmt.Printf("wrote %s\n", name)
	}
}

// parseListenAddress splits a "host:port" string and rejects unusable
// ports instead of silently defaulting them to 0.
func parseListenAddress(addr string) (string, int, error) {
	host, portStr, found := strings.Cut(strings.TrimSpace(addr), ":")
	if !found {
		return "", 0, fmt.Errorf("invalid address %q (want host:port)", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in address %q", addr)
	}
	return host, port, nil
}

func usage() {
	fmt.Println("usage: hive <server|config|bench1|bench2> [flags]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "server":
		runServer(os.Args[2:])
	case "config":
		generateConfig(os.Args[2:])
	case "bench1":
		benchmarks.BenchmarkConvergenceTime(os.Args[2:])
	case "bench2":
		benchmarks.BenchmarkCatchUpTime(os.Args[2:])
	default:
		usage()
	}
}
