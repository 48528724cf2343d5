// Package config loads daemon configuration with defaults overridden by
// a JSON file, in turn overridden by CLI flags, following
// dloghw.json/AppConfig's layered precedence.
package config

import (
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// WebServer configures the HTTP surface.
type WebServer struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

func defaultWebServer() WebServer {
	return WebServer{Host: "127.0.0.1", Port: 8080}
}

// BaseURL returns the http:// URL this server answers requests on.
func (w WebServer) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", w.Host, w.Port)
}

// QueueFind configures where an existing log queue is discovered on disk.
type QueueFind struct {
	Root      string `json:"root"`
	Wildcard  string `json:"wildcard"`
	Recursive bool   `json:"recursive"`
}

func defaultQueueFind() QueueFind {
	return QueueFind{Root: "./data/queue", Wildcard: "*.binlog", Recursive: true}
}

// QueueNewFile configures the path template used when rolling a new
// segment, per the filename template language.
type QueueNewFile struct {
	Template string `json:"template"`
}

func defaultQueueNewFile() QueueNewFile {
	return QueueNewFile{Template: "${work_dir}/data/queue/${time:local:yyyy-mm-ddThh-mi-ss}-${rnd:5}.binlog"}
}

// QueueConfig groups the log queue's on-disk layout settings.
type QueueConfig struct {
	Find    QueueFind    `json:"find"`
	NewFile QueueNewFile `json:"new_file"`
}

func defaultQueueConfig() QueueConfig {
	return QueueConfig{Find: defaultQueueFind(), NewFile: defaultQueueNewFile()}
}

// NodeID identifies this node in the election cluster: either a stable
// configured name, or "" meaning generate one at startup.
type NodeID struct {
	Name string `json:"name,omitempty"`
}

// Resolve returns the configured name, generating and caching a random
// one if none was configured.
func (n *NodeID) Resolve() string {
	if n.Name != "" {
		return n.Name
	}
	n.Name = generateNodeID(8)
	return n.Name
}

func generateNodeID(length int) string {
	const alphabet = "qwertyuiopasdfghjklzxcvbnm1234567890"
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "node"
	}
	id := make([]byte, length)
	for i, b := range buf {
		id[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(id)
}

// ElectionConfig groups the election engine's tuning knobs and cluster
// identity, loaded from JSON with duration fields as Go duration strings
// (e.g. "100ms", "3s").
type ElectionConfig struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url,omitempty"`
	ID      NodeID `json:"id"`

	// Peers lists the other cluster members' httpapi base URLs
	// (e.g. "http://10.0.0.2:8080"), dialed via election.HTTPPeer.
	Peers []string `json:"peers,omitempty"`

	PingPeriod       Duration `json:"ping_period"`
	HeartbeatTimeout Duration `json:"heartbeat_timeout"`

	NominateMinDelay   Duration `json:"nominate_min_delay"`
	NominateMaxDelay   Duration `json:"nominate_max_delay"`
	RenominateMinDelay Duration `json:"renominate_min_delay"`
	RenominateMaxDelay Duration `json:"renominate_max_delay"`

	VotesMinCount int `json:"votes_min_count"`
}

func defaultElectionConfig() ElectionConfig {
	return ElectionConfig{
		Enabled:            false,
		ID:                 NodeID{},
		PingPeriod:         Duration(3 * time.Second),
		HeartbeatTimeout:   Duration(15 * time.Second),
		NominateMinDelay:   Duration(2 * time.Millisecond),
		NominateMaxDelay:   Duration(2 * time.Second),
		RenominateMinDelay: Duration(6 * time.Second),
		RenominateMaxDelay: Duration(10 * time.Second),
		VotesMinCount:      2,
	}
}

// DiscoveryConfig configures the UDP peer-discovery job.
type DiscoveryConfig struct {
	Enabled        bool     `json:"enabled"`
	BindAddr       string   `json:"bind_addr"`
	AddrRange      string   `json:"addr_range"`
	PortRange      string   `json:"port_range"`
	ReceiveTimeout Duration `json:"receive_timeout"`
	Period         Duration `json:"period"`
}

func defaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Enabled:        false,
		BindAddr:       "0.0.0.0:9999",
		AddrRange:      "127.0.0.1",
		PortRange:      "9999",
		ReceiveTimeout: Duration(2 * time.Second),
		Period:         Duration(30 * time.Second),
	}
}

// AppConfig is the fully-resolved daemon configuration.
type AppConfig struct {
	WorkDir string `json:"-"`

	WebServer WebServer       `json:"web_server"`
	Queue     QueueConfig     `json:"queue"`
	Election  ElectionConfig  `json:"election"`
	Discovery DiscoveryConfig `json:"discovery"`
}

// Default returns the built-in configuration, before any file or flag
// overrides are applied.
func Default() AppConfig {
	wd, _ := os.Getwd()
	return AppConfig{
		WorkDir:   wd,
		WebServer: defaultWebServer(),
		Queue:     defaultQueueConfig(),
		Election:  defaultElectionConfig(),
		Discovery: defaultDiscoveryConfig(),
	}
}

// LoadFile merges a JSON config file's contents onto cfg. A missing file
// is not an error; cfg is returned unchanged.
func LoadFile(cfg AppConfig, path string) (AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// FindUp walks upward from dir looking for a file named name, returning
// its path when found.
func FindUp(dir, name string) (string, bool) {
	for {
		candidate := dir + string(os.PathSeparator) + name
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		parent := parentDir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func parentDir(dir string) string {
	i := len(dir) - 1
	for i > 0 && dir[i] == os.PathSeparator {
		i--
	}
	for i > 0 && dir[i] != os.PathSeparator {
		i--
	}
	if i == 0 {
		return string(os.PathSeparator)
	}
	return dir[:i]
}

// Flags binds cfg's overridable fields to a FlagSet, for CLI-flag
// precedence above file and default values. Call fs.Parse, then read
// back the bound fields to obtain the final values.
type Flags struct {
	Host          *string
	Port          *uint
	QueueRoot     *string
	QueueWildcard *string
	ElectionOn    *bool
	ElectionPeers *string
	DiscoveryOn   *bool
	ConfigFile    *string
}

// BindFlags registers flags on fs seeded from cfg's current values.
func BindFlags(fs *flag.FlagSet, cfg AppConfig) *Flags {
	return &Flags{
		Host:          fs.String("host", cfg.WebServer.Host, "HTTP listen host"),
		Port:          fs.Uint("port", uint(cfg.WebServer.Port), "HTTP listen port"),
		QueueRoot:     fs.String("queue-root", cfg.Queue.Find.Root, "log queue root directory"),
		QueueWildcard: fs.String("queue-wildcard", cfg.Queue.Find.Wildcard, "log file name wildcard"),
		ElectionOn:    fs.Bool("election", cfg.Election.Enabled, "enable the election engine"),
		ElectionPeers: fs.String("election-peers", strings.Join(cfg.Election.Peers, ","), "comma-separated peer base URLs"),
		DiscoveryOn:   fs.Bool("discovery", cfg.Discovery.Enabled, "enable UDP peer discovery"),
		ConfigFile:    fs.String("config", "", "path to a JSON config file (overrides defaults, overridden by other flags)"),
	}
}

// Apply copies the parsed flag values back onto cfg.
func (f *Flags) Apply(cfg AppConfig) AppConfig {
	cfg.WebServer.Host = *f.Host
	cfg.WebServer.Port = uint16(*f.Port)
	cfg.Queue.Find.Root = *f.QueueRoot
	cfg.Queue.Find.Wildcard = *f.QueueWildcard
	cfg.Election.Enabled = *f.ElectionOn
	if *f.ElectionPeers != "" {
		cfg.Election.Peers = strings.Split(*f.ElectionPeers, ",")
	}
	cfg.Discovery.Enabled = *f.DiscoveryOn
	return cfg
}

// Load resolves the full defaults → file → flags precedence chain. fs
// must not have been parsed yet; Load parses it.
func Load(fs *flag.FlagSet, args []string) (AppConfig, error) {
	cfg := Default()

	// A first pass parse just to discover -config before binding the
	// real flag set, mirroring the file-then-flags precedence: file
	// values must load before the final flags are read back so flags
	// can still override them.
	probe := flag.NewFlagSet(fs.Name(), flag.ContinueOnError)
	probe.SetOutput(io.Discard)
	configFile := probe.String("config", "", "")
	probe.Bool("election", false, "")
	probe.String("election-peers", "", "")
	probe.Bool("discovery", false, "")
	probe.String("host", "", "")
	probe.Uint("port", 0, "")
	probe.String("queue-root", "", "")
	probe.String("queue-wildcard", "", "")
	_ = probe.Parse(args)

	if *configFile != "" {
		var err error
		cfg, err = LoadFile(cfg, *configFile)
		if err != nil {
			return cfg, err
		}
	} else if path, ok := FindUp(cfg.WorkDir, "dloghw.json"); ok {
		var err error
		cfg, err = LoadFile(cfg, path)
		if err != nil {
			return cfg, err
		}
	}

	flags := BindFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return flags.Apply(cfg), nil
}
