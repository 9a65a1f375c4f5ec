package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML).
	App struct {
		// dev | staging | prod
		Env      string `yaml:"app_env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr         string        `yaml:"addr"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Cluster struct {
		NodeID          string            `yaml:"node_id" json:"nodeId"`
		RaftAddr        string            `yaml:"raft_addr" json:"raftAddr"`
		RaftDir         string            `yaml:"raft_dir" json:"raftDir"`
		Nodes           map[string]string `yaml:"nodes" json:"nodes"`                      // nodeID -> host:port (raft)
		LeaderRedirects map[string]string `yaml:"leader_redirects" json:"leaderRedirects"` // nodeID -> baseURL
		// Bootstrap
		BootstrapPreferred bool `yaml:"bootstrap_preferred" json:"bootstrapPreferred"`
		DisableBootstrap   bool `yaml:"disable_bootstrap" json:"disableBootstrap"`

		SnapshotThreshold   uint64        `yaml:"snapshot_threshold" json:"snapshotThreshold"`
		SnapshotCompression bool          `yaml:"snapshot_compression" json:"snapshotCompression"`
		ApplyTimeout        time.Duration `yaml:"apply_timeout" json:"applyTimeout"`

		// TLS para el transporte Raft (opcional, mTLS cuando está habilitado)
		RaftTLSEnable     bool   `yaml:"raft_tls_enable" json:"raftTlsEnable"`
		RaftTLSCertFile   string `yaml:"raft_tls_cert_file" json:"raftTlsCertFile"`
		RaftTLSKeyFile    string `yaml:"raft_tls_key_file" json:"raftTlsKeyFile"`
		RaftTLSCAFile     string `yaml:"raft_tls_ca_file" json:"raftTlsCaFile"`
		RaftTLSServerName string `yaml:"raft_tls_server_name" json:"raftTlsServerName"`
	} `yaml:"cluster" json:"cluster"`

	// Node: identidad de este participante en la constitución.
	Node struct {
		Identifier         string        `yaml:"identifier"`
		ConsensusGraceSpan time.Duration `yaml:"consensus_grace_span"`
		GenesisFile        string        `yaml:"genesis_file"`
	} `yaml:"node"`

	API struct {
		InteractivityDebounce time.Duration `yaml:"interactivity_debounce"`
		// AdminKey protege /v1/cluster (vacío = deshabilitado).
		AdminKey string `yaml:"admin_key"`
	} `yaml:"api"`

	// Checkpoint periódico del estado (vacío = deshabilitado).
	Checkpoint struct {
		Path     string        `yaml:"path"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"checkpoint"`
}

// Load lee path (si no es vacío), aplica defaults y overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	c.applyDefaults()

	// Overrides por env
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Normalizar rutas relativas respecto al directorio del YAML
	if path != "" {
		base := filepath.Dir(path)
		c.Node.GenesisFile = resolvePath(base, c.Node.GenesisFile)
		c.Cluster.RaftDir = resolvePath(base, c.Cluster.RaftDir)
		c.Checkpoint.Path = resolvePath(base, c.Checkpoint.Path)
	}

	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Cluster.RaftDir == "" {
		c.Cluster.RaftDir = "./data/raft"
	}
	if c.Cluster.ApplyTimeout == 0 {
		c.Cluster.ApplyTimeout = 5 * time.Second
	}
	if c.Cluster.Nodes == nil {
		c.Cluster.Nodes = map[string]string{}
	}
	if c.Cluster.LeaderRedirects == nil {
		c.Cluster.LeaderRedirects = map[string]string{}
	}
	if c.Node.GenesisFile == "" {
		c.Node.GenesisFile = "genesis.jsonc"
	}
	if c.API.InteractivityDebounce == 0 {
		c.API.InteractivityDebounce = time.Second
	}
	if c.Checkpoint.Path != "" && c.Checkpoint.Interval == 0 {
		c.Checkpoint.Interval = 10 * time.Minute
	}
}

func resolvePath(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// IsProd reporta si APP_ENV es prod.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvDur("SERVER_READ_TIMEOUT"); ok {
		c.Server.ReadTimeout = v
	}
	if v, ok := getEnvDur("SERVER_WRITE_TIMEOUT"); ok {
		c.Server.WriteTimeout = v
	}

	// ───── Cluster ─────
	if v, ok := getEnvStr("NODE_ID"); ok {
		c.Cluster.NodeID = strings.TrimSpace(v)
	}
	if v, ok := getEnvStr("RAFT_ADDR"); ok {
		c.Cluster.RaftAddr = strings.TrimSpace(v)
	}
	if v, ok := getEnvStr("RAFT_DIR"); ok {
		c.Cluster.RaftDir = strings.TrimSpace(v)
	}
	// CLUSTER_NODES="n1=127.0.0.1:8201;n2=127.0.0.1:8202"
	if m, ok := getEnvKVList("CLUSTER_NODES", ";"); ok {
		for k, v := range m {
			c.Cluster.Nodes[k] = v
		}
	}
	// LEADER_REDIRECTS="n1=http://127.0.0.1:8081;n2=http://127.0.0.1:8082"
	if m, ok := getEnvKVList("LEADER_REDIRECTS", ";"); ok {
		for k, v := range m {
			c.Cluster.LeaderRedirects[k] = v
		}
	}
	if v, ok := getEnvBool("RAFT_BOOTSTRAP_PREFERRED"); ok {
		c.Cluster.BootstrapPreferred = v
	}
	if v, ok := getEnvBool("RAFT_DISABLE_BOOTSTRAP"); ok {
		c.Cluster.DisableBootstrap = v
	}
	if v, ok := getEnvInt("RAFT_SNAPSHOT_THRESHOLD"); ok && v >= 0 {
		c.Cluster.SnapshotThreshold = uint64(v)
	}
	if v, ok := getEnvBool("RAFT_SNAPSHOT_COMPRESSION"); ok {
		c.Cluster.SnapshotCompression = v
	}
	if v, ok := getEnvDur("RAFT_APPLY_TIMEOUT"); ok {
		c.Cluster.ApplyTimeout = v
	}

	// Raft TLS (opcional)
	if v, ok := getEnvBool("RAFT_TLS_ENABLE"); ok {
		c.Cluster.RaftTLSEnable = v
	}
	if v, ok := getEnvStr("RAFT_TLS_CERT_FILE"); ok {
		c.Cluster.RaftTLSCertFile = v
	} else if v, ok := getEnvStr("RAFT_TLS_CERT"); ok {
		// alias
		c.Cluster.RaftTLSCertFile = v
	}
	if v, ok := getEnvStr("RAFT_TLS_KEY_FILE"); ok {
		c.Cluster.RaftTLSKeyFile = v
	} else if v, ok := getEnvStr("RAFT_TLS_KEY"); ok {
		c.Cluster.RaftTLSKeyFile = v
	}
	if v, ok := getEnvStr("RAFT_TLS_CA_FILE"); ok {
		c.Cluster.RaftTLSCAFile = v
	} else if v, ok := getEnvStr("RAFT_TLS_CA"); ok {
		c.Cluster.RaftTLSCAFile = v
	}
	if v, ok := getEnvStr("RAFT_TLS_SERVER_NAME"); ok {
		c.Cluster.RaftTLSServerName = v
	}

	// NODE
	if v, ok := getEnvStr("NODE_IDENTIFIER"); ok {
		c.Node.Identifier = strings.TrimSpace(v)
	}
	if v, ok := getEnvDur("CONSENSUS_GRACE_SPAN"); ok {
		c.Node.ConsensusGraceSpan = v
	}
	if v, ok := getEnvStr("GENESIS_FILE"); ok {
		c.Node.GenesisFile = strings.TrimSpace(v)
	}

	// API
	if v, ok := getEnvDur("INTERACTIVITY_DEBOUNCE"); ok {
		c.API.InteractivityDebounce = v
	}
	if v, ok := getEnvStr("ADMIN_API_KEY"); ok {
		c.API.AdminKey = strings.TrimSpace(v)
	}

	// CHECKPOINT
	if v, ok := getEnvStr("CHECKPOINT_PATH"); ok {
		c.Checkpoint.Path = strings.TrimSpace(v)
		if c.Checkpoint.Interval == 0 {
			c.Checkpoint.Interval = 10 * time.Minute
		}
	}
	if v, ok := getEnvDur("CHECKPOINT_INTERVAL"); ok {
		c.Checkpoint.Interval = v
	}
}

// Validate revisa los valores críticos. Junta todos los problemas en un solo error.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Cluster.NodeID) == "" {
		errs = append(errs, errors.New("cluster.node_id is required"))
	}
	if strings.TrimSpace(c.Cluster.RaftAddr) == "" {
		errs = append(errs, errors.New("cluster.raft_addr is required"))
	}
	if strings.TrimSpace(c.Node.Identifier) == "" {
		errs = append(errs, errors.New("node.identifier is required"))
	}
	if c.Node.ConsensusGraceSpan < 0 {
		errs = append(errs, errors.New("node.consensus_grace_span must not be negative"))
	}
	if c.API.InteractivityDebounce < 0 {
		errs = append(errs, errors.New("api.interactivity_debounce must not be negative"))
	}
	if c.Cluster.ApplyTimeout <= 0 {
		errs = append(errs, errors.New("cluster.apply_timeout must be positive"))
	}
	if len(c.Cluster.Nodes) > 0 {
		if _, ok := c.Cluster.Nodes[c.Cluster.NodeID]; !ok && c.Cluster.NodeID != "" {
			errs = append(errs, fmt.Errorf("cluster.nodes does not contain node %q", c.Cluster.NodeID))
		}
	}
	if c.Cluster.RaftTLSEnable && (c.Cluster.RaftTLSCertFile == "" || c.Cluster.RaftTLSKeyFile == "" || c.Cluster.RaftTLSCAFile == "") {
		errs = append(errs, errors.New("raft tls requires cert, key and ca files"))
	}
	if c.Checkpoint.Path != "" && c.Checkpoint.Interval < time.Second {
		errs = append(errs, errors.New("checkpoint.interval must be at least 1s"))
	}
	return errors.Join(errs...)
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		// split at first '='
		if i := strings.IndexRune(it, '='); i > 0 {
			k := strings.TrimSpace(it[:i])
			v := strings.TrimSpace(it[i+1:])
			if k != "" && v != "" {
				out[k] = v
			}
		}
	}
	return out
}

func getEnvKVList(key, sep string) (map[string]string, bool) {
	if s, ok := getEnvStr(key); ok {
		return parseKVList(s, sep), true
	}
	return nil, false
}
