package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the meta-scheduler's full runtime configuration.
type Config struct {
	// DataDir is where the embedded bbolt store and Raft log live.
	DataDir string `yaml:"data_dir"`

	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Energy     EnergyConfig     `yaml:"energy_saving"`
	Fairsharing FairsharingConfig `yaml:"fairsharing"`
	Notify     NotifyConfig     `yaml:"notify"`
	API        APIConfig        `yaml:"api"`
	Raft       RaftConfig       `yaml:"raft"`
	Log        LogConfig        `yaml:"log"`
}

// SchedulerConfig mirrors OAR's SCHEDULER_* configuration keys.
type SchedulerConfig struct {
	JobSecurityTime                 int64  `yaml:"job_security_time"`
	ResourceOrder                   string `yaml:"resource_order"`
	HierarchyLabels                 string `yaml:"hierarchy_label"`
	ReservationWaitingResourcesTimeout int64 `yaml:"reservation_waiting_resources_timeout"`
	TimeoutSeconds                  int64  `yaml:"timeout"`
	AvailableSuspendedResourceType   string `yaml:"available_suspended_resource_type"`
	PolicyProgram                   string `yaml:"policy_program"`
	PolicyTimeoutSeconds             int64  `yaml:"policy_timeout"`
	IterationIntervalSeconds         int64  `yaml:"iteration_interval"`
}

// EnergyConfig mirrors OAR's Hulot/SCHEDULER_NODE_MANAGER_* keys.
type EnergyConfig struct {
	Enabled        bool   `yaml:"enabled"`
	HostLabel      string `yaml:"host_label"`
	IdleTime       int64  `yaml:"idle_time"`
	SleepTime      int64  `yaml:"sleep_time"`
	WakeupTime     int64  `yaml:"wakeup_time"`
	AgentEndpoint  string `yaml:"agent_endpoint"`
	AgentProgram   string `yaml:"agent_program"`
}

// FairsharingConfig mirrors OAR's FAIRSHARING_* keys.
type FairsharingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NotifyConfig configures the execution-agent and interactive-client
// notification transports.
type NotifyConfig struct {
	ExecutionAgentSocket string        `yaml:"execution_agent_socket"`
	DialTimeout          time.Duration `yaml:"dial_timeout"`
}

// APIConfig configures the read-only admin HTTP surface.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// RaftConfig configures the HA leadership layer.
type RaftConfig struct {
	NodeID    string   `yaml:"node_id"`
	BindAddr  string   `yaml:"bind_addr"`
	Bootstrap bool     `yaml:"bootstrap"`
	Peers     []string `yaml:"peers"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load reads and parses a YAML configuration file, applying defaults
// for anything the file leaves zero-valued.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a Config populated entirely with defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "/var/lib/batchsched"
	}
	if c.Scheduler.JobSecurityTime == 0 {
		c.Scheduler.JobSecurityTime = 60
	}
	if c.Scheduler.ResourceOrder == "" {
		c.Scheduler.ResourceOrder = "resource_id ASC"
	}
	if c.Scheduler.HierarchyLabels == "" {
		c.Scheduler.HierarchyLabels = "resource_id,network_address"
	}
	if c.Scheduler.ReservationWaitingResourcesTimeout == 0 {
		c.Scheduler.ReservationWaitingResourcesTimeout = 300
	}
	if c.Scheduler.TimeoutSeconds == 0 {
		c.Scheduler.TimeoutSeconds = 10
	}
	if c.Scheduler.AvailableSuspendedResourceType == "" {
		c.Scheduler.AvailableSuspendedResourceType = "default"
	}
	if c.Scheduler.PolicyTimeoutSeconds == 0 {
		c.Scheduler.PolicyTimeoutSeconds = 10
	}
	if c.Scheduler.IterationIntervalSeconds == 0 {
		c.Scheduler.IterationIntervalSeconds = 30
	}
	if c.Energy.HostLabel == "" {
		c.Energy.HostLabel = "network_address"
	}
	if c.Notify.DialTimeout == 0 {
		c.Notify.DialTimeout = 5 * time.Second
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8081"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// HierarchyLabelList splits Scheduler.HierarchyLabels on commas, e.g.
// "resource_id,network_address" -> ["resource_id", "network_address"].
func (c *Config) HierarchyLabelList() []string {
	parts := strings.Split(c.Scheduler.HierarchyLabels, ",")
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}

// Validate checks the configuration for values the scheduler cannot
// run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if len(c.HierarchyLabelList()) == 0 {
		return fmt.Errorf("scheduler.hierarchy_label must name at least one level")
	}
	if c.Scheduler.JobSecurityTime < 0 {
		return fmt.Errorf("scheduler.job_security_time must be >= 0")
	}
	if c.Energy.Enabled && c.Energy.AgentEndpoint == "" && c.Energy.AgentProgram == "" {
		return fmt.Errorf("energy_saving.enabled requires agent_endpoint or agent_program")
	}
	if c.Raft.Bootstrap && c.Raft.NodeID == "" {
		return fmt.Errorf("raft.node_id is required when raft.bootstrap is set")
	}
	return nil
}
