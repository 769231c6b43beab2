// Package config loads and validates the gateway's YAML configuration
// and exposes typed, read-mostly views of it to the rest of the core.
package config

// RoutingMode selects the forwarder's dispatch behavior.
type RoutingMode string

const (
	ModeDummy    RoutingMode = "dummy"
	ModeArchive  RoutingMode = "archive"
	ModeWorkers  RoutingMode = "workers"
	ModeGateway  RoutingMode = "gateway"
	ModeParallel RoutingMode = "parallel"
)

// EndpointConfig describes an outbound DIMSE peer (archive or worker).
type EndpointConfig struct {
	Host           string `yaml:"host" json:"host"`
	Port           int    `yaml:"port" json:"port"`
	AETitle        string `yaml:"ae_title" json:"ae_title"`
	TimeoutSeconds int    `yaml:"timeout_s" json:"timeout_s"`
}

// EdgeConfig is the process-identity and filesystem layout view.
type EdgeConfig struct {
	AETitle             string   `yaml:"ae_title" json:"ae_title"`
	Port                int      `yaml:"port" json:"port"`
	DataRoot            string   `yaml:"data_root" json:"data_root"`
	LogPath             string   `yaml:"log_path" json:"log_path"`
	StorePath           string   `yaml:"store_path" json:"store_path"`
	AllowedCallingAETs  []string `yaml:"allowed_calling_aets" json:"allowed_calling_aets"`
}

// RoutingConfig is the forwarder's dispatch policy.
type RoutingConfig struct {
	Mode                RoutingMode      `yaml:"mode" json:"mode"`
	MaxRetries          int              `yaml:"max_retries" json:"max_retries"`
	BackoffBaseSeconds  int              `yaml:"backoff_base_seconds" json:"backoff_base_seconds"`
	PollIntervalSeconds int              `yaml:"poll_interval_seconds" json:"poll_interval_seconds"`
	Archive             EndpointConfig   `yaml:"archive" json:"archive"`
	Workers             []EndpointConfig `yaml:"workers" json:"workers"`
}

// FaultConfig is the re-read-every-call fault injection snapshot.
type FaultConfig struct {
	RejectAll      bool    `yaml:"reject_all" json:"reject_all"`
	DiskFull       bool    `yaml:"disk_full" json:"disk_full"`
	IODelayMS      int     `yaml:"io_delay_ms" json:"io_delay_ms"`
	RandomFailRate float64 `yaml:"random_fail_rate" json:"random_fail_rate"`
}

// document mirrors config.yaml's top-level shape.
type document struct {
	Edge           EdgeConfig    `yaml:"edge" json:"edge"`
	Forwarder      RoutingConfig `yaml:"forwarder" json:"forwarder"`
	FaultInjection FaultConfig   `yaml:"fault_injection" json:"fault_injection"`
}

// FaultPresets mirrors cli.py's FAULT_PRESETS: the fields `inject-fault
// <name>` sets, one fault at a time.
var FaultPresets = map[string]FaultConfig{
	"reject_all":       {RejectAll: true},
	"disk_full":        {DiskFull: true},
	"io_delay_ms":      {IODelayMS: 500},
	"random_fail_rate": {RandomFailRate: 0.3},
}
