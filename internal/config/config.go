// Package config loads and validates the daemon's TOML configuration file.
package config

import (
	"fmt"
	"math"
	"os"

	"github.com/BurntSushi/toml"
)

// Version is the config-file format version this collector accepts; Load
// rejects a file whose version field names any other value.
const Version = "1.0"

const (
	defaultMinUpdateInterval = 30
	defaultMaxRetries        = 8
	defaultProcessorRetries  = 8
	defaultProcessorInterval = 5
	defaultPreserveCase      = false
)

// File is the top-level structure of the config file.
type File struct {
	Global         GlobalConfig     `toml:"global"`
	Logging        LoggingConfig    `toml:"logging"`
	InfluxDB       InfluxDBConfig   `toml:"influxdb"`
	InfluxDBv2     InfluxDBv2Config `toml:"influxdbv2"`
	Prometheus     PrometheusConfig `toml:"prometheus"`
	PromSD         PromSDConfig     `toml:"prom_http_sd"`
	Clusters       []ClusterEntry   `toml:"cluster"`
	StatGroups     []StatGroupEntry `toml:"statgroup"`
}

// GlobalConfig holds settings that apply across every cluster.
type GlobalConfig struct {
	ConfigVersion       string   `toml:"version"`
	Processor           string   `toml:"stats_processor"`
	ProcessorMaxRetries int      `toml:"stats_processor_max_retries"`
	ProcessorRetryIntvl int      `toml:"stats_processor_retry_interval"`
	MinUpdateIntvl      int      `toml:"min_update_interval_override"`
	MaxRetries          int      `toml:"max_retries"`
	ActiveStatGroups    []string `toml:"active_stat_groups"`
	PreserveCase        bool     `toml:"preserve_case"`
	Debug               bool     `toml:"debug"`
}

// LoggingConfig is the [logging] section, copied into internal/logging.Config
// at startup. It has no key for logging.Config's LogFileFormat, so a log
// file is always written in text format.
type LoggingConfig struct {
	LogFile     *string `toml:"logfile"`
	LogLevel    *string `toml:"log_level"`
	LogToStdout bool    `toml:"log_to_stdout"`
}

// InfluxDBConfig configures the InfluxDB 1.x line-protocol sink.
type InfluxDBConfig struct {
	Host          string `toml:"host"`
	Port          string `toml:"port"`
	Database      string `toml:"database"`
	Authenticated bool   `toml:"authenticated"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
}

// InfluxDBv2Config configures the InfluxDB 2.x sink.
type InfluxDBv2Config struct {
	Host   string `toml:"host"`
	Port   string `toml:"port"`
	Org    string `toml:"org"`
	Bucket string `toml:"bucket"`
	Token  string `toml:"access_token"`
}

// PrometheusConfig configures the Prometheus exposition sink.
type PrometheusConfig struct {
	ListenAddr    string `toml:"listen_addr"`
	Authenticated bool   `toml:"authenticated"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	TLSCert       string `toml:"tls_cert"`
	TLSKey        string `toml:"tls_key"`
}

// PromSDConfig configures the Prometheus HTTP service-discovery listener.
type PromSDConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
	SDPort     uint64 `toml:"sd_port"`
}

// ClusterEntry is one [[cluster]] table.
type ClusterEntry struct {
	Hostname     string  `toml:"hostname"`
	Username     string  `toml:"username"`
	Password     string  `toml:"password"`
	AuthType     string  `toml:"auth_type"`
	SSLCheck     bool    `toml:"verify-ssl"`
	Disabled     bool    `toml:"disabled"`
	PreserveCase *bool   `toml:"preserve_case"`
	Port         uint64  `toml:"port"`
}

// StatGroupEntry is one [[statgroup]] table: a named collection of stats,
// the derived-stat specs computed from them, and the update interval to
// poll at.
type StatGroupEntry struct {
	Name           string               `toml:"name"`
	UpdateIntvl    string               `toml:"update_interval"`
	Stats          []string             `toml:"stats"`
	Composites     []CompositeEntry     `toml:"composite"`
	Equations      []EquationEntry      `toml:"equation"`
	PercentChanges []PercentChangeEntry `toml:"percent_change"`
	FinalEquations []EquationEntry      `toml:"final_equation"`
}

// CompositeEntry configures one cluster-level aggregate derived stat.
type CompositeEntry struct {
	Input  string `toml:"input"`
	Output string `toml:"output"`
	Op     string `toml:"op"`
}

// EquationEntry configures one algebraic derived stat. Inputs are either
// bare stat names or "name#field.path" to extract a nested field.
type EquationEntry struct {
	Inputs []string `toml:"inputs"`
	Output string   `toml:"output"`
	Expr   string   `toml:"expr"`
}

// PercentChangeEntry configures one percent-change derived stat.
type PercentChangeEntry struct {
	Input  string `toml:"input"`
	Output string `toml:"output"`
}

// Load reads and validates the config file at path, applying the same
// sensible defaults, returning an error instead of calling os.Exit so
// callers can log and exit on their own terms.
func Load(path string) (*File, error) {
	var f File
	f.Global.MaxRetries = defaultMaxRetries
	f.Global.ProcessorMaxRetries = defaultProcessorRetries
	f.Global.ProcessorRetryIntvl = defaultProcessorInterval
	f.Global.MinUpdateIntvl = defaultMinUpdateInterval
	f.Global.PreserveCase = defaultPreserveCase

	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := validateVersion(f.Global.ConfigVersion); err != nil {
		return nil, err
	}

	if f.Global.MaxRetries <= 0 {
		f.Global.MaxRetries = math.MaxInt
	}
	if f.Global.ProcessorMaxRetries <= 0 {
		f.Global.ProcessorMaxRetries = math.MaxInt
	}

	return &f, nil
}

func validateVersion(confVersion string) error {
	if confVersion == "" {
		return fmt.Errorf("config file must declare a version (see the example config)")
	}
	switch confVersion {
	case "1.0":
		return nil
	default:
		return fmt.Errorf("config file version %q is not compatible with collector version %s", confVersion, Version)
	}
}

// MustLoad reads the config file or terminates the process, for the
// common case of a fatal config error at the CLI entry point.
func MustLoad(path string) *File {
	f, err := Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(1)
	}
	return f
}
