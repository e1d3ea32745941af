// Command clusterstatsd polls statistics from one or more Dell
// PowerScale/Isilon OneFS clusters, computes the configured derived
// stats, and writes everything to the configured processor backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tenortim/clusterstatsd/internal/config"
	"github.com/tenortim/clusterstatsd/internal/isiapi"
	"github.com/tenortim/clusterstatsd/internal/logging"
	"github.com/tenortim/clusterstatsd/internal/netutil"
	"github.com/tenortim/clusterstatsd/internal/processor"
	"github.com/tenortim/clusterstatsd/internal/schedule"
	"github.com/tenortim/clusterstatsd/internal/sink/discard"
	"github.com/tenortim/clusterstatsd/internal/sink/influxdb"
	"github.com/tenortim/clusterstatsd/internal/sink/influxdbv2"
	"github.com/tenortim/clusterstatsd/internal/sink/prometheus"
	"github.com/tenortim/clusterstatsd/internal/stats"
)

// Version is the released program version.
const Version = "0.1"

// Config file plugin names.
const (
	discardPluginName  = "discard"
	influxPluginName   = "influxdb"
	influxV2PluginName = "influxdbv2"
	promPluginName     = "prometheus"
)

func main() {
	earlyLog := logging.Early()

	logFileName := flag.String("logfile", "", "pathname of log file")
	configFileName := flag.String("config-file", "clusterstatsd.toml", "pathname of config file")
	versionFlag := flag.Bool("version", false, "print application version")
	logLevel := flag.String("loglevel", "", "log level [TRACE|DEBUG|INFO|NOTICE|WARNING|ERROR|CRITICAL]")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("clusterstatsd version: %s\n", Version)
		return
	}

	conf := config.MustLoad(*configFileName)

	log, err := logging.Setup(logging.Config{
		LogFile:     conf.Logging.LogFile,
		LogLevel:    conf.Logging.LogLevel,
		LogToStdout: conf.Logging.LogToStdout,
	}, *logLevel, *logFileName)
	if err != nil {
		earlyLog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	log.Log(ctx, logging.LevelNotice, "starting clusterstatsd", "version", Version)

	if len(conf.StatGroups) == 0 {
		log.Error("no stat groups found in config file, unable to start collection")
		os.Exit(1)
	}

	clients := make(map[string]*isiapi.OneFSClient)
	var clusters []stats.ClusterConfig
	for _, ce := range conf.Clusters {
		if ce.Disabled {
			log.Info("skipping disabled cluster", "cluster", ce.Hostname)
			continue
		}
		if ce.Username == "" || ce.Password == "" {
			log.Error("username and password must be set", "cluster", ce.Hostname)
			continue
		}
		password, err := config.SecretFromEnv(ce.Password)
		if err != nil {
			log.Error("unable to retrieve password from environment", "cluster", ce.Hostname, "error", err)
			continue
		}
		preserveCase := conf.Global.PreserveCase
		if ce.PreserveCase != nil {
			preserveCase = *ce.PreserveCase
		}

		client := isiapi.New(ce.Hostname, ce.Username, password, ce.AuthType, ce.SSLCheck, conf.Global.MaxRetries, preserveCase, log)
		if err := client.Connect(ctx); err != nil {
			log.Error("connection failed", "cluster", ce.Hostname, "error", err)
			continue
		}
		log.Info("connected", "cluster", client.ClusterName, "version", client.OSVersion)

		cc := stats.ClusterConfig{
			Address: ce.Hostname,
			Name:    client.ClusterName,
			Version: apiVersionFor(client.OSVersion),
			Handle:  client,
		}
		clients[cc.Address] = client
		clusters = append(clusters, cc)
	}
	if len(clusters) == 0 {
		log.Error("no clusters connected, nothing to collect")
		os.Exit(1)
	}

	statsConfigs, err := config.BuildStatsConfigs(log, conf, clusters)
	if err != nil {
		log.Error("failed to build stat group configuration", "error", err)
		os.Exit(1)
	}

	resolver := schedule.NewResolver()
	registry := schedule.NewRegistry(resolver)
	for _, sc := range statsConfigs {
		if err := registry.AddStats(ctx, sc); err != nil {
			log.Error("failed to register stat group", "error", err)
			os.Exit(1)
		}
	}

	sinkImpl, err := buildSink(conf, log)
	if err != nil {
		log.Error("failed to configure processor backend", "backend", conf.Global.Processor, "error", err)
		os.Exit(1)
	}
	adapter, err := processor.New(sinkImpl, log)
	if err != nil {
		log.Error("failed to adapt processor backend", "backend", conf.Global.Processor, "error", err)
		os.Exit(1)
	}
	if err := adapter.Start(nil); err != nil {
		log.Error("failed to start processor backend", "backend", conf.Global.Processor, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := adapter.Stop(); err != nil {
			log.Error("failed to stop processor backend cleanly", "error", err)
		}
	}()

	if conf.Global.Processor == promPluginName && conf.PromSD.Enabled {
		if err := netutil.StartPromSDListener(ctx, conf.PromSD.ListenAddr, conf.PromSD.SDPort, []uint64{promSDTargetPort(conf.Prometheus.ListenAddr)}, log); err != nil {
			log.Error("failed to start prometheus HTTP SD listener", "error", err)
		}
	}

	fanOut := schedule.NewFanOut(func(cc stats.ClusterConfig) isiapi.Client {
		return clients[cc.Address]
	}, adapter, log, conf.Global.Debug)

	scheduler := schedule.NewScheduler(registry, fanOut, log)
	log.Log(ctx, logging.LevelNotice, "entering collection loop")
	scheduler.Run(ctx)
	log.Log(ctx, logging.LevelNotice, "all collectors complete, exiting")
}

// apiVersionFor maps a cluster's reported OneFS release string to the API
// major version the scheduling core cares about: whether the v8.0+ batch
// query_stats endpoint is available.
func apiVersionFor(osVersion string) float64 {
	if len(osVersion) >= 1 && osVersion[0] >= '8' {
		return 8.0
	}
	return 7.2
}

// promSDTargetPort extracts the bare port from a "host:port" style
// listen address for use in the SD document's target list.
func promSDTargetPort(listenAddr string) uint64 {
	var port uint64
	for i := len(listenAddr) - 1; i >= 0; i-- {
		if listenAddr[i] == ':' {
			fmt.Sscanf(listenAddr[i+1:], "%d", &port)
			break
		}
	}
	return port
}

// buildSink constructs the configured processor plugin named by
// stats_processor.
func buildSink(conf *config.File, log *slog.Logger) (any, error) {
	switch conf.Global.Processor {
	case discardPluginName:
		return discard.New(), nil
	case influxPluginName:
		return influxdb.New(conf.InfluxDB, log), nil
	case influxV2PluginName:
		return influxdbv2.New(conf.InfluxDBv2, log), nil
	case promPluginName:
		return prometheus.New(conf.Prometheus, conf.Prometheus.ListenAddr, log), nil
	default:
		return nil, fmt.Errorf("unsupported processor backend %q", conf.Global.Processor)
	}
}
