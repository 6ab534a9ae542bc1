/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/numaproj/numawindow/pkg/checkpoint"
	fsstore "github.com/numaproj/numawindow/pkg/checkpoint/store/fs"
	"github.com/numaproj/numawindow/pkg/checkpoint/store/inmem"
	redisstore "github.com/numaproj/numawindow/pkg/checkpoint/store/redis"
	"github.com/numaproj/numawindow/pkg/operator"
	"github.com/numaproj/numawindow/pkg/sinks/logger"
	"github.com/numaproj/numawindow/pkg/sources"
	"github.com/numaproj/numawindow/pkg/sources/generator"
	"github.com/numaproj/numawindow/pkg/sources/kafka"
	"github.com/numaproj/numawindow/pkg/window"
)

// EnvPrefix prefixes the environment variables overriding the configuration file, e.g. NUMAWINDOW_SERVER_PORT.
const EnvPrefix = "NUMAWINDOW"

// Config is the configuration file of an operator.
type Config struct {
	Name       string           `mapstructure:"name"`
	LogLevel   string           `mapstructure:"logLevel"`
	Server     ServerConfig     `mapstructure:"server"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Ports      []PortConfig     `mapstructure:"ports"`
}

type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CheckpointConfig selects the checkpoint store and the cron schedule of periodic checkpoints.
type CheckpointConfig struct {
	Store    string   `mapstructure:"store"`
	Schedule string   `mapstructure:"schedule"`
	Key      string   `mapstructure:"key"`
	Dir      string   `mapstructure:"dir"`
	Redis    []string `mapstructure:"redis"`
}

// PortConfig is a windowed input port. Window holds the parameters understood by window.Decode.
type PortConfig struct {
	Name        string                 `mapstructure:"name"`
	Window      map[string]interface{} `mapstructure:"window"`
	PartitionBy PartitionByConfig      `mapstructure:"partitionBy"`
	Source      SourceConfig           `mapstructure:"source"`
	LogEvents   bool                   `mapstructure:"logEvents"`
}

// PartitionByConfig selects the partitioner, the tuple keys by default.
type PartitionByConfig struct {
	HashBuckets int    `mapstructure:"hashBuckets"`
	Expression  string `mapstructure:"expression"`
}

type SourceConfig struct {
	Type      string          `mapstructure:"type"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

type GeneratorConfig struct {
	RPU       int           `mapstructure:"rpu"`
	TimeUnit  time.Duration `mapstructure:"timeUnit"`
	MsgSize   int           `mapstructure:"msgSize"`
	KeyCount  int           `mapstructure:"keyCount"`
	Limit     int64         `mapstructure:"limit"`
	MarkEvery int           `mapstructure:"markEvery"`
}

type KafkaConfig struct {
	Topic           string   `mapstructure:"topic"`
	Brokers         []string `mapstructure:"brokers"`
	Group           string   `mapstructure:"group"`
	Config          string   `mapstructure:"config"`
	EventTimeHeader string   `mapstructure:"eventTimeHeader"`
}

func newViper(configFile string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("name", "numawindow")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8490)
	v.SetDefault("checkpoint.store", "inmem")
	v.SetDefault("checkpoint.key", "operator")
	v.SetDefault("checkpoint.schedule", "@every 30s")
	return v
}

// LoadConfig reads and validates the configuration file.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if len(cfg.Ports) == 0 {
		return nil, fmt.Errorf("no ports configured")
	}
	seen := make(map[string]bool, len(cfg.Ports))
	for _, p := range cfg.Ports {
		if p.Name == "" {
			return nil, fmt.Errorf("port without a name")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("port %s configured twice", p.Name)
		}
		seen[p.Name] = true
	}
	return cfg, nil
}

func (p PortConfig) partitioner() (window.Partitioner, error) {
	switch {
	case p.PartitionBy.Expression != "" && p.PartitionBy.HashBuckets > 0:
		return nil, fmt.Errorf("port %s: partitionBy takes either an expression or hash buckets", p.Name)
	case p.PartitionBy.Expression != "":
		return window.ExprPartitioner(p.PartitionBy.Expression)
	case p.PartitionBy.HashBuckets > 0:
		return window.HashPartitioner(p.PartitionBy.HashBuckets)
	default:
		return window.KeysPartitioner(), nil
	}
}

func (p PortConfig) source(ctx context.Context) (sources.Source, error) {
	name := p.Name + "-source"
	switch strings.ToLower(p.Source.Type) {
	case "", "generator":
		g := p.Source.Generator
		opts := []generator.Option{generator.WithLimit(g.Limit), generator.WithMarkEvery(g.MarkEvery)}
		if g.RPU > 0 {
			opts = append(opts, generator.WithRPU(g.RPU))
		}
		if g.TimeUnit > 0 {
			opts = append(opts, generator.WithTimeUnit(g.TimeUnit))
		}
		if g.MsgSize > 0 {
			opts = append(opts, generator.WithMsgSize(g.MsgSize))
		}
		if g.KeyCount > 0 {
			opts = append(opts, generator.WithKeyCount(g.KeyCount))
		}
		return generator.NewMemGen(ctx, name, opts...)
	case "kafka":
		k := p.Source.Kafka
		var opts []kafka.Option
		if k.Group != "" {
			opts = append(opts, kafka.WithGroupName(k.Group))
		}
		if k.Config != "" {
			opts = append(opts, kafka.WithYAMLConfig(k.Config))
		}
		if k.EventTimeHeader != "" {
			opts = append(opts, kafka.WithEventTimeHeader(k.EventTimeHeader))
		}
		return kafka.NewKafkaSource(ctx, name, k.Topic, k.Brokers, opts...)
	default:
		return nil, fmt.Errorf("port %s: unsupported source type %q", p.Name, p.Source.Type)
	}
}

// buildOperator creates the operator and its ports. The sources are only built when withSources is set.
func buildOperator(ctx context.Context, cfg *Config, withSources bool) (*operator.Operator, map[string]sources.Source, error) {
	op := operator.New(ctx, cfg.Name)
	bindings := make(map[string]sources.Source, len(cfg.Ports))
	for _, pc := range cfg.Ports {
		desc, err := window.Decode(pc.Window)
		if err != nil {
			_ = op.Close(ctx)
			return nil, nil, fmt.Errorf("port %s: %w", pc.Name, err)
		}
		partitioner, err := pc.partitioner()
		if err != nil {
			_ = op.Close(ctx)
			return nil, nil, err
		}
		sink, err := logger.NewToLog(cfg.Name + "/" + pc.Name)
		if err != nil {
			_ = op.Close(ctx)
			return nil, nil, err
		}
		port := operator.PortConfig{
			Name:        pc.Name,
			Descriptor:  desc,
			Partitioner: partitioner,
			Forwarder:   sink,
		}
		if pc.LogEvents {
			port.Listener = sink
		}
		if _, err := op.AddPort(ctx, port); err != nil {
			_ = op.Close(ctx)
			return nil, nil, err
		}
		if !withSources {
			continue
		}
		src, err := pc.source(ctx)
		if err != nil {
			_ = op.Close(ctx)
			return nil, nil, err
		}
		bindings[pc.Name] = src
	}
	return op, bindings, nil
}

func newStore(ctx context.Context, cfg *Config) (checkpoint.Store, error) {
	c := cfg.Checkpoint
	switch strings.ToLower(c.Store) {
	case "", "inmem":
		return inmem.NewStore(ctx, cfg.Name), nil
	case "fs":
		if c.Dir == "" {
			return nil, fmt.Errorf("the fs checkpoint store requires a dir")
		}
		return fsstore.NewStore(ctx, c.Dir)
	case "redis":
		if len(c.Redis) == 0 {
			return nil, fmt.Errorf("the redis checkpoint store requires at least one address")
		}
		return redisstore.NewStore(ctx, cfg.Name, &redis.UniversalOptions{Addrs: c.Redis}), nil
	default:
		return nil, fmt.Errorf("unsupported checkpoint store %q", c.Store)
	}
}
