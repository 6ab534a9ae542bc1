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
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/numaproj/numawindow/pkg/operator"
	"github.com/numaproj/numawindow/pkg/shared/logging"
	"github.com/numaproj/numawindow/pkg/sinks/logger"
)

// PortDump is the JSON form of a restored port.
type PortDump struct {
	Port       string          `json:"port"`
	Descriptor string          `json:"descriptor"`
	Mode       string          `json:"mode"`
	Tuples     int64           `json:"tuples"`
	Partitions []PartitionDump `json:"partitions"`
}

type PartitionDump struct {
	Key    string               `json:"key"`
	Tuples []logger.TupleRecord `json:"tuples"`
}

func NewInspectCheckpointCommand() *cobra.Command {
	var (
		configFile string
		file       string
	)

	command := &cobra.Command{
		Use:   "inspect-checkpoint",
		Short: "Print the content of an operator checkpoint as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(newViper(configFile))
			if err != nil {
				return err
			}
			log := logging.NewLogger().Named("inspect-checkpoint")
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = logging.WithLogger(ctx, log)
			data, err := readCheckpoint(ctx, cfg, file)
			if err != nil {
				return err
			}
			dump, err := inspect(ctx, cfg, data)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(dump)
		},
	}
	command.Flags().StringVarP(&configFile, "config", "c", "numawindow.yaml", "Path to the operator configuration file")
	command.Flags().StringVarP(&file, "file", "f", "", "Read the checkpoint from a file instead of the configured store")
	return command
}

func readCheckpoint(ctx context.Context, cfg *Config, file string) ([]byte, error) {
	if file != "" {
		return os.ReadFile(file)
	}
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	data, err := store.Get(ctx, cfg.Checkpoint.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s from store %s: %w", cfg.Checkpoint.Key, store.Name(), err)
	}
	return data, nil
}

// inspect restores the checkpoint into the configured ports and dumps them.
func inspect(ctx context.Context, cfg *Config, data []byte) (out []PortDump, err error) {
	op, _, err := buildOperator(ctx, cfg, false)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := op.Close(ctx); err == nil {
			err = cerr
		}
	}()
	if err := op.Reset(ctx, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to restore checkpoint: %w", err)
	}
	return dumpPorts(ctx, op)
}

func dumpPorts(ctx context.Context, op *operator.Operator) ([]PortDump, error) {
	var out []PortDump
	for _, p := range op.Ports() {
		w := p.Window()
		if err := w.LockContext(ctx); err != nil {
			return nil, err
		}
		d := PortDump{
			Port:       p.Port(),
			Descriptor: w.Descriptor().String(),
			Mode:       w.Mode().String(),
			Tuples:     w.TupleCount(),
			Partitions: []PartitionDump{},
		}
		partitions := w.ActiveWindowPartitions()
		sort.Slice(partitions, func(i, j int) bool { return partitions[i].Key() < partitions[j].Key() })
		for _, part := range partitions {
			pd := PartitionDump{Key: part.Key(), Tuples: []logger.TupleRecord{}}
			for _, t := range part.View().Tuples() {
				pd.Tuples = append(pd.Tuples, logger.NewTupleRecord(t))
			}
			d.Partitions = append(d.Partitions, pd)
		}
		w.Unlock()
		out = append(out, d)
	}
	return out, nil
}
