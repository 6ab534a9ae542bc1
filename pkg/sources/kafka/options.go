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

package kafka

import (
	"bytes"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/spf13/viper"
)

// Option configures the kafka source.
type Option func(*kafkaSource) error

// WithGroupName consumes through a consumer group. Without a group the source reads every partition of the
// topic directly.
func WithGroupName(gn string) Option {
	return func(o *kafkaSource) error {
		o.groupName = gn
		return nil
	}
}

// WithEventTimeHeader takes the event time of a tuple from a message header instead of the message timestamp.
func WithEventTimeHeader(name string) Option {
	return func(o *kafkaSource) error {
		o.eventTimeHeader = name
		return nil
	}
}

// WithConfig sets the sarama config.
func WithConfig(cfg *sarama.Config) Option {
	return func(o *kafkaSource) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid sarama config, %w", err)
		}
		o.config = cfg
		return nil
	}
}

// WithYAMLConfig sets the sarama config from its yaml form.
func WithYAMLConfig(yaml string) Option {
	return func(o *kafkaSource) error {
		cfg, err := GetSaramaConfigFromYAMLString(yaml)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// GetSaramaConfigFromYAMLString parse yaml string to sarama.config
func GetSaramaConfigFromYAMLString(yaml string) (*sarama.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(yaml)); err != nil {
		return nil, err
	}
	cfg := sarama.NewConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed validating sarama config, %w", err)
	}
	return cfg, nil
}
