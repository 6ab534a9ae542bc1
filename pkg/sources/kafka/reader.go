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

// Package kafka implements a source reading tuples from a kafka topic, either through a consumer group or
// from every partition of the topic directly.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/araddon/dateparse"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/numawindow/pkg/shared/logging"
	"github.com/numaproj/numawindow/pkg/sources"
	"github.com/numaproj/numawindow/pkg/tuple"
)

// OffsetHeader is the tuple header holding the topic, partition and offset of the message.
const OffsetHeader = "x-kafka-offset"

type kafkaSource struct {
	// name of the source
	name string
	// group name of the consumer group, empty to read partitions directly
	groupName string
	// topic to consume messages from
	topic string
	// kafka brokers
	brokers []string
	// sarama config for the consumer
	config *sarama.Config
	// eventTimeHeader names the header carrying the event time, the message timestamp is used when empty
	eventTimeHeader string
	logger          *zap.SugaredLogger

	newConsumerGroup func(brokers []string, group string, config *sarama.Config) (sarama.ConsumerGroup, error)
	newConsumer      func(brokers []string, config *sarama.Config) (sarama.Consumer, error)
}

var _ sources.Source = (*kafkaSource)(nil)

// NewKafkaSource returns a source reading topic from brokers.
func NewKafkaSource(ctx context.Context, name, topic string, brokers []string, opts ...Option) (sources.Source, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	kafkaSource := &kafkaSource{
		name:             name,
		topic:            topic,
		brokers:          brokers,
		config:           config,
		logger:           logging.FromContext(ctx).With("source", name, "topic", topic),
		newConsumerGroup: sarama.NewConsumerGroup,
		newConsumer:      sarama.NewConsumer,
	}
	for _, o := range opts {
		if err := o(kafkaSource); err != nil {
			return nil, err
		}
	}
	if topic == "" || len(brokers) == 0 {
		return nil, fmt.Errorf("kafka source %s needs a topic and brokers", name)
	}
	sarama.Logger = zap.NewStdLog(kafkaSource.logger.Desugar())
	// return errors from the underlying kafka client using the Errors channel
	kafkaSource.config.Consumer.Return.Errors = true
	return kafkaSource, nil
}

func (r *kafkaSource) Name() string {
	return r.name
}

// Run consumes until ctx is done. A topic never runs dry, so it only returns on errors or cancellation.
func (r *kafkaSource) Run(ctx context.Context, port sources.Port) error {
	process := func(ctx context.Context, m *sarama.ConsumerMessage) {
		kafkaSourceReadCount.WithLabelValues(r.name).Inc()
		if err := port.Tuple(ctx, r.toTuple(m)); err != nil {
			kafkaSourceRejectCount.WithLabelValues(r.name).Inc()
			r.logger.Warnw("Message rejected", zap.String("offset", offsetOf(m).String()), zap.Error(err))
		}
	}
	if r.groupName != "" {
		return r.runGroup(ctx, process)
	}
	return r.runPartitions(ctx, process)
}

func (r *kafkaSource) runGroup(ctx context.Context, process func(context.Context, *sarama.ConsumerMessage)) error {
	r.logger.Infow("Creating consumer group", zap.String("consumerGroupName", r.groupName), zap.Strings("brokers", r.brokers))
	client, err := r.newConsumerGroup(r.brokers, r.groupName, r.config)
	if err != nil {
		return fmt.Errorf("failed to create consumer group %s, %w", r.groupName, err)
	}
	defer func() { _ = client.Close() }()
	handler := newConsumerHandler(process, r.logger)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return nil
			case cErr, ok := <-client.Errors():
				if !ok {
					return nil
				}
				r.logger.Errorw("Kafka consumer error", zap.Error(cErr))
			}
		}
	})
	g.Go(func() error {
		for {
			// `Consume` is called in a loop, when a server-side re-balance happens the consumer session needs
			// to be recreated to get the new claims
			if err := client.Consume(gCtx, []string{r.topic}, handler); err != nil {
				return fmt.Errorf("kafka consumer failed, %w", err)
			}
			if gCtx.Err() != nil {
				return nil
			}
		}
	})
	return g.Wait()
}

func (r *kafkaSource) runPartitions(ctx context.Context, process func(context.Context, *sarama.ConsumerMessage)) error {
	consumer, err := r.newConsumer(r.brokers, r.config)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer, %w", err)
	}
	defer func() { _ = consumer.Close() }()
	partitions, err := consumer.Partitions(r.topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions of %s, %w", r.topic, err)
	}
	r.logger.Infow("Consuming partitions", zap.Int32s("partitions", partitions))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)
	for _, partition := range partitions {
		pc, err := consumer.ConsumePartition(r.topic, partition, r.config.Consumer.Offsets.Initial)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("failed to consume partition %d of %s, %w", partition, r.topic, err)
		}
		g.Go(func() error {
			defer pc.AsyncClose()
			errs := pc.Errors()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case m, ok := <-pc.Messages():
					if !ok {
						return nil
					}
					process(gCtx, m)
				case cErr, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					r.logger.Errorw("Kafka partition consumer error", zap.Error(cErr))
				}
			}
		})
	}
	return g.Wait()
}

func offsetOf(m *sarama.ConsumerMessage) *kafkaOffset {
	return &kafkaOffset{offset: m.Offset, partitionIdx: m.Partition, topic: m.Topic}
}

func (r *kafkaSource) toTuple(m *sarama.ConsumerMessage) *tuple.Tuple {
	t := tuple.New(r.eventTime(m), m.Value)
	if len(m.Key) > 0 {
		t.Keys = []string{string(m.Key)}
	}
	t.Headers = make(map[string]string, len(m.Headers)+1)
	for _, h := range m.Headers {
		if h != nil {
			t.Headers[string(h.Key)] = string(h.Value)
		}
	}
	t.Headers[OffsetHeader] = offsetOf(m).String()
	return t
}

// eventTime parses the event time header in any common layout, falling back to the message timestamp.
func (r *kafkaSource) eventTime(m *sarama.ConsumerMessage) time.Time {
	if r.eventTimeHeader == "" {
		return m.Timestamp
	}
	for _, h := range m.Headers {
		if h == nil || string(h.Key) != r.eventTimeHeader {
			continue
		}
		et, err := dateparse.ParseAny(string(h.Value))
		if err != nil {
			r.logger.Debugw("Unparseable event time header", zap.String("value", string(h.Value)), zap.Error(err))
			break
		}
		return et
	}
	return m.Timestamp
}
