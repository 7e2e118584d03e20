//go:build integration

package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/platform/kafka/producer"
	"certledger/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())

	cfg := producer.DefaultConfig()
	cfg.Brokers = s.kafka.Brokers
	prod, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

// Produce only returns after the broker acknowledged the record.
func (s *ProducerIntegrationSuite) TestProduceDeliversWithHeaders() {
	ctx := context.Background()
	topic := "certledger-test-produce"
	s.Require().NoError(s.kafka.EnsureTopic(ctx, topic, 1))

	err := s.producer.Produce(ctx, &producer.Message{
		Topic: topic,
		Key:   []byte("CERT-1"),
		Value: []byte(`{"type":"credential.issued"}`),
		Headers: map[string]string{
			"event_type": "credential.issued",
		},
	})
	s.Require().NoError(err)

	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	records, err := s.kafka.ReadRecords(readCtx, topic, 1)
	s.Require().NoError(err)
	record := records[0]
	s.Equal("CERT-1", string(record.Key))
	s.JSONEq(`{"type":"credential.issued"}`, string(record.Value))

	headers := make(map[string]string)
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal("credential.issued", headers["event_type"])
}

func (s *ProducerIntegrationSuite) TestPing() {
	s.NoError(s.producer.Ping(context.Background()))
}

func (s *ProducerIntegrationSuite) TestProduceAfterCloseFails() {
	cfg := producer.DefaultConfig()
	cfg.Brokers = s.kafka.Brokers
	prod, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.Require().NoError(prod.Close())

	s.Error(prod.Produce(context.Background(), &producer.Message{Topic: "certledger-closed"}))
	s.Error(prod.Ping(context.Background()))
}
