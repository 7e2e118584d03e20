//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/credential/events"
	"certledger/internal/credential/models"
	"certledger/internal/platform/kafka/producer"
	"certledger/pkg/testutil"
	"certledger/pkg/testutil/containers"
)

type KafkaPublisherIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestKafkaPublisherIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherIntegrationSuite))
}

func (s *KafkaPublisherIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	cfg := producer.DefaultConfig()
	cfg.Brokers = s.kafka.Brokers
	prod, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *KafkaPublisherIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

// Events for one certificate share a key so they stay ordered on a partition.
func (s *KafkaPublisherIntegrationSuite) TestAsyncPublishKeepsPerCertificateOrder() {
	ctx := context.Background()
	topic := "certledger-lifecycle-test"
	s.Require().NoError(s.kafka.EnsureTopic(ctx, topic, 3))

	pub := events.NewKafkaPublisher(s.producer, topic, events.WithAsyncBuffer(16))
	certID := testutil.TestIDs.CertID1
	s.Require().NoError(pub.Emit(ctx, events.Event{Type: events.TypeIssued, CertID: certID, Status: models.StatusActive}))
	s.Require().NoError(pub.Emit(ctx, events.Event{Type: events.TypeRevoked, CertID: certID, Status: models.StatusRevoked, RevocationReason: "fraud"}))
	pub.Close()

	readCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	records, err := s.kafka.ReadRecords(readCtx, topic, 2)
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	var got []events.Event
	for _, r := range records {
		s.Equal(string(certID), string(r.Key))
		s.Equal(records[0].Partition, r.Partition)
		var e events.Event
		s.Require().NoError(json.Unmarshal(r.Value, &e))
		got = append(got, e)
	}
	s.Equal(events.TypeIssued, got[0].Type)
	s.Equal(events.TypeRevoked, got[1].Type)
	s.Equal("fraud", got[1].RevocationReason)
	s.False(got[1].Timestamp.IsZero())
}
