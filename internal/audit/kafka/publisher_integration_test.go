//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	id "persona/pkg/domain"
	"persona/pkg/testutil/containers"

	"persona/internal/audit"
)

const testTopic = "persona.audit.test"

type PublisherIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	brokers   []string
	publisher *Publisher
}

func TestPublisherIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PublisherIntegrationSuite))
}

func (s *PublisherIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	container := containers.NewRedpandaContainer(s.T())
	s.brokers = container.Brokers

	publisher, err := New(s.ctx, s.brokers, testTopic)
	s.Require().NoError(err)
	s.publisher = publisher
}

func (s *PublisherIntegrationSuite) TearDownSuite() {
	if s.publisher != nil {
		s.publisher.Close()
	}
}

func (s *PublisherIntegrationSuite) TestPublish() {
	identityID := id.NewIdentityID()
	entry := audit.Entry{
		ID:         id.NewAuditEntryID(),
		IdentityID: identityID,
		Action:     audit.ActionSwitched,
		Level:      audit.LevelOperations,
		Timestamp:  time.Now().UTC(),
		Actor:      "alice",
		Sequence:   1,
		PrevHash:   "0000000000000000",
		Hash:       "abc",
	}
	s.Require().NoError(s.publisher.Publish(s.ctx, entry))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(s.ctx, 15*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().NotEmpty(records)

	var shipped audit.Entry
	s.Require().NoError(json.Unmarshal(records[0].Value, &shipped))
	s.Equal(entry.ID, shipped.ID)
	s.Equal(identityID.String(), string(records[0].Key), "keyed by identity for per-identity ordering")
}

func (s *PublisherIntegrationSuite) TestPublishIsIdempotentOnTopicEnsure() {
	second, err := New(s.ctx, s.brokers, testTopic)
	s.Require().NoError(err, "existing topic tolerated")
	second.Close()
}
