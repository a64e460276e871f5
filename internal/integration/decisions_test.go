//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/agromin/jurisdiction-validator/internal/adapter/kafka"
	"github.com/agromin/jurisdiction-validator/internal/domain"
	"github.com/agromin/jurisdiction-validator/internal/observability"
	"github.com/agromin/jurisdiction-validator/internal/service"
)

const testDecisionsTopic = "test-decisions"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type geocoderStub struct{}

func (geocoderStub) Geocode(_ context.Context, address string) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{Lat: 38.58, Lon: -121.49, MatchedAddress: address, Score: 100}, nil
}

type indexStub struct{}

func (indexStub) Resolve(_ context.Context, _, _ float64) (domain.DistrictAttributes, error) {
	city := "Sacramento"
	return domain.DistrictAttributes{JurisdictionName: "SACRAMENTO", County: "Sacramento", City: &city}, nil
}

func (indexStub) Len() int { return 1 }

type couponStub map[string]domain.CouponRecord

func (c couponStub) Get(_ context.Context) map[string]domain.CouponRecord { return c }

// TestDecisionsPublished runs both validations against a live broker and
// reads the resulting decision events back off the topic.
func TestDecisionsPublished(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testDecisionsTopic)

	metrics := observability.NewMetricsForTesting()
	publisher := kafka.NewDecisionPublisher([]string{broker}, testDecisionsTopic, metrics, discardLogger())

	coupons := couponStub{
		"SAVE10": {Code: "SAVE10", Status: "Active", Jurisdiction: "City of Sacramento"},
	}
	v := service.New(geocoderStub{}, indexStub{}, coupons, discardLogger(), metrics, service.WithPublisher(publisher))

	_, err := v.ValidateJurisdiction(ctx, "915 I St", "Sacramento County")
	require.NoError(t, err)
	_, err = v.ValidateCoupon(ctx, "915 I St", "save10")
	require.NoError(t, err)

	// Close flushes the async writer.
	require.NoError(t, publisher.Close())

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testDecisionsTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	var events []domain.DecisionEvent
	for len(events) < 2 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from decisions topic")

		var ev domain.DecisionEvent
		require.NoError(t, json.Unmarshal(msg.Value, &ev))
		assert.Equal(t, ev.ID, string(msg.Key))
		events = append(events, ev)
	}

	assert.Equal(t, domain.DecisionJurisdiction, events[0].Type)
	assert.Equal(t, domain.StatusAccepted, events[0].Status)
	assert.Equal(t, "Sacramento County", events[0].Claimed)

	assert.Equal(t, domain.DecisionCoupon, events[1].Type)
	assert.Equal(t, domain.StatusAccepted, events[1].Status)
	assert.Equal(t, "SAVE10", events[1].Coupon)
	assert.Equal(t, "Valid", events[1].Reason)
}
