package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/service"
)

func TestBuild_InMemory(t *testing.T) {
	cfg := &config.Config{
		App:  config.AppConfig{Name: "complaint-service"},
		Auth: config.AuthConfig{JWTSecret: "secret", AccessTokenTTLMinutes: 5, BcryptCost: bcrypt.MinCost},
	}
	c, err := Build(context.Background(), cfg, zap.NewNop(), Options{})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.Nil(t, c.Postgres)
	assert.Nil(t, c.Redis)
	assert.Nil(t, c.Kafka)

	var seen []events.EventType
	c.Dispatcher.Subscribe(events.EventComplaintCreated, func(_ context.Context, e events.Event) error {
		seen = append(seen, e.Type)
		return nil
	})

	res, err := c.Complaints.CreateComplaint(context.Background(), "student-1", service.ComplaintCreateInput{
		Title:       "Noise",
		Description: "Construction at night",
		Priority:    domain.ComplaintPriorityLow,
	})
	require.NoError(t, err)
	assert.Equal(t, 10080, res.Complaint.SLAMinutes)
	assert.Equal(t, []events.EventType{events.EventComplaintCreated}, seen)

	result, err := c.Sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
}
