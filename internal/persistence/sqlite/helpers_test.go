package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/conference-companion/internal/persistence"
)

var baseTime = time.Date(2025, 11, 12, 15, 0, 0, 0, time.UTC)

func openTestPool(t *testing.T) *ConnectionPool {
	t.Helper()
	pool, err := Open(context.Background(), TestConfig(filepath.Join(t.TempDir(), "companion.db")), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func seedUser(t *testing.T, pool *ConnectionPool, id string, speaker bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, NewUserRepository(pool).CreateUser(ctx, persistence.User{
		ID:           id,
		Email:        id + "@example.com",
		DisplayName:  "User " + id,
		PasswordHash: "hash",
		IsSpeaker:    speaker,
		CreatedAt:    baseTime,
	}))
	if speaker {
		require.NoError(t, NewSpeakerRepository(pool).UpsertSpeaker(ctx, persistence.Speaker{
			ID:       id,
			Slug:     "speaker-" + id,
			Name:     "Speaker " + id,
			IsActive: true,
		}))
	}
}

func pendingRequest(id, requester, speaker string, created time.Time) persistence.MeetingRequest {
	return persistence.MeetingRequest{
		ID:                  id,
		RequesterID:         requester,
		SpeakerID:           speaker,
		Status:              "pending",
		RequesterTicketType: "business",
		DurationMinutes:     15,
		CreatedAt:           created,
		ExpiresAt:           created.Add(72 * time.Hour),
	}
}
