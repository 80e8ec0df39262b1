package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/conference-companion/internal/persistence"
)

func TestAgendaRepository_ReplaceKeepsBookmarksOfSurvivingItems(t *testing.T) {
	pool := openTestPool(t)
	seedUser(t, pool, "u1", false)
	repo := NewAgendaRepository(pool)
	ctx := context.Background()

	day := "Día 1"
	duration := 45
	require.NoError(t, repo.ReplaceAgenda(ctx, "ev", []persistence.AgendaItem{
		{ID: "a", Title: "Opening", Time: "09:00 - 09:30", Type: "keynote", Day: &day, Speakers: []string{"Ana"}},
		{ID: "b", Title: "Panel", Time: "10:00 - 11:00", Type: "panel", DurationMinutes: &duration},
	}))
	_, err := repo.UpsertAgendaStatus(ctx, persistence.UserAgendaStatus{UserID: "u1", AgendaItemID: "a", Status: "tentative"})
	require.NoError(t, err)
	_, err = repo.UpsertAgendaStatus(ctx, persistence.UserAgendaStatus{UserID: "u1", AgendaItemID: "b", Status: "confirmed", IsFavorite: true})
	require.NoError(t, err)

	require.NoError(t, repo.ReplaceAgenda(ctx, "ev", []persistence.AgendaItem{
		{ID: "a", Title: "Opening remarks", Time: "09:00 - 09:30", Type: "keynote"},
	}))

	items, err := repo.ListAgenda(ctx, "ev")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Opening remarks", items[0].Title)
	assert.Empty(t, items[0].Speakers)
	assert.Nil(t, items[0].Day)

	statuses, err := repo.ListAgendaStatus(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "a", statuses[0].AgendaItemID)
}

func TestAgendaRepository_StatusUpsert(t *testing.T) {
	pool := openTestPool(t)
	seedUser(t, pool, "u1", false)
	repo := NewAgendaRepository(pool)
	ctx := context.Background()
	require.NoError(t, repo.ReplaceAgenda(ctx, "ev", []persistence.AgendaItem{{ID: "a", Title: "A", Time: "09:00 - 09:30", Type: "keynote"}}))

	_, err := repo.UpsertAgendaStatus(ctx, persistence.UserAgendaStatus{UserID: "u1", AgendaItemID: "a", Status: "tentative"})
	require.NoError(t, err)
	stored, err := repo.UpsertAgendaStatus(ctx, persistence.UserAgendaStatus{UserID: "u1", AgendaItemID: "a", Status: "confirmed", IsFavorite: true})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", stored.Status)
	assert.True(t, stored.IsFavorite)

	_, err = repo.UpsertAgendaStatus(ctx, persistence.UserAgendaStatus{UserID: "u1", AgendaItemID: "zzz", Status: "confirmed"})
	assert.ErrorIs(t, err, persistence.ErrForeignKeyViolation)
}

func TestBlockRepository_Toggle(t *testing.T) {
	pool := openTestPool(t)
	seedUser(t, pool, "a", false)
	seedUser(t, pool, "b", false)
	repo := NewBlockRepository(pool)
	ctx := context.Background()

	blocked, err := repo.ToggleBlock(ctx, "a", "b", baseTime)
	require.NoError(t, err)
	assert.True(t, blocked)

	is, err := repo.IsBlocked(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, is)
	is, err = repo.IsBlocked(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, is)

	blocked, err = repo.ToggleBlock(ctx, "a", "b", baseTime)
	require.NoError(t, err)
	assert.False(t, blocked)

	list, err := repo.ListBlocks(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMeetingRepository_ChatThread(t *testing.T) {
	pool, requests := setupRequests(t)
	ctx := context.Background()
	require.NoError(t, requests.CreateMeetingRequest(ctx, pendingRequest("r1", "req", "spk", baseTime)))
	_, _, err := requests.AcceptMeetingRequest(ctx, "r1", nil, persistence.Meeting{ID: "m1"}, baseTime.Add(time.Minute))
	require.NoError(t, err)

	repo := NewMeetingRepository(pool)
	sender := "req"
	require.NoError(t, repo.AddChatMessage(ctx, persistence.ChatMessage{ID: "c1", MeetingID: "m1", Body: "accepted", MessageType: "system", CreatedAt: baseTime}))
	require.NoError(t, repo.AddChatMessage(ctx, persistence.ChatMessage{ID: "c2", MeetingID: "m1", SenderID: &sender, Body: "hi", MessageType: "text", CreatedAt: baseTime.Add(time.Second)}))

	msgs, err := repo.ListChatMessages(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].SenderID)
	assert.Equal(t, "hi", msgs[1].Body)
}
