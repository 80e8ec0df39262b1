package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/conference-companion/internal/agenda"
	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/persistence"
	"github.com/example/conference-companion/internal/persistence/sqlite"
)

// storeErr translates persistence sentinels into the application errors the
// services and the HTTP layer understand. The original error stays wrapped.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound), errors.Is(err, persistence.ErrForeignKeyViolation):
		return fmt.Errorf("%w: %w", application.ErrNotFound, err)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %w", application.ErrAlreadyExists, err)
	case errors.Is(err, persistence.ErrStateConflict):
		return fmt.Errorf("%w: %w", application.ErrInvalidTransition, err)
	}
	return err
}

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, user application.User, passwordHash string) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(user, passwordHash)); err != nil {
		return application.User{}, storeErr(err)
	}
	stored, err := a.repo.GetUser(ctx, user.ID)
	if err != nil {
		return application.User{}, storeErr(err)
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, storeErr(err)
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) ListUsers(ctx context.Context) ([]application.User, error) {
	models, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

// GetUserCredentialsByEmail makes the adapter a CredentialStore.
func (a *userRepositoryAdapter) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, storeErr(err)
	}
	return application.UserCredentials{User: toApplicationUser(stored), PasswordHash: stored.PasswordHash}, nil
}

type passRepositoryAdapter struct {
	repo persistence.PassRepository
}

func newPassRepositoryAdapter(repo persistence.PassRepository) *passRepositoryAdapter {
	return &passRepositoryAdapter{repo: repo}
}

func (a *passRepositoryAdapter) SavePass(ctx context.Context, pass application.Pass) error {
	return storeErr(a.repo.UpsertPass(ctx, persistence.Pass{
		ID:        pass.ID,
		UserID:    pass.UserID,
		Tier:      string(pass.Tier),
		Status:    pass.Status,
		CreatedAt: pass.CreatedAt,
		UpdatedAt: pass.UpdatedAt,
	}))
}

func (a *passRepositoryAdapter) GetActivePass(ctx context.Context, userID string) (application.Pass, error) {
	stored, err := a.repo.GetActivePass(ctx, userID)
	if err != nil {
		return application.Pass{}, storeErr(err)
	}
	return application.Pass{
		ID:        stored.ID,
		UserID:    stored.UserID,
		Tier:      application.PassTier(stored.Tier),
		Status:    stored.Status,
		CreatedAt: stored.CreatedAt,
		UpdatedAt: stored.UpdatedAt,
	}, nil
}

type speakerRepositoryAdapter struct {
	repo persistence.SpeakerRepository
}

func newSpeakerRepositoryAdapter(repo persistence.SpeakerRepository) *speakerRepositoryAdapter {
	return &speakerRepositoryAdapter{repo: repo}
}

func (a *speakerRepositoryAdapter) SaveSpeaker(ctx context.Context, speaker application.Speaker) error {
	return storeErr(a.repo.UpsertSpeaker(ctx, persistence.Speaker{
		ID:         speaker.ID,
		Slug:       speaker.Slug,
		Name:       speaker.Name,
		Title:      speaker.Title,
		Company:    speaker.Company,
		Bio:        speaker.Bio,
		ImageURL:   speaker.ImageURL,
		IsActive:   speaker.IsActive,
		LastSeenAt: speaker.LastSeenAt,
	}))
}

func (a *speakerRepositoryAdapter) GetSpeaker(ctx context.Context, id string) (application.Speaker, error) {
	stored, err := a.repo.GetSpeaker(ctx, id)
	if err != nil {
		return application.Speaker{}, storeErr(err)
	}
	return toApplicationSpeaker(stored), nil
}

func (a *speakerRepositoryAdapter) GetSpeakerBySlug(ctx context.Context, slug string) (application.Speaker, error) {
	stored, err := a.repo.GetSpeakerBySlug(ctx, slug)
	if err != nil {
		return application.Speaker{}, storeErr(err)
	}
	return toApplicationSpeaker(stored), nil
}

func (a *speakerRepositoryAdapter) TouchSpeaker(ctx context.Context, id string, at time.Time) error {
	return storeErr(a.repo.TouchSpeaker(ctx, id, at))
}

type agendaRepositoryAdapter struct {
	repo persistence.AgendaRepository
}

func newAgendaRepositoryAdapter(repo persistence.AgendaRepository) *agendaRepositoryAdapter {
	return &agendaRepositoryAdapter{repo: repo}
}

func (a *agendaRepositoryAdapter) ReplaceAgenda(ctx context.Context, eventID string, items []agenda.Item) error {
	models := make([]persistence.AgendaItem, 0, len(items))
	for i, item := range items {
		models = append(models, toPersistenceAgendaItem(eventID, i, item))
	}
	return storeErr(a.repo.ReplaceAgenda(ctx, eventID, models))
}

func (a *agendaRepositoryAdapter) ListAgenda(ctx context.Context, eventID string) ([]agenda.Item, error) {
	models, err := a.repo.ListAgenda(ctx, eventID)
	if err != nil {
		return nil, storeErr(err)
	}
	items := make([]agenda.Item, 0, len(models))
	for _, model := range models {
		items = append(items, toAgendaItem(model))
	}
	return items, nil
}

func (a *agendaRepositoryAdapter) UpsertAgendaStatus(ctx context.Context, status application.AgendaStatus) (application.AgendaStatus, error) {
	stored, err := a.repo.UpsertAgendaStatus(ctx, persistence.UserAgendaStatus{
		UserID:       status.UserID,
		AgendaItemID: status.AgendaItemID,
		Status:       string(status.Status),
		IsFavorite:   status.IsFavorite,
		CreatedAt:    status.UpdatedAt,
		UpdatedAt:    status.UpdatedAt,
	})
	if err != nil {
		return application.AgendaStatus{}, storeErr(err)
	}
	return toApplicationAgendaStatus(stored), nil
}

func (a *agendaRepositoryAdapter) ListAgendaStatus(ctx context.Context, userID string) ([]application.AgendaStatus, error) {
	models, err := a.repo.ListAgendaStatus(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	statuses := make([]application.AgendaStatus, 0, len(models))
	for _, model := range models {
		statuses = append(statuses, toApplicationAgendaStatus(model))
	}
	return statuses, nil
}

type meetingRequestRepositoryAdapter struct {
	repo persistence.MeetingRequestRepository
}

func newMeetingRequestRepositoryAdapter(repo persistence.MeetingRequestRepository) *meetingRequestRepositoryAdapter {
	return &meetingRequestRepositoryAdapter{repo: repo}
}

func (a *meetingRequestRepositoryAdapter) CreateMeetingRequest(ctx context.Context, request application.MeetingRequest) error {
	return storeErr(a.repo.CreateMeetingRequest(ctx, toPersistenceMeetingRequest(request)))
}

func (a *meetingRequestRepositoryAdapter) GetMeetingRequest(ctx context.Context, id string) (application.MeetingRequest, error) {
	stored, err := a.repo.GetMeetingRequest(ctx, id)
	if err != nil {
		return application.MeetingRequest{}, storeErr(err)
	}
	return toApplicationMeetingRequest(stored), nil
}

func (a *meetingRequestRepositoryAdapter) ListMeetingRequests(ctx context.Context, filter application.MeetingRequestFilter) ([]application.MeetingRequest, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}
	models, err := a.repo.ListMeetingRequests(ctx, persistence.MeetingRequestFilter{
		RequesterID: filter.RequesterID,
		SpeakerID:   filter.SpeakerID,
		Statuses:    statuses,
	})
	if err != nil {
		return nil, storeErr(err)
	}
	requests := make([]application.MeetingRequest, 0, len(models))
	for _, model := range models {
		requests = append(requests, toApplicationMeetingRequest(model))
	}
	return requests, nil
}

func (a *meetingRequestRepositoryAdapter) HasPendingRequest(ctx context.Context, requesterID, speakerID string) (bool, error) {
	pending, err := a.repo.HasPendingRequest(ctx, requesterID, speakerID)
	return pending, storeErr(err)
}

func (a *meetingRequestRepositoryAdapter) TransitionMeetingRequest(ctx context.Context, change application.StatusChange) (application.MeetingRequest, error) {
	stored, err := a.repo.TransitionMeetingRequest(ctx, persistence.StatusChange{
		ID:            change.ID,
		From:          string(change.From),
		To:            string(change.To),
		At:            change.At,
		DeclineReason: change.DeclineReason,
		SetResponseAt: change.SetResponseAt,
	})
	if err != nil {
		return application.MeetingRequest{}, storeErr(err)
	}
	return toApplicationMeetingRequest(stored), nil
}

func (a *meetingRequestRepositoryAdapter) AcceptMeetingRequest(ctx context.Context, id string, speakerNotes *string, meeting application.Meeting, at time.Time) (application.MeetingRequest, application.Meeting, error) {
	storedRequest, storedMeeting, err := a.repo.AcceptMeetingRequest(ctx, id, speakerNotes, toPersistenceMeeting(meeting), at)
	if err != nil {
		return application.MeetingRequest{}, application.Meeting{}, storeErr(err)
	}
	return toApplicationMeetingRequest(storedRequest), toApplicationMeeting(storedMeeting), nil
}

func (a *meetingRequestRepositoryAdapter) ExpirePendingRequests(ctx context.Context, now time.Time) ([]application.MeetingRequest, error) {
	models, err := a.repo.ExpirePendingRequests(ctx, now)
	if err != nil {
		return nil, storeErr(err)
	}
	expired := make([]application.MeetingRequest, 0, len(models))
	for _, model := range models {
		expired = append(expired, toApplicationMeetingRequest(model))
	}
	return expired, nil
}

func (a *meetingRequestRepositoryAdapter) CountRequestsByRequester(ctx context.Context, requesterID string) (application.RequestCounts, error) {
	counts, err := a.repo.CountRequestsByRequester(ctx, requesterID)
	if err != nil {
		return application.RequestCounts{}, storeErr(err)
	}
	return application.RequestCounts{
		Total:         counts.Total,
		Pending:       counts.Pending,
		Accepted:      counts.Accepted,
		Declined:      counts.Declined,
		Cancelled:     counts.Cancelled,
		Expired:       counts.Expired,
		LastCreatedAt: counts.LastCreatedAt,
	}, nil
}

func (a *meetingRequestRepositoryAdapter) SpeakerRequestStats(ctx context.Context, speakerID string) (application.SpeakerStats, error) {
	stats, err := a.repo.SpeakerRequestStats(ctx, speakerID)
	if err != nil {
		return application.SpeakerStats{}, storeErr(err)
	}
	return application.SpeakerStats{
		SpeakerID:            speakerID,
		Pending:              stats.Pending,
		Accepted:             stats.Accepted,
		Declined:             stats.Declined,
		AverageResponseHours: stats.AverageResponseHours,
	}, nil
}

type meetingRepositoryAdapter struct {
	repo persistence.MeetingRepository
}

func newMeetingRepositoryAdapter(repo persistence.MeetingRepository) *meetingRepositoryAdapter {
	return &meetingRepositoryAdapter{repo: repo}
}

func (a *meetingRepositoryAdapter) ListMeetingsForUser(ctx context.Context, userID string) ([]application.Meeting, error) {
	models, err := a.repo.ListMeetingsForUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	meetings := make([]application.Meeting, 0, len(models))
	for _, model := range models {
		meetings = append(meetings, toApplicationMeeting(model))
	}
	return meetings, nil
}

func (a *meetingRepositoryAdapter) AddChatMessage(ctx context.Context, message application.ChatMessage) error {
	return storeErr(a.repo.AddChatMessage(ctx, persistence.ChatMessage{
		ID:          message.ID,
		MeetingID:   message.MeetingID,
		SenderID:    message.SenderID,
		Body:        message.Body,
		MessageType: message.MessageType,
		CreatedAt:   message.CreatedAt,
	}))
}

type blockRepositoryAdapter struct {
	repo persistence.BlockRepository
}

func newBlockRepositoryAdapter(repo persistence.BlockRepository) *blockRepositoryAdapter {
	return &blockRepositoryAdapter{repo: repo}
}

func (a *blockRepositoryAdapter) ToggleBlock(ctx context.Context, blockerID, blockedID string, at time.Time) (bool, error) {
	blocked, err := a.repo.ToggleBlock(ctx, blockerID, blockedID, at)
	return blocked, storeErr(err)
}

func (a *blockRepositoryAdapter) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	blocked, err := a.repo.IsBlocked(ctx, blockerID, blockedID)
	return blocked, storeErr(err)
}

func (a *blockRepositoryAdapter) ListBlocks(ctx context.Context, blockerID string) ([]application.Block, error) {
	models, err := a.repo.ListBlocks(ctx, blockerID)
	if err != nil {
		return nil, storeErr(err)
	}
	blocks := make([]application.Block, 0, len(models))
	for _, model := range models {
		blocks = append(blocks, application.Block{BlockerID: model.BlockerID, BlockedID: model.BlockedID, CreatedAt: model.CreatedAt})
	}
	return blocks, nil
}

// repositories groups the adapters over one SQLite pool.
type repositories struct {
	users    *userRepositoryAdapter
	passes   *passRepositoryAdapter
	speakers *speakerRepositoryAdapter
	agenda   *agendaRepositoryAdapter
	requests *meetingRequestRepositoryAdapter
	meetings *meetingRepositoryAdapter
	blocks   *blockRepositoryAdapter
}

func newRepositories(pool *sqlite.ConnectionPool) repositories {
	return repositories{
		users:    newUserRepositoryAdapter(sqlite.NewUserRepository(pool)),
		passes:   newPassRepositoryAdapter(sqlite.NewPassRepository(pool)),
		speakers: newSpeakerRepositoryAdapter(sqlite.NewSpeakerRepository(pool)),
		agenda:   newAgendaRepositoryAdapter(sqlite.NewAgendaRepository(pool)),
		requests: newMeetingRequestRepositoryAdapter(sqlite.NewMeetingRequestRepository(pool)),
		meetings: newMeetingRepositoryAdapter(sqlite.NewMeetingRepository(pool)),
		blocks:   newBlockRepositoryAdapter(sqlite.NewBlockRepository(pool)),
	}
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:          model.ID,
		Email:       model.Email,
		DisplayName: model.DisplayName,
		IsAdmin:     model.IsAdmin,
		IsSpeaker:   model.IsSpeaker,
		Disabled:    model.Disabled,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toPersistenceUser(user application.User, passwordHash string) persistence.User {
	return persistence.User{
		ID:           user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		PasswordHash: passwordHash,
		IsAdmin:      user.IsAdmin,
		IsSpeaker:    user.IsSpeaker,
		Disabled:     user.Disabled,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func toApplicationSpeaker(model persistence.Speaker) application.Speaker {
	return application.Speaker{
		ID:         model.ID,
		Slug:       model.Slug,
		Name:       model.Name,
		Title:      model.Title,
		Company:    model.Company,
		Bio:        model.Bio,
		ImageURL:   model.ImageURL,
		IsActive:   model.IsActive,
		LastSeenAt: model.LastSeenAt,
	}
}

func toPersistenceAgendaItem(eventID string, position int, item agenda.Item) persistence.AgendaItem {
	return persistence.AgendaItem{
		ID:              item.ID,
		EventID:         eventID,
		Position:        position,
		Title:           item.Title,
		Description:     optional(item.Description),
		Location:        optional(item.Location),
		Speakers:        item.Speakers,
		Time:            item.Time,
		Type:            string(item.Type),
		DurationMinutes: item.DurationMinutes,
		Day:             optional(item.Day),
	}
}

func toAgendaItem(model persistence.AgendaItem) agenda.Item {
	return agenda.Item{
		ID:              model.ID,
		EventID:         model.EventID,
		Title:           model.Title,
		Description:     deref(model.Description),
		Speakers:        model.Speakers,
		Location:        deref(model.Location),
		Time:            model.Time,
		Type:            agenda.ItemType(model.Type),
		DurationMinutes: model.DurationMinutes,
		Day:             deref(model.Day),
	}
}

func toApplicationAgendaStatus(model persistence.UserAgendaStatus) application.AgendaStatus {
	return application.AgendaStatus{
		UserID:       model.UserID,
		AgendaItemID: model.AgendaItemID,
		Status:       application.AgendaStatusValue(model.Status),
		IsFavorite:   model.IsFavorite,
		UpdatedAt:    model.UpdatedAt,
	}
}

func toPersistenceMeetingRequest(req application.MeetingRequest) persistence.MeetingRequest {
	return persistence.MeetingRequest{
		ID:                  req.ID,
		RequesterID:         req.RequesterID,
		SpeakerID:           req.SpeakerID,
		Status:              string(req.Status),
		RequesterTicketType: string(req.RequesterTicketType),
		Message:             req.Message,
		Note:                req.Note,
		SpeakerNotes:        req.SpeakerNotes,
		DeclineReason:       req.DeclineReason,
		BoostAmount:         req.BoostAmount,
		DurationMinutes:     req.DurationMinutes,
		CreatedAt:           req.CreatedAt,
		UpdatedAt:           req.UpdatedAt,
		ExpiresAt:           req.ExpiresAt,
		SpeakerResponseAt:   req.SpeakerResponseAt,
	}
}

func toApplicationMeetingRequest(model persistence.MeetingRequest) application.MeetingRequest {
	return application.MeetingRequest{
		ID:                  model.ID,
		RequesterID:         model.RequesterID,
		SpeakerID:           model.SpeakerID,
		Status:              application.RequestStatus(model.Status),
		RequesterTicketType: application.PassTier(model.RequesterTicketType),
		Message:             model.Message,
		Note:                model.Note,
		SpeakerNotes:        model.SpeakerNotes,
		DeclineReason:       model.DeclineReason,
		BoostAmount:         model.BoostAmount,
		DurationMinutes:     model.DurationMinutes,
		CreatedAt:           model.CreatedAt,
		UpdatedAt:           model.UpdatedAt,
		ExpiresAt:           model.ExpiresAt,
		SpeakerResponseAt:   model.SpeakerResponseAt,
	}
}

func toPersistenceMeeting(meeting application.Meeting) persistence.Meeting {
	return persistence.Meeting{
		ID:               meeting.ID,
		MeetingRequestID: meeting.MeetingRequestID,
		RequesterID:      meeting.RequesterID,
		SpeakerID:        meeting.SpeakerID,
		Status:           meeting.Status,
		DurationMinutes:  meeting.DurationMinutes,
		Notes:            meeting.Notes,
		CreatedAt:        meeting.CreatedAt,
	}
}

func toApplicationMeeting(model persistence.Meeting) application.Meeting {
	return application.Meeting{
		ID:               model.ID,
		MeetingRequestID: model.MeetingRequestID,
		RequesterID:      model.RequesterID,
		SpeakerID:        model.SpeakerID,
		Status:           model.Status,
		DurationMinutes:  model.DurationMinutes,
		Notes:            model.Notes,
		CreatedAt:        model.CreatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
