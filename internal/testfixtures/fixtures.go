package testfixtures

import (
	"time"

	"github.com/example/conference-companion/internal/agenda"
	"github.com/example/conference-companion/internal/application"
)

var (
	eventZone     = agenda.EventZone
	referenceTime = time.Date(2025, time.November, 12, 14, 0, 0, 0, time.UTC)
)

// ReferenceTime is 09:00 event time on the first event day.
func ReferenceTime() time.Time {
	return referenceTime
}

// EventDays returns the three day calendar starting on the reference day.
func EventDays() *agenda.DayCalendar {
	days, err := agenda.NewDayCalendar(referenceTime, "FREQ=DAILY;COUNT=3")
	if err != nil {
		panic(err)
	}
	return days
}

// ItemOption adjusts an agenda item fixture.
type ItemOption func(*agenda.Item)

// WithDay sets the day tag.
func WithDay(day string) ItemOption {
	return func(i *agenda.Item) { i.Day = day }
}

// WithLocation sets the room.
func WithLocation(location string) ItemOption {
	return func(i *agenda.Item) { i.Location = location }
}

// WithSpeakers sets the speaker names.
func WithSpeakers(speakers ...string) ItemOption {
	return func(i *agenda.Item) { i.Speakers = speakers }
}

// WithDuration sets an explicit duration in minutes.
func WithDuration(minutes int) ItemOption {
	return func(i *agenda.Item) { i.DurationMinutes = &minutes }
}

// Item builds an agenda session.
func Item(id, title, clock string, kind agenda.ItemType, opts ...ItemOption) agenda.Item {
	item := agenda.Item{ID: id, Title: title, Time: clock, Type: kind, Day: "Day 1"}
	for _, opt := range opts {
		opt(&item)
	}
	return item
}

// DayOneAgenda is a small first-day programme without overlaps.
func DayOneAgenda() []agenda.Item {
	return []agenda.Item{
		Item("reg", "Registration", "08:00 - 09:00", agenda.TypeRegistration, WithLocation("Lobby")),
		Item("k1", "Opening Keynote", "09:00 - 09:30", agenda.TypeKeynote, WithLocation("Main Hall"), WithSpeakers("Ana López")),
		Item("p1", "Scaling Payments", "09:30 - 10:30", agenda.TypePanel, WithLocation("Main Hall"), WithSpeakers("Bo Chen", "Ana López")),
		Item("b1", "Coffee Break", "10:30 - 10:45", agenda.TypeBreak),
		Item("l1", "Lunch", "2025-11-12T12:00:00", agenda.TypeMeal, WithLocation("Terrace")),
	}
}

// UserInput builds account input for a tier.
func UserInput(email string, tier application.PassTier, speaker bool) application.UserInput {
	return application.UserInput{
		Email:       email,
		DisplayName: email,
		Password:    "correct horse battery staple",
		Tier:        tier,
		IsSpeaker:   speaker,
	}
}
