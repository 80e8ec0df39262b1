package agenda

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeDayCalendar(t *testing.T) *DayCalendar {
	t.Helper()
	days, err := NewDayCalendar(eventTime(12, 0, 0, 0), "FREQ=DAILY;COUNT=3")
	require.NoError(t, err)
	return days
}

func TestNewDayCalendar(t *testing.T) {
	t.Parallel()

	days := threeDayCalendar(t)
	require.Equal(t, 3, days.Len())
	last, ok := days.Date(3)
	require.True(t, ok)
	assert.Equal(t, eventTime(14, 0, 0, 0), last)

	_, ok = days.Date(0)
	assert.False(t, ok)
	_, ok = days.Date(4)
	assert.False(t, ok)

	_, err := NewDayCalendar(eventTime(12, 0, 0, 0), "FREQ=NEVER")
	assert.Error(t, err)
}

func TestDayCalendarKeepsWallClockDate(t *testing.T) {
	t.Parallel()

	// Configured dates arrive as midnight in whatever zone parsed them;
	// UTC midnight is still the previous evening at the event offset.
	utcDate, err := time.Parse("2006-01-02", "2025-11-12")
	require.NoError(t, err)

	fromRule, err := NewDayCalendar(utcDate, "FREQ=DAILY;COUNT=3")
	require.NoError(t, err)
	fixed := FixedDays(utcDate, utcDate.AddDate(0, 0, 1), utcDate.AddDate(0, 0, 2))

	for name, days := range map[string]*DayCalendar{"rule": fromRule, "fixed": fixed} {
		first, ok := days.Date(1)
		require.True(t, ok, name)
		assert.Equal(t, eventTime(12, 0, 0, 0), first, name)

		keynote := Item{ID: "k1", Title: "Opening Keynote", Time: "09:00 - 09:30", Type: TypeKeynote, Day: "Día 1"}
		window, ok := ResolveWindow(keynote, eventTime(13, 8, 0, 0), days)
		require.True(t, ok, name)
		assert.Equal(t, eventTime(12, 9, 0, 0), window.Start, name)

		snap := Locate(eventTime(12, 9, 15, 0), []Item{keynote}, days)
		require.NotNil(t, snap.Current, name)
		assert.Equal(t, "k1", snap.Current.ID, name)

		assert.False(t, days.InEventPeriod(eventTime(11, 20, 0, 0)), name)
		assert.True(t, days.InEventPeriod(eventTime(14, 12, 0, 0)), name)
	}
}

func TestDayIndex(t *testing.T) {
	t.Parallel()

	days := threeDayCalendar(t)
	cases := map[string]int{
		"Día 1":               1,
		"dia 2":               2,
		"Day 2 - November 13": 2,
		"3":                   3,
		"2025-11-14":          3,
	}
	for tag, want := range cases {
		got, ok := days.DayIndex(tag)
		require.True(t, ok, tag)
		assert.Equal(t, want, got, tag)
	}
	for _, tag := range []string{"", "4", "Keynote", "2025-11-20"} {
		_, ok := days.DayIndex(tag)
		assert.False(t, ok, tag)
	}

	var missing *DayCalendar
	_, ok := missing.DateFor("1")
	assert.False(t, ok)
}

func TestInEventPeriod(t *testing.T) {
	t.Parallel()

	days := threeDayCalendar(t)
	assert.False(t, days.InEventPeriod(eventTime(11, 23, 59, 59)))
	assert.True(t, days.InEventPeriod(eventTime(12, 0, 0, 0)))
	assert.True(t, days.InEventPeriod(eventTime(14, 23, 59, 59)))
	assert.False(t, days.InEventPeriod(eventTime(15, 0, 0, 0)))
	assert.False(t, (*DayCalendar)(nil).InEventPeriod(eventTime(12, 9, 0, 0)))
}

func TestBucketIsStableAcrossRefetches(t *testing.T) {
	t.Parallel()

	days := threeDayCalendar(t)
	items := []Item{
		{ID: "tagged-late", Time: "15:00 - 16:00", Day: "Día 1"},
		{ID: "tagged-early", Time: "09:00 - 10:00", Day: "1"},
		{ID: "untagged-a", Time: "11:00 - 12:00"},
		{ID: "untagged-b", Time: "12:00 - 13:00"},
		{ID: "untagged-c", Time: "TBD"},
	}

	dayOf := func(buckets []DayBucket) map[string]int {
		out := map[string]int{}
		for _, b := range buckets {
			for _, item := range b.Items {
				out[item.ID] = b.Index
			}
		}
		return out
	}

	first := days.Bucket(items)
	shuffled := []Item{items[4], items[2], items[0], items[3], items[1]}
	second := days.Bucket(shuffled)
	assert.Equal(t, dayOf(first), dayOf(second))

	assignments := dayOf(first)
	assert.Equal(t, 1, assignments["tagged-late"])
	assert.Equal(t, 1, assignments["tagged-early"])
	for _, id := range []string{"untagged-a", "untagged-b", "untagged-c"} {
		assert.Equal(t, StableDayIndex(id, 3), assignments[id], id)
	}

	for _, b := range first {
		if b.Index != 1 {
			continue
		}
		assert.Equal(t, "Day 1 - November 12", b.Label)
		require.GreaterOrEqual(t, len(b.Items), 2)
		var order []string
		for _, item := range b.Items {
			if item.ID == "tagged-early" || item.ID == "tagged-late" {
				order = append(order, item.ID)
			}
		}
		assert.Equal(t, []string{"tagged-early", "tagged-late"}, order)
	}
}

func TestBucketWithoutCalendarKeepsOneGroup(t *testing.T) {
	t.Parallel()

	var days *DayCalendar
	buckets := days.Bucket([]Item{{ID: "b", Time: "TBD"}, {ID: "a", Time: "09:00 - 10:00"}})
	require.Len(t, buckets, 1)
	assert.Equal(t, "a", buckets[0].Items[0].ID)
	assert.Equal(t, "b", buckets[0].Items[1].ID)
	assert.Nil(t, days.Bucket(nil))
}

func TestStableDayIndexRange(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"a", "b", "c", "session-42", ""} {
		idx := StableDayIndex(id, 3)
		assert.GreaterOrEqual(t, idx, 1)
		assert.LessOrEqual(t, idx, 3)
		assert.Equal(t, idx, StableDayIndex(id, 3))
	}
	assert.Zero(t, StableDayIndex("a", 0))
}
