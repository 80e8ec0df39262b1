package agenda

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/teambition/rrule-go"
)

var dayTagPattern = regexp.MustCompile(`(?i)^(?:d[ií]a|day|d)?\s*(\d{1,2})\b`)

// DayCalendar maps agenda day tags ("Día 1", "Day 2 - November 13", "3",
// "2025-11-14") to calendar dates in the event zone.
type DayCalendar struct {
	days []time.Time
}

// NewDayCalendar expands an RFC 5545 recurrence rule (for example
// "FREQ=DAILY;COUNT=3") from the given first event day. Only the wall-clock
// date of firstDay is used, in whatever location it carries.
func NewDayCalendar(firstDay time.Time, rule string) (*DayCalendar, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		rule = "FREQ=DAILY;COUNT=1"
	}
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("parse event day rule %q: %w", rule, err)
	}
	y, m, d := firstDay.Date()
	r.DTStart(time.Date(y, m, d, 0, 0, 0, 0, EventZone))

	occurrences := r.All()
	if len(occurrences) == 0 {
		return nil, fmt.Errorf("event day rule %q yields no days", rule)
	}
	if len(occurrences) > 31 {
		return nil, fmt.Errorf("event day rule %q yields %d days, at most 31 supported", rule, len(occurrences))
	}
	days := make([]time.Time, len(occurrences))
	for i, occ := range occurrences {
		oy, om, od := occ.In(EventZone).Date()
		days[i] = time.Date(oy, om, od, 0, 0, 0, 0, EventZone)
	}
	return &DayCalendar{days: days}, nil
}

// FixedDays builds a calendar from explicit dates, mostly for tests and
// imports that already know their dates. Like NewDayCalendar it keeps each
// value's wall-clock date.
func FixedDays(dates ...time.Time) *DayCalendar {
	days := make([]time.Time, 0, len(dates))
	for _, date := range dates {
		y, m, d := date.Date()
		days = append(days, time.Date(y, m, d, 0, 0, 0, 0, EventZone))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return &DayCalendar{days: days}
}

// Len returns the number of event days.
func (c *DayCalendar) Len() int {
	if c == nil {
		return 0
	}
	return len(c.days)
}

// Date returns the midnight of the 1-based day index.
func (c *DayCalendar) Date(index int) (time.Time, bool) {
	if c == nil || index < 1 || index > len(c.days) {
		return time.Time{}, false
	}
	return c.days[index-1], true
}

// DayIndex resolves a day tag to its 1-based index.
func (c *DayCalendar) DayIndex(tag string) (int, bool) {
	tag = strings.TrimSpace(tag)
	if c == nil || tag == "" {
		return 0, false
	}
	if date, err := time.ParseInLocation("2006-01-02", tag, EventZone); err == nil {
		for i, day := range c.days {
			if day.Equal(date) {
				return i + 1, true
			}
		}
		return 0, false
	}
	m := dayTagPattern.FindStringSubmatch(tag)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > len(c.days) {
		return 0, false
	}
	return n, true
}

// DateFor resolves a day tag straight to its date.
func (c *DayCalendar) DateFor(tag string) (time.Time, bool) {
	index, ok := c.DayIndex(tag)
	if !ok {
		return time.Time{}, false
	}
	return c.Date(index)
}

// InEventPeriod reports whether now falls between the first day's midnight
// and the end of the last day.
func (c *DayCalendar) InEventPeriod(now time.Time) bool {
	if c.Len() == 0 {
		return false
	}
	first := c.days[0]
	end := c.days[len(c.days)-1].AddDate(0, 0, 1)
	return !now.Before(first) && now.Before(end)
}

// DayBucket groups the sessions of one event day.
type DayBucket struct {
	Index int
	Date  time.Time
	Label string
	Items []Item
}

// Bucket groups items per event day. Items without a usable day tag are
// assigned by a stable hash of their id so that re-fetches never move them.
// Inside a day items are ordered by resolved start; unresolvable items go
// last and ties keep input order.
func (c *DayCalendar) Bucket(items []Item) []DayBucket {
	if c.Len() == 0 {
		if len(items) == 0 {
			return nil
		}
		sorted := append([]Item(nil), items...)
		sortByStart(sorted, time.Now(), nil)
		return []DayBucket{{Items: sorted}}
	}

	grouped := make([][]Item, len(c.days))
	for _, item := range items {
		index, ok := c.DayIndex(item.Day)
		if !ok {
			index = StableDayIndex(item.ID, len(c.days))
		}
		grouped[index-1] = append(grouped[index-1], item)
	}

	buckets := make([]DayBucket, 0, len(c.days))
	for i, dayItems := range grouped {
		if len(dayItems) == 0 {
			continue
		}
		date := c.days[i]
		sortByStart(dayItems, date, c)
		buckets = append(buckets, DayBucket{
			Index: i + 1,
			Date:  date,
			Label: fmt.Sprintf("Day %d - %s", i+1, date.Format("January 2")),
			Items: dayItems,
		})
	}
	return buckets
}

// StableDayIndex maps an id onto a 1-based day index in [1, dayCount].
func StableDayIndex(id string, dayCount int) int {
	if dayCount <= 0 {
		return 0
	}
	return int(xxhash.Sum64String(id)%uint64(dayCount)) + 1
}

func sortByStart(items []Item, ref time.Time, days *DayCalendar) {
	type keyed struct {
		start time.Time
		ok    bool
	}
	keys := make(map[int]keyed, len(items))
	indexed := make([]int, len(items))
	for i, item := range items {
		indexed[i] = i
		w, ok := ResolveWindow(item, ref, days)
		keys[i] = keyed{start: w.Start, ok: ok}
	}
	sort.SliceStable(indexed, func(a, b int) bool {
		ka, kb := keys[indexed[a]], keys[indexed[b]]
		if ka.ok != kb.ok {
			return ka.ok
		}
		if !ka.ok {
			return false
		}
		return ka.start.Before(kb.start)
	})
	sorted := make([]Item, len(items))
	for i, idx := range indexed {
		sorted[i] = items[idx]
	}
	copy(items, sorted)
}
