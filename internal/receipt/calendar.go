package receipt

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	dayKeyLayout  = "20060102"
	dateLayout    = "2006-01-02"
	receiptPrefix = "RCP"
)

// Day is one calendar day of the store: [Start, End) in the store timezone.
type Day struct {
	Key   string
	Start time.Time
	End   time.Time
}

func (d Day) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

// Calendar maps instants to store-local days.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc, now: time.Now}
}

// LoadCalendar resolves an IANA zone name such as "Asia/Jakarta".
func LoadCalendar(zone string) (*Calendar, error) {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return NewCalendar(time.UTC), nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return NewCalendar(loc), nil
}

// WithClock returns a copy of c that reads the time from now.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	return &Calendar{loc: c.loc, now: now}
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) Now() time.Time {
	return c.now().UTC()
}

func (c *Calendar) Today() Day {
	return c.DayOf(c.now())
}

func (c *Calendar) DayOf(t time.Time) Day {
	local := t.In(c.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	return Day{
		Key:   start.Format(dayKeyLayout),
		Start: start.UTC(),
		End:   start.AddDate(0, 0, 1).UTC(),
	}
}

// ParseDate reads a YYYY-MM-DD date as a store-local day.
func (c *Calendar) ParseDate(raw string) (Day, error) {
	parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), c.loc)
	if err != nil {
		return Day{}, fmt.Errorf("date %q must be YYYY-MM-DD", raw)
	}
	return c.DayOf(parsed), nil
}

// DaysAgo returns the key of the day n days before today.
func (c *Calendar) DaysAgo(n int) string {
	today := c.Today()
	return today.Start.In(c.loc).AddDate(0, 0, -n).Format(dayKeyLayout)
}
