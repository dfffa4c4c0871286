// Package markethours answers whether an exchange is in its core trading
// session. The refresh orchestrator uses it to skip quote fetches for
// closed markets when a recent price is already on hand.
package markethours

import "time"

// session is the core trading window of an exchange in its local timezone.
type session struct {
	openHour    int
	openMinute  int
	closeHour   int
	closeMinute int
	lunchStart  int // hour, 0 = no lunch break
	lunchEnd    int
	timezone    string
}

// Exchange MICs map to their core sessions. Auction phases and extended
// hours are deliberately outside the window.
var sessions = map[string]session{
	"XNYS": {openHour: 9, openMinute: 30, closeHour: 16, timezone: "America/New_York"},
	"XNAS": {openHour: 9, openMinute: 30, closeHour: 16, timezone: "America/New_York"},
	"XETR": {openHour: 9, closeHour: 17, closeMinute: 30, timezone: "Europe/Berlin"},
	"XFRA": {openHour: 8, closeHour: 22, timezone: "Europe/Berlin"},
	"XLON": {openHour: 8, closeHour: 16, closeMinute: 30, timezone: "Europe/London"},
	"XPAR": {openHour: 9, closeHour: 17, closeMinute: 30, timezone: "Europe/Paris"},
	"XAMS": {openHour: 9, closeHour: 17, closeMinute: 30, timezone: "Europe/Amsterdam"},
	"XSWX": {openHour: 9, closeHour: 17, closeMinute: 30, timezone: "Europe/Zurich"},
	"XTKS": {openHour: 9, closeHour: 15, lunchStart: 11, lunchEnd: 12, timezone: "Asia/Tokyo"},
	"XJSE": {openHour: 9, closeHour: 17, timezone: "Africa/Johannesburg"},
	"XTAE": {openHour: 9, closeHour: 17, closeMinute: 25, timezone: "Asia/Jerusalem"},
}

// Service provides market hours checking.
type Service struct {
	locations map[string]*time.Location
}

// NewService creates a market hours service with all timezones resolved.
func NewService() *Service {
	locations := make(map[string]*time.Location, len(sessions))
	for mic, s := range sessions {
		loc, err := time.LoadLocation(s.timezone)
		if err != nil {
			loc = time.UTC
		}
		locations[mic] = loc
	}
	return &Service{locations: locations}
}

// IsOpen reports whether the exchange is in its core session at t.
// Unknown exchanges report open: better to fetch a quote needlessly than
// to starve an instrument we cannot place on a calendar.
func (s *Service) IsOpen(mic string, t time.Time) bool {
	sess, ok := sessions[mic]
	if !ok {
		return true
	}

	local := t.In(s.locations[mic])
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	if isCommonHoliday(local) {
		return false
	}

	open := time.Date(local.Year(), local.Month(), local.Day(), sess.openHour, sess.openMinute, 0, 0, local.Location())
	closeAt := time.Date(local.Year(), local.Month(), local.Day(), sess.closeHour, sess.closeMinute, 0, 0, local.Location())
	if local.Before(open) || !local.Before(closeAt) {
		return false
	}

	if sess.lunchStart > 0 {
		lunchStart := time.Date(local.Year(), local.Month(), local.Day(), sess.lunchStart, 30, 0, 0, local.Location())
		lunchEnd := time.Date(local.Year(), local.Month(), local.Day(), sess.lunchEnd, 30, 0, 0, local.Location())
		if !local.Before(lunchStart) && local.Before(lunchEnd) {
			return false
		}
	}

	return true
}

// Known reports whether the exchange has a configured session.
func (s *Service) Known(mic string) bool {
	_, ok := sessions[mic]
	return ok
}

// OpenMarkets returns the configured exchanges currently in session.
func (s *Service) OpenMarkets(t time.Time) []string {
	open := make([]string, 0)
	for mic := range sessions {
		if s.IsOpen(mic, t) {
			open = append(open, mic)
		}
	}
	return open
}

// isCommonHoliday covers the closures shared by every configured venue.
// Exchange-specific calendars are out of scope; a wrongly assumed open
// day just means one redundant fetch attempt.
func isCommonHoliday(local time.Time) bool {
	if local.Month() == time.January && local.Day() == 1 {
		return true
	}
	if local.Month() == time.December && local.Day() == 25 {
		return true
	}
	return false
}
