package filter

import (
	"time"

	"conferencebot/internal/models"
)

// DateLayout is the layout of Conference.Date
const DateLayout = "2006-01-02"

// UpcomingWindow is how far ahead /upcoming looks
const UpcomingWindow = 90 * 24 * time.Hour

// Matches reports whether a conference satisfies the user's filters.
// Country must be selected (or Any) and at least one topic must be selected (or Any).
func Matches(prefs models.UserPreferences, conf models.Conference) bool {
	return prefs.Countries.Contains(conf.Country) && prefs.Topics.Intersects(conf.Topics)
}

// Filter returns the matching conferences in catalog order
func Filter(prefs models.UserPreferences, confs []models.Conference) []models.Conference {
	var matching []models.Conference
	for _, conf := range confs {
		if Matches(prefs, conf) {
			matching = append(matching, conf)
		}
	}
	return matching
}

// Upcoming returns matching conferences dated between today and today+window.
// Conferences with an unparseable date are skipped.
func Upcoming(prefs models.UserPreferences, confs []models.Conference, now time.Time, window time.Duration) []models.Conference {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := today.Add(window)

	var upcoming []models.Conference
	for _, conf := range Filter(prefs, confs) {
		date, err := time.Parse(DateLayout, conf.Date)
		if err != nil {
			continue
		}
		if date.Before(today) || date.After(end) {
			continue
		}
		upcoming = append(upcoming, conf)
	}
	return upcoming
}
