package bot

import (
	"fmt"
	"strings"

	"conferencebot/internal/catalog"
	"conferencebot/internal/models"
)

// maxListed caps the conferences shown in a single reply
const maxListed = 10

func formatConference(conf models.Conference, withTopics bool) string {
	var text strings.Builder
	fmt.Fprintf(&text, "🎯 %s\n", conf.Name)

	location := conf.Country
	if conf.Location != "" && !strings.EqualFold(conf.Location, conf.Country) {
		location = conf.Location + ", " + conf.Country
	}
	fmt.Fprintf(&text, "📍 %s\n", location)
	fmt.Fprintf(&text, "📆 %s\n", conf.Date)

	if withTopics && len(conf.Topics) > 0 {
		labels := make([]string, 0, len(conf.Topics))
		for _, t := range conf.Topics {
			if o, ok := catalog.FindOption(catalog.Topics, t); ok {
				labels = append(labels, o.Label)
			} else {
				labels = append(labels, t)
			}
		}
		fmt.Fprintf(&text, "🏷 %s\n", strings.Join(labels, ", "))
	}
	if conf.EarlyBird {
		text.WriteString("🐦 Early bird tickets available\n")
	}
	if conf.URL != "" {
		fmt.Fprintf(&text, "🔗 %s\n", conf.URL)
	}
	return text.String()
}

// formatConferenceList renders at most maxListed conferences under a title
func formatConferenceList(title string, confs []models.Conference, withTopics bool) string {
	var text strings.Builder
	text.WriteString(title)
	text.WriteString("\n\n")

	for i, conf := range confs {
		if i == maxListed {
			fmt.Fprintf(&text, "...and %d more conferences", len(confs)-maxListed)
			break
		}
		text.WriteString(formatConference(conf, withTopics))
		text.WriteString("\n")
	}
	return strings.TrimRight(text.String(), "\n")
}

func formatPreferences(prefs models.UserPreferences) string {
	status := "❌ Inactive"
	if prefs.Subscribed {
		status = "✅ Active"
	}
	return fmt.Sprintf("📋 Your Current Filters\n\n"+
		"🌍 Countries: %s\n"+
		"🎯 Directions: %s\n"+
		"🔔 Notifications: %s\n\n"+
		"Use /filter to change your preferences.",
		catalog.Labels(catalog.Countries, prefs.Countries, catalog.AllCountriesLabel),
		catalog.Labels(catalog.Topics, prefs.Topics, catalog.AllTopicsLabel),
		status,
	)
}

func optionLabels(options []catalog.Option) string {
	labels := make([]string, 0, len(options))
	for _, o := range options {
		labels = append(labels, o.Label)
	}
	return strings.Join(labels, ", ")
}
