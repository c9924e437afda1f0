package catalog

import (
	"strings"

	"conferencebot/internal/models"
)

// Option is a selectable filter value shown as an inline button
type Option struct {
	Value string
	Label string
}

// Countries offered by the /filter conversation
var Countries = []Option{
	{"USA", "🇺🇸 USA"},
	{"UK", "🇬🇧 UK"},
	{"Germany", "🇩🇪 Germany"},
	{"Poland", "🇵🇱 Poland"},
	{"Netherlands", "🇳🇱 Netherlands"},
	{"Spain", "🇪🇸 Spain"},
	{"France", "🇫🇷 France"},
	{"Italy", "🇮🇹 Italy"},
	{"Canada", "🇨🇦 Canada"},
	{"Australia", "🇦🇺 Australia"},
	{"Online", "🌍 Online"},
}

// Topics offered by the /filter conversation. Values are the tags used in Conference.Topics.
var Topics = []Option{
	{"agile", "🔄 Agile"},
	{"devops", "🚀 DevOps"},
	{"testing", "🧪 Testing/QA"},
	{"cloud", "☁️ Cloud"},
	{"security", "🔒 Security"},
	{"data", "📊 Data Science"},
	{"ai", "🤖 AI/ML"},
	{"mobile", "📱 Mobile"},
	{"web", "🌐 Web Development"},
	{"architecture", "🏗️ Architecture"},
	{"management", "💼 Management"},
}

const (
	AllCountriesLabel = "🌎 All Countries"
	AllTopicsLabel    = "✨ All Directions"
)

// FindOption looks up an option by value, ignoring case
func FindOption(options []Option, value string) (Option, bool) {
	for _, o := range options {
		if strings.EqualFold(o.Value, value) {
			return o, true
		}
	}
	return Option{}, false
}

// Labels renders a selection using option labels where known
func Labels(options []Option, sel models.Selection, allLabel string) string {
	if sel.IsAny() {
		return allLabel
	}
	values := sel.Values()
	if len(values) == 0 {
		return "None"
	}
	labels := make([]string, 0, len(values))
	for _, v := range values {
		if o, ok := FindOption(options, v); ok {
			labels = append(labels, o.Label)
		} else {
			labels = append(labels, v)
		}
	}
	return strings.Join(labels, ", ")
}

// Sample returns the built-in conference set used when no catalog file exists
func Sample() []models.Conference {
	return []models.Conference{
		{
			ID:          "1",
			Name:        "Agile Testing Days",
			Date:        "2026-03-15",
			Location:    "Berlin",
			Country:     "Germany",
			Topics:      []string{"agile", "testing"},
			URL:         "https://agiletestingdays.com",
			Description: "Annual agile testing conference",
		},
		{
			ID:          "2",
			Name:        "DevOps World",
			Date:        "2026-04-20",
			Location:    "San Francisco",
			Country:     "USA",
			Topics:      []string{"devops", "cloud"},
			URL:         "https://devopsworld.com",
			Description: "Leading DevOps conference",
		},
		{
			ID:          "3",
			Name:        "QA Global Summit",
			Date:        "2026-05-10",
			Location:    "Virtual",
			Country:     "Online",
			Topics:      []string{"testing", "qa"},
			URL:         "https://qasummit.com",
			Description: "Virtual QA conference",
		},
		{
			ID:          "4",
			Name:        "Cloud Native Conference",
			Date:        "2026-06-12",
			Location:    "London",
			Country:     "UK",
			Topics:      []string{"cloud", "devops", "architecture"},
			URL:         "https://cloudnativecon.com",
			Description: "Cloud-native technologies",
		},
		{
			ID:          "5",
			Name:        "Security & Testing Summit",
			Date:        "2026-07-08",
			Location:    "Warsaw",
			Country:     "Poland",
			Topics:      []string{"security", "testing"},
			URL:         "https://sectesting.com",
			Description: "Security testing conference",
		},
	}
}
