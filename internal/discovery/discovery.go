package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"conferencebot/internal/catalog"
	"conferencebot/internal/models"
)

const (
	DefaultFeedURL = "https://confs.tech/conferences.json"
	UserAgent      = "conferencebot/1.0"
	Timeout        = 10 * time.Second
)

// feedEntry is one record of the confs.tech feed
type feedEntry struct {
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
	Online    bool     `json:"online"`
	Topics    []string `json:"topics"`
	Topic     string   `json:"topic"`
}

// Client fetches conferences from the public feed
type Client struct {
	httpClient     *http.Client
	feedURL        string
	probeEarlyBird bool
	logger         *zap.Logger
}

// NewClient creates a discovery client. An empty feedURL uses DefaultFeedURL.
func NewClient(feedURL string, probeEarlyBird bool, logger *zap.Logger) *Client {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &Client{
		httpClient:     &http.Client{Timeout: Timeout},
		feedURL:        feedURL,
		probeEarlyBird: probeEarlyBird,
		logger:         logger,
	}
}

// Fetch downloads the feed and returns relevant conferences, deduplicated by URL
func (c *Client) Fetch(ctx context.Context) ([]models.Conference, error) {
	body, err := c.get(ctx, c.feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer body.Close()

	var entries []feedEntry
	if err := json.NewDecoder(body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	conferences := convert(entries)
	c.logger.Info("Fetched conference feed",
		zap.String("url", c.feedURL),
		zap.Int("entries", len(entries)),
		zap.Int("relevant", len(conferences)),
	)

	if c.probeEarlyBird {
		for i := range conferences {
			available, err := c.EarlyBird(ctx, conferences[i].URL)
			if err != nil {
				c.logger.Debug("Early bird probe failed",
					zap.String("url", conferences[i].URL),
					zap.Error(err),
				)
				continue
			}
			conferences[i].EarlyBird = available
		}
	}

	return conferences, nil
}

// convert keeps entries with a known country and topic and maps them to conferences
func convert(entries []feedEntry) []models.Conference {
	seen := make(map[string]bool)
	var conferences []models.Conference

	for _, e := range entries {
		url := strings.TrimSpace(e.URL)
		if url == "" || seen[url] {
			continue
		}

		country, ok := NormalizeCountry(e.Country, e.Online)
		if !ok {
			continue
		}

		raw := append([]string{e.Topic}, e.Topics...)
		topics := NormalizeTopics(raw, e.Name)
		if len(topics) == 0 {
			continue
		}

		seen[url] = true

		location := e.City
		if e.Online && location == "" {
			location = "Virtual"
		}

		conferences = append(conferences, models.Conference{
			ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String(),
			Name:     e.Name,
			Date:     datePart(e.StartDate),
			Location: location,
			Country:  country,
			Topics:   topics,
			URL:      url,
		})
	}
	return conferences
}

var countryAliases = map[string]string{
	"united states":            "USA",
	"united states of america": "USA",
	"u.s.a.":                   "USA",
	"us":                       "USA",
	"united kingdom":           "UK",
	"england":                  "UK",
	"scotland":                 "UK",
	"great britain":            "UK",
	"the netherlands":          "Netherlands",
	"deutschland":              "Germany",
	"online":                   "Online",
}

// NormalizeCountry maps a feed country to one of catalog.Countries
func NormalizeCountry(country string, online bool) (string, bool) {
	country = strings.TrimSpace(country)
	if country == "" && online {
		return "Online", true
	}
	if alias, ok := countryAliases[strings.ToLower(country)]; ok {
		return alias, true
	}
	if o, ok := catalog.FindOption(catalog.Countries, country); ok {
		return o.Value, true
	}
	return "", false
}

var topicAliases = map[string]string{
	"agile":            "agile",
	"scrum":            "agile",
	"devops":           "devops",
	"sre":              "devops",
	"testing":          "testing",
	"qa":               "testing",
	"quality":          "testing",
	"cloud":            "cloud",
	"kubernetes":       "cloud",
	"security":         "security",
	"data":             "data",
	"data science":     "data",
	"ai":               "ai",
	"ml":               "ai",
	"machine learning": "ai",
	"android":          "mobile",
	"ios":              "mobile",
	"mobile":           "mobile",
	"web":              "web",
	"javascript":       "web",
	"css":              "web",
	"ux":               "web",
	"architecture":     "architecture",
	"leadership":       "management",
	"management":       "management",
	"product":          "management",
}

// NormalizeTopics maps feed topics (and, failing that, words of the name)
// to the bot's topic keys
func NormalizeTopics(raw []string, name string) []string {
	seen := make(map[string]bool)
	var topics []string
	add := func(word string) {
		if key, ok := topicAliases[strings.ToLower(strings.TrimSpace(word))]; ok && !seen[key] {
			seen[key] = true
			topics = append(topics, key)
		}
	}

	for _, t := range raw {
		add(t)
	}
	if len(topics) == 0 {
		for _, word := range strings.FieldsFunc(name, func(r rune) bool {
			return r == ' ' || r == '-' || r == '/' || r == ','
		}) {
			add(word)
		}
	}
	return topics
}

var (
	earlyBirdKeywords = []string{"early bird", "earlybird", "super early", "early registration", "early rate"}
	soldOutKeywords   = []string{"sold out", "expired"}
)

// EarlyBird reports whether the page at url advertises early-bird tickets
func (c *Client) EarlyBird(ctx context.Context, url string) (bool, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return false, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return false, fmt.Errorf("parsing HTML: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	text := strings.ToLower(doc.Text())
	for _, kw := range soldOutKeywords {
		if strings.Contains(text, kw) {
			return false, nil
		}
	}
	for _, kw := range earlyBirdKeywords {
		if strings.Contains(text, kw) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func datePart(s string) string {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}
