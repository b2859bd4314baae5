// Package model defines the data structures used by the turfoo ingest worker:
// the feed types and their endpoints, the normalized feed entries and the
// racing entities (tracks, horses, jockeys, trainers, races and race entries).
// Values are constructed once and never mutated afterwards.
package model

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type FeedType string

const (
	FeedProgram FeedType = "program"
	FeedNews    FeedType = "news"
	FeedResults FeedType = "results"
)

// FeedTypes lists every feed type in a stable order.
func FeedTypes() []FeedType {
	return []FeedType{FeedProgram, FeedNews, FeedResults}
}

func ParseFeedType(s string) (FeedType, error) {
	ft := FeedType(strings.ToLower(strings.TrimSpace(s)))
	if !ft.Valid() {
		return "", fmt.Errorf("unknown feed type %q", s)
	}
	return ft, nil
}

func (t FeedType) Valid() bool {
	switch t {
	case FeedProgram, FeedNews, FeedResults:
		return true
	}
	return false
}

func (t FeedType) String() string {
	return string(t)
}

// Endpoints binds every feed type to exactly one absolute URL. It is built once
// at startup and is safe to share.
type Endpoints struct {
	urls map[FeedType]string
}

func NewEndpoints(program, news, results string) (Endpoints, error) {
	raw := map[FeedType]string{
		FeedProgram: program,
		FeedNews:    news,
		FeedResults: results,
	}

	urls := make(map[FeedType]string, len(raw))
	for _, ft := range FeedTypes() {
		u, err := validateFeedURL(raw[ft])
		if err != nil {
			return Endpoints{}, fmt.Errorf("%s feed url: %w", ft, err)
		}
		urls[ft] = u
	}

	return Endpoints{urls: urls}, nil
}

func validateFeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}

	return u.String(), nil
}

func (e Endpoints) URL(ft FeedType) (string, error) {
	u, ok := e.urls[ft]
	if !ok {
		return "", fmt.Errorf("no endpoint for feed type %q", ft)
	}
	return u, nil
}

// Detail describes a text construct of an entry, such as its title or summary.
type Detail struct {
	Type     string `json:"type"`
	Language string `json:"language"`
	Base     string `json:"base"`
	Value    string `json:"value"`
}

type Link struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

// FeedEntry is one normalized item of a feed. Entries are produced only by
// the feed source.
type FeedEntry struct {
	Title           string    `json:"title"`
	TitleDetail     Detail    `json:"title_detail"`
	Links           []Link    `json:"links"`
	Link            string    `json:"link"`
	Published       string    `json:"published"`
	PublishedParsed time.Time `json:"published_parsed"`
	ID              string    `json:"id"`
	GUIDIsLink      bool      `json:"guidislink"`
	Summary         string    `json:"summary"`
	SummaryDetail   Detail    `json:"summary_detail"`
}
