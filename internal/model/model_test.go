package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEndpoints(t *testing.T) {
	e, err := NewEndpoints(
		"https://www.turfoo.fr/rss/programme",
		"https://www.turfoo.fr/rss/actualites",
		"https://www.turfoo.fr/rss/resultats",
	)
	require.NoError(t, err)

	for _, ft := range FeedTypes() {
		u, err := e.URL(ft)
		require.NoError(t, err)
		assert.NotEmpty(t, u)
	}

	u, err := e.URL(FeedNews)
	require.NoError(t, err)
	assert.Equal(t, "https://www.turfoo.fr/rss/actualites", u)
}

func TestNewEndpoints_RejectsInvalidURL(t *testing.T) {
	cases := map[string][3]string{
		"empty":     {"", "https://a.example/news", "https://a.example/results"},
		"relative":  {"https://a.example/p", "/rss/news", "https://a.example/results"},
		"no host":   {"https://a.example/p", "https://a.example/n", "http:///results"},
		"bad chars": {"https://a.example/p", "https://a.example/n", "http://a b.example/%zz"},
		"ftp":       {"ftp://a.example/p", "https://a.example/n", "https://a.example/r"},
	}

	for name, urls := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewEndpoints(urls[0], urls[1], urls[2])
			assert.Error(t, err)
		})
	}
}

func TestEndpoints_ZeroValueHasNoURLs(t *testing.T) {
	var e Endpoints
	_, err := e.URL(FeedProgram)
	assert.Error(t, err)
}

func TestParseFeedType(t *testing.T) {
	ft, err := ParseFeedType(" Results ")
	require.NoError(t, err)
	assert.Equal(t, FeedResults, ft)

	_, err = ParseFeedType("weather")
	assert.Error(t, err)
}

func TestTrackKey(t *testing.T) {
	a := Track{Name: "Longchamp ", Location: "Paris", Surface: "turf"}
	b := Track{Name: "longchamp", Location: "PARIS", Surface: "dirt"}

	assert.Equal(t, a.Key(), b.Key())
}

func TestRaceEntry_WithPayouts(t *testing.T) {
	entry := RaceEntry{PostPosition: 4, MorningLineOdds: "5/2"}
	assert.False(t, entry.Official())

	win := 7.4
	official := entry.WithPayouts(1, &win, nil, nil)
	win = 0

	assert.True(t, official.Official())
	assert.False(t, entry.Official())
	assert.Equal(t, 7.4, *official.WinPayout)
	assert.Equal(t, 1, official.FinishPosition)
	assert.Zero(t, entry.FinishPosition)
}
