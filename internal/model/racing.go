package model

import (
	"strings"
	"time"
)

type Track struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Surface  string `json:"surface_type"`
}

// Key is the logical identity of a track. Uniqueness is left to the store.
func (t Track) Key() string {
	return normalizeName(t.Name) + "@" + normalizeName(t.Location)
}

type Jockey struct {
	Name string `json:"name"`
}

type Trainer struct {
	Name string `json:"name"`
}

type Race struct {
	Date             time.Time `json:"date"`
	Track            Track     `json:"track"`
	Number           int       `json:"race_number"`
	DistanceFurlongs float64   `json:"distance_furlongs"`
	Surface          string    `json:"surface"`
	TrackCondition   string    `json:"track_condition"`
	Purse            float64   `json:"purse"`
	RaceType         string    `json:"race_type"`
}

// RaceEntry is one runner of a race. Payouts stay nil until the race is official.
type RaceEntry struct {
	Race            Race     `json:"race"`
	Horse           Horse    `json:"horse"`
	Jockey          Jockey   `json:"jockey"`
	Trainer         Trainer  `json:"trainer"`
	PostPosition    int      `json:"post_position"`
	MorningLineOdds string   `json:"morning_line_odds"`
	FinishPosition  int      `json:"finish_position"`
	WinPayout       *float64 `json:"win_payout"`
	PlacePayout     *float64 `json:"place_payout"`
	ShowPayout      *float64 `json:"show_payout"`
}

func (e RaceEntry) Official() bool {
	return e.WinPayout != nil || e.PlacePayout != nil || e.ShowPayout != nil
}

// WithPayouts returns a copy of the entry carrying the official result.
func (e RaceEntry) WithPayouts(finish int, win, place, show *float64) RaceEntry {
	e.FinishPosition = finish
	e.WinPayout = copyFloat(win)
	e.PlacePayout = copyFloat(place)
	e.ShowPayout = copyFloat(show)
	return e
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
