package source

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/SlyMarbo/rss"
	"github.com/axgle/mahonia"
	"github.com/samber/lo"
)

// rawItem is one <item> or <entry> exactly as the document carries it.
// rss.Parse drops items without guid and link and merges items sharing a
// guid, so entries are read from the document directly.
type rawItem struct {
	Title      string
	Link       string
	ID         string
	Published  string
	Summary    string
	Content    string
	Enclosures []rawEnclosure
}

type rawEnclosure struct {
	URL  string
	Type string
}

type xmlLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
	Text string `xml:",chardata"`
}

type xmlEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

// xmlItem covers RSS 2.0 items, RSS 1.0 items and Atom entries.
type xmlItem struct {
	Title       string         `xml:"title"`
	Links       []xmlLink      `xml:"link"`
	GUID        string         `xml:"guid"`
	AtomID      string         `xml:"id"`
	PubDate     string         `xml:"pubDate"`
	Date        string         `xml:"date"`
	Published   string         `xml:"published"`
	Updated     string         `xml:"updated"`
	Description string         `xml:"description"`
	Summary     string         `xml:"summary"`
	Encoded     string         `xml:"encoded"`
	Content     string         `xml:"content"`
	Enclosures  []xmlEnclosure `xml:"enclosure"`
}

// decodeItems returns every item of the document in document order.
func decodeItems(raw []byte) ([]rawItem, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charsetReader

	var items []rawItem
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || (start.Name.Local != "item" && start.Name.Local != "entry") {
			continue
		}

		var item xmlItem
		if err := dec.DecodeElement(&item, &start); err != nil {
			return nil, err
		}
		items = append(items, item.raw())
	}
}

func (x xmlItem) raw() rawItem {
	var (
		link       string
		enclosures []rawEnclosure
	)
	for _, l := range x.Links {
		switch {
		case l.Rel == "enclosure" && l.Href != "":
			enclosures = append(enclosures, rawEnclosure{URL: l.Href, Type: l.Type})
		case link != "":
		case strings.TrimSpace(l.Text) != "":
			link = strings.TrimSpace(l.Text)
		case l.Href != "" && (l.Rel == "" || l.Rel == "alternate"):
			link = l.Href
		}
	}
	for _, e := range x.Enclosures {
		if e.URL != "" {
			enclosures = append(enclosures, rawEnclosure{URL: e.URL, Type: e.Type})
		}
	}

	return rawItem{
		Title:      strings.TrimSpace(x.Title),
		Link:       link,
		ID:         strings.TrimSpace(lo.CoalesceOrEmpty(x.GUID, x.AtomID)),
		Published:  strings.TrimSpace(lo.CoalesceOrEmpty(x.PubDate, x.Date, x.Published, x.Updated)),
		Summary:    strings.TrimSpace(lo.CoalesceOrEmpty(x.Description, x.Summary)),
		Content:    strings.TrimSpace(lo.CoalesceOrEmpty(x.Encoded, x.Content)),
		Enclosures: enclosures,
	}
}

var dateLayouts = slices.Concat(rss.TimeLayouts, rss.TimeLayoutsLoadLocation)

// parseDate tries the layouts the rss package knows about. A zero time means
// the date is missing or unrecognized.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return input, nil
	}
	if decoder := mahonia.NewDecoder(charset); decoder != nil {
		return decoder.NewReader(input), nil
	}
	return nil, fmt.Errorf("unsupported charset %q", charset)
}
