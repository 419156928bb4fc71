package xmltv

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	doc := Document{
		GeneratorName: "Teamarr",
		Channels: []Channel{
			{ID: "lakers.teamarr", DisplayName: "Lakers Channel", IconSrc: "http://x/logo.png"},
		},
		Programmes: []Programme{
			{
				ChannelID:   "lakers.teamarr",
				Start:       time.Date(2026, 3, 5, 19, 30, 0, 0, time.UTC),
				Stop:        time.Date(2026, 3, 5, 22, 0, 0, 0, time.UTC),
				Title:       "Lakers vs Celtics",
				Description: "NBA matchup",
				Category:    "Sports",
			},
		},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Channels) != 1 || decoded.Channels[0].ID != "lakers.teamarr" {
		t.Fatalf("channels mismatch: %+v", decoded.Channels)
	}
	if len(decoded.Programmes) != 1 {
		t.Fatalf("expected 1 programme, got %d", len(decoded.Programmes))
	}
	p := decoded.Programmes[0]
	if p.Title != "Lakers vs Celtics" || p.Description != "NBA matchup" {
		t.Fatalf("programme mismatch: %+v", p)
	}
	if !p.Start.Equal(doc.Programmes[0].Start) {
		t.Fatalf("start mismatch: %v vs %v", p.Start, doc.Programmes[0].Start)
	}
}

func TestDecode_SkipsMalformedProgramme(t *testing.T) {
	xmlData := `<?xml version="1.0"?>
<tv generator-info-name="Teamarr">
  <channel id="c1"><display-name>Ch1</display-name></channel>
  <programme start="not-a-date" stop="20260305220000 +0000" channel="c1">
    <title lang="en">Bad</title>
  </programme>
  <programme start="20260305193000 +0000" stop="20260305220000 +0000" channel="c1">
    <title lang="en">Good</title>
  </programme>
</tv>`
	doc, err := Decode(strings.NewReader(xmlData))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Programmes) != 1 || doc.Programmes[0].Title != "Good" {
		t.Fatalf("expected only the well-formed programme to survive, got %+v", doc.Programmes)
	}
}

func TestDecode_EmptyDocumentIsWellFormed(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Document{}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	doc, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Channels) != 0 || len(doc.Programmes) != 0 {
		t.Fatalf("expected empty document, got %+v", doc)
	}
}
