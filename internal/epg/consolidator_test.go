package epg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/xmltv"
)

func TestConsolidator_EmptyFragmentsYieldWellFormedEvents(t *testing.T) {
	dir := t.TempDir()
	c := NewConsolidator(dir, filepath.Join(dir, "published.xml"))

	if err := c.rebuildEvents(); err != nil {
		t.Fatalf("rebuildEvents: %v", err)
	}
	f, err := os.Open(c.eventsPath())
	if err != nil {
		t.Fatalf("open events.xml: %v", err)
	}
	defer f.Close()
	doc, err := xmltv.Decode(f)
	if err != nil {
		t.Fatalf("decode events.xml: %v", err)
	}
	if len(doc.Channels) != 0 || len(doc.Programmes) != 0 {
		t.Fatalf("expected empty document, got %+v", doc)
	}
}

func TestConsolidator_WriteEventFragmentRebuildsPublished(t *testing.T) {
	dir := t.TempDir()
	published := filepath.Join(dir, "published.xml")
	c := NewConsolidator(dir, published)

	doc := xmltv.Document{
		Channels: []xmltv.Channel{{ID: "g1.chan1", DisplayName: "Group Channel"}},
		Programmes: []xmltv.Programme{
			{ChannelID: "g1.chan1", Title: "Game", Start: time.Now(), Stop: time.Now().Add(time.Hour)},
		},
	}
	if err := c.WriteEventFragment("g1", doc); err != nil {
		t.Fatalf("write fragment: %v", err)
	}

	f, err := os.Open(published)
	if err != nil {
		t.Fatalf("open published file: %v", err)
	}
	defer f.Close()
	merged, err := xmltv.Decode(f)
	if err != nil {
		t.Fatalf("decode published file: %v", err)
	}
	if len(merged.Channels) != 1 || merged.Channels[0].ID != "g1.chan1" {
		t.Fatalf("expected merged channel, got %+v", merged.Channels)
	}
}

func TestConsolidator_DeduplicatesChannelsAcrossFragments(t *testing.T) {
	dir := t.TempDir()
	c := NewConsolidator(dir, filepath.Join(dir, "published.xml"))

	shared := xmltv.Channel{ID: "shared.chan", DisplayName: "Shared"}
	doc1 := xmltv.Document{Channels: []xmltv.Channel{shared}}
	doc2 := xmltv.Document{Channels: []xmltv.Channel{shared}}

	if err := c.WriteEventFragment("g1", doc1); err != nil {
		t.Fatalf("write fragment g1: %v", err)
	}
	if err := c.WriteEventFragment("g2", doc2); err != nil {
		t.Fatalf("write fragment g2: %v", err)
	}

	f, err := os.Open(c.eventsPath())
	if err != nil {
		t.Fatalf("open events.xml: %v", err)
	}
	defer f.Close()
	merged, err := xmltv.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(merged.Channels) != 1 {
		t.Fatalf("expected deduplicated channel list of 1, got %d", len(merged.Channels))
	}
}
