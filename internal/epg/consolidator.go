package epg

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Pharaoh-Labs/teamarr/internal/xmltv"
)

// Consolidator maintains the on-disk EPG artefacts: per-group event
// fragments, a consolidated events.xml, a teams.xml, and a final published
// file. Every write is atomic (write-to-temp, then rename).
type Consolidator struct {
	dataDir       string
	publishedPath string
}

// NewConsolidator roots fragment/intermediate files under dataDir and
// publishes the merged document to publishedPath.
func NewConsolidator(dataDir, publishedPath string) *Consolidator {
	return &Consolidator{dataDir: dataDir, publishedPath: publishedPath}
}

func (c *Consolidator) fragmentPath(groupID string) string {
	return filepath.Join(c.dataDir, fmt.Sprintf("event_epg_%s.xml", groupID))
}

func (c *Consolidator) eventsPath() string { return filepath.Join(c.dataDir, "events.xml") }
func (c *Consolidator) teamsPath() string  { return filepath.Join(c.dataDir, "teams.xml") }

// WriteEventFragment persists one group's generated document as its
// fragment, then rebuilds events.xml and the published file.
func (c *Consolidator) WriteEventFragment(groupID string, doc xmltv.Document) error {
	if err := xmltv.WriteAtomic(c.fragmentPath(groupID), doc); err != nil {
		return fmt.Errorf("epg: write fragment for group %s: %w", groupID, err)
	}
	if err := c.rebuildEvents(); err != nil {
		return err
	}
	return c.rebuildPublished()
}

// WriteTeamsDocument persists the merged team-channel document, then
// rebuilds the published file.
func (c *Consolidator) WriteTeamsDocument(doc xmltv.Document) error {
	if err := xmltv.WriteAtomic(c.teamsPath(), doc); err != nil {
		return fmt.Errorf("epg: write teams document: %w", err)
	}
	return c.rebuildPublished()
}

// rebuildEvents globs every group fragment under dataDir and merges their
// channels and programmes into events.xml, deduplicating declared channels
// by id. If no fragments exist yet, an empty but well-formed document is
// written so consumers never see a missing file.
func (c *Consolidator) rebuildEvents() error {
	matches, err := filepath.Glob(filepath.Join(c.dataDir, "event_epg_*.xml"))
	if err != nil {
		return fmt.Errorf("epg: glob fragments: %w", err)
	}

	merged := xmltv.Document{GeneratorName: "Teamarr"}
	seenChannels := map[string]bool{}

	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			log.Printf("[epg] skip unreadable fragment %s: %v", path, err)
			continue
		}
		doc, err := xmltv.Decode(f)
		f.Close()
		if err != nil {
			log.Printf("[epg] skip malformed fragment %s: %v", path, err)
			continue
		}
		for _, ch := range doc.Channels {
			if seenChannels[ch.ID] {
				continue
			}
			seenChannels[ch.ID] = true
			merged.Channels = append(merged.Channels, ch)
		}
		merged.Programmes = append(merged.Programmes, doc.Programmes...)
	}

	if err := xmltv.WriteAtomic(c.eventsPath(), merged); err != nil {
		return fmt.Errorf("epg: write events.xml: %w", err)
	}
	return nil
}

// rebuildPublished merges teams.xml and events.xml into the published
// file. Either input may be absent (not yet generated); an absent input
// contributes nothing rather than failing the merge.
func (c *Consolidator) rebuildPublished() error {
	merged := xmltv.Document{GeneratorName: "Teamarr"}
	seenChannels := map[string]bool{}

	for _, path := range []string{c.teamsPath(), c.eventsPath()} {
		doc, err := readDocIfExists(path)
		if err != nil {
			return err
		}
		if doc == nil {
			continue
		}
		for _, ch := range doc.Channels {
			if seenChannels[ch.ID] {
				continue
			}
			seenChannels[ch.ID] = true
			merged.Channels = append(merged.Channels, ch)
		}
		merged.Programmes = append(merged.Programmes, doc.Programmes...)
	}

	if err := os.MkdirAll(filepath.Dir(c.publishedPath), 0o755); err != nil {
		return fmt.Errorf("epg: create published directory: %w", err)
	}
	if err := xmltv.WriteAtomic(c.publishedPath, merged); err != nil {
		return fmt.Errorf("epg: write published file: %w", err)
	}
	return nil
}

func readDocIfExists(path string) (*xmltv.Document, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("epg: open %s: %w", path, err)
	}
	defer f.Close()
	doc, err := xmltv.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("epg: decode %s: %w", path, err)
	}
	return doc, nil
}
