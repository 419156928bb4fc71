// Package xmltv decodes and encodes the XMLTV EPG document format.
// Decoding is adapted from the upstream EPG sync parser; malformed
// individual elements are skipped rather than failing the whole document,
// so a partial upstream feed still yields maximum usable data. Encoding is
// ported from Teamarr's original XMLTV writer into idiomatic encoding/xml.
package xmltv

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
)

// dateLayout is the XMLTV timestamp format: YYYYMMDDHHMMSS ±HHMM.
const dateLayout = "20060102150405 -0700"

// Channel is a parsed or to-be-written <channel> element.
type Channel struct {
	ID          string
	DisplayName string
	IconSrc     string
}

// Programme is a parsed or to-be-written <programme> element.
type Programme struct {
	ChannelID   string
	Start       time.Time
	Stop        time.Time
	Title       string
	Description string
	Category    string
	IconSrc     string
}

// Document holds a full parsed or assembled XMLTV document.
type Document struct {
	GeneratorName string
	Channels      []Channel
	Programmes    []Programme
}

// --- decode ---------------------------------------------------------------

type xmlChannel struct {
	ID          string `xml:"id,attr"`
	DisplayName string `xml:"display-name"`
	Icon        struct {
		Src string `xml:"src,attr"`
	} `xml:"icon"`
}

type xmlProgramme struct {
	Start   string `xml:"start,attr"`
	Stop    string `xml:"stop,attr"`
	Channel string `xml:"channel,attr"`
	Title   string `xml:"title"`
	Desc    string `xml:"desc"`
	Icon    struct {
		Src string `xml:"src,attr"`
	} `xml:"icon"`
	Category []string `xml:"category"`
}

// Decode parses an XMLTV document from r. Elements that fail to parse are
// skipped so a partial feed still yields maximum usable data.
func Decode(r io.Reader) (*Document, error) {
	decoder := xml.NewDecoder(r)
	doc := &Document{}

	var inTV bool
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmltv: xml token: %w", err)
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "tv":
				inTV = true
				for _, attr := range el.Attr {
					if attr.Name.Local == "generator-info-name" {
						doc.GeneratorName = attr.Value
					}
				}

			case "channel":
				if !inTV {
					continue
				}
				var raw xmlChannel
				if err := decoder.DecodeElement(&raw, &el); err != nil {
					continue
				}
				if raw.ID == "" {
					continue
				}
				doc.Channels = append(doc.Channels, Channel{
					ID:          raw.ID,
					DisplayName: raw.DisplayName,
					IconSrc:     raw.Icon.Src,
				})

			case "programme":
				if !inTV {
					continue
				}
				var raw xmlProgramme
				if err := decoder.DecodeElement(&raw, &el); err != nil {
					continue
				}
				start, err := time.Parse(dateLayout, raw.Start)
				if err != nil {
					continue
				}
				stop, err := time.Parse(dateLayout, raw.Stop)
				if err != nil {
					continue
				}
				category := ""
				if len(raw.Category) > 0 {
					category = raw.Category[0]
				}
				doc.Programmes = append(doc.Programmes, Programme{
					ChannelID:   raw.Channel,
					Start:       start,
					Stop:        stop,
					Title:       raw.Title,
					Description: raw.Desc,
					Category:    category,
					IconSrc:     raw.Icon.Src,
				})
			}

		case xml.EndElement:
			if el.Name.Local == "tv" {
				inTV = false
			}
		}
	}

	return doc, nil
}

// --- encode ---------------------------------------------------------------

type tvElement struct {
	XMLName     xml.Name        `xml:"tv"`
	Generator   string          `xml:"generator-info-name,attr"`
	Channels    []channelElem   `xml:"channel"`
	Programmes  []programmeElem `xml:"programme"`
}

type channelElem struct {
	ID          string   `xml:"id,attr"`
	DisplayName string   `xml:"display-name"`
	Icon        *iconElem `xml:"icon,omitempty"`
}

type programmeElem struct {
	Start       string    `xml:"start,attr"`
	Stop        string    `xml:"stop,attr"`
	ChannelID   string    `xml:"channel,attr"`
	Title       langElem  `xml:"title"`
	Description *langElem `xml:"desc,omitempty"`
	Category    *langElem `xml:"category,omitempty"`
	Icon        *iconElem `xml:"icon,omitempty"`
}

type langElem struct {
	Lang string `xml:"lang,attr"`
	Text string `xml:",chardata"`
}

type iconElem struct {
	Src string `xml:"src,attr"`
}

// Encode writes doc as an XMLTV document to w, indented for readability.
func Encode(w io.Writer, doc Document) error {
	tv := tvElement{Generator: doc.GeneratorName}
	if tv.Generator == "" {
		tv.Generator = "Teamarr"
	}

	for _, c := range doc.Channels {
		ce := channelElem{ID: c.ID, DisplayName: c.DisplayName}
		if c.IconSrc != "" {
			ce.Icon = &iconElem{Src: c.IconSrc}
		}
		tv.Channels = append(tv.Channels, ce)
	}

	for _, p := range doc.Programmes {
		pe := programmeElem{
			Start:     formatTime(p.Start),
			Stop:      formatTime(p.Stop),
			ChannelID: p.ChannelID,
			Title:     langElem{Lang: "en", Text: p.Title},
		}
		if p.Description != "" {
			pe.Description = &langElem{Lang: "en", Text: p.Description}
		}
		if p.Category != "" {
			pe.Category = &langElem{Lang: "en", Text: p.Category}
		}
		if p.IconSrc != "" {
			pe.Icon = &iconElem{Src: p.IconSrc}
		}
		tv.Programmes = append(tv.Programmes, pe)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("xmltv: write header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(tv); err != nil {
		return fmt.Errorf("xmltv: encode: %w", err)
	}
	_, err := w.Write([]byte("\n"))
	return err
}

func formatTime(t time.Time) string {
	return t.Format(dateLayout)
}

// FromProgrammes converts domain.Programmes plus a channel list into a
// Document ready for Encode.
func FromProgrammes(channels []Channel, programmes []domain.Programme) Document {
	doc := Document{GeneratorName: "Teamarr", Channels: channels}
	for _, p := range programmes {
		doc.Programmes = append(doc.Programmes, Programme{
			ChannelID:   p.ChannelID,
			Start:       p.Start,
			Stop:        p.Stop,
			Title:       p.Title,
			Description: p.Description,
			Category:    p.Category,
			IconSrc:     p.Icon,
		})
	}
	return doc
}

// WriteAtomic writes doc to path by first writing to a temp file in the
// same directory, then renaming — so consumers never observe a partial
// write.
func WriteAtomic(path string, doc Document) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".xmltv-*.tmp")
	if err != nil {
		return fmt.Errorf("xmltv: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if err := Encode(tmp, doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("xmltv: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("xmltv: rename temp file: %w", err)
	}
	return nil
}
