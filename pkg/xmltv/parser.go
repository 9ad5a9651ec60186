// Package xmltv provides streaming XMLTV parsing and writing for
// electronic program guide data. All timestamps are normalized to UTC at
// parse time so instant comparisons never depend on the viewer's locale.
package xmltv

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// ErrInvalidFormat is returned when the input is not an XMLTV document
// (no <tv> root element).
var ErrInvalidFormat = errors.New("not an XMLTV document")

// Channel is a channel definition from the guide.
type Channel struct {
	ID string

	// DisplayNames holds every <display-name> in document order. Feeds
	// commonly list several aliases; all of them are useful for
	// name-based matching.
	DisplayNames []string

	Icon string
	URL  string
}

// DisplayName returns the primary (first) display name.
func (c *Channel) DisplayName() string {
	if len(c.DisplayNames) == 0 {
		return ""
	}
	return c.DisplayNames[0]
}

// Programme is a single schedule entry. Start and Stop are UTC.
type Programme struct {
	Channel     string
	Start       time.Time
	Stop        time.Time
	Title       string
	SubTitle    string
	Description string
	Category    string
	Icon        string
	EpisodeNum  string
	Rating      string
	Language    string
}

// Stats reports what a parse consumed and dropped.
type Stats struct {
	Channels   int
	Programmes int

	// Malformed counts programmes dropped for a missing channel id,
	// unparseable timestamps, or start >= stop.
	Malformed int
}

// Document is the buffered result of a parse.
type Document struct {
	Channels   []*Channel
	Programmes []*Programme
	Stats      Stats
}

// Parser provides streaming XMLTV parsing with callback-based processing.
// Malformed programmes are skipped and counted, never fatal.
type Parser struct {
	// OnChannel is called for each channel definition.
	OnChannel func(ch *Channel) error

	// OnProgramme is called for each valid programme.
	OnProgramme func(prog *Programme) error

	// OnError is called for recoverable parsing errors.
	OnError func(err error)
}

// xmltvTimeFormats are tried in order. The full form carries an explicit
// offset; truncated forms are implicitly UTC.
var xmltvTimeFormats = []string{
	"20060102150405 -0700",
	"20060102150405",
	"200601021504",
	"20060102",
}

// ParseTime parses an XMLTV timestamp such as "20240101120000 +0100" and
// returns it normalized to UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time string")
	}
	for _, format := range xmltvTimeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time: %s", s)
}

// Parse consumes an XMLTV document from r. It returns stats for the run
// and a non-nil error only for unreadable input, a failed callback, or
// content without a <tv> root (ErrInvalidFormat).
func (p *Parser) Parse(r io.Reader) (Stats, error) {
	var stats Stats

	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity

	sawRoot := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("reading XML token: %w", err)
		}

		elem, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		if !sawRoot {
			if elem.Name.Local != "tv" {
				return stats, ErrInvalidFormat
			}
			sawRoot = true
			continue
		}

		switch elem.Name.Local {
		case "channel":
			ch, err := parseChannel(decoder, elem)
			if err != nil {
				p.reportError(err)
				continue
			}
			stats.Channels++
			if p.OnChannel != nil {
				if err := p.OnChannel(ch); err != nil {
					return stats, fmt.Errorf("channel callback: %w", err)
				}
			}

		case "programme":
			prog, err := parseProgramme(decoder, elem)
			if err != nil {
				p.reportError(err)
				continue
			}
			if err := validateProgramme(prog); err != nil {
				stats.Malformed++
				p.reportError(err)
				continue
			}
			stats.Programmes++
			if p.OnProgramme != nil {
				if err := p.OnProgramme(prog); err != nil {
					return stats, fmt.Errorf("programme callback: %w", err)
				}
			}

		default:
			_ = decoder.Skip()
		}
	}

	if !sawRoot {
		return stats, ErrInvalidFormat
	}
	return stats, nil
}

// ParseCompressed parses a potentially compressed XMLTV document,
// auto-detecting gzip, bzip2 or xz by magic bytes.
func (p *Parser) ParseCompressed(r io.Reader) (Stats, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return Stats{}, fmt.Errorf("peeking header: %w", err)
	}

	var reader io.Reader = br
	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return Stats{}, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzr.Close()
		reader = gzr

	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		reader = bzip2.NewReader(br)

	case len(header) >= 6 && header[0] == 0xfd && header[1] == '7' && header[2] == 'z' &&
		header[3] == 'X' && header[4] == 'Z' && header[5] == 0x00:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return Stats{}, fmt.Errorf("creating xz reader: %w", err)
		}
		reader = xzr
	}

	return p.Parse(reader)
}

// Decode buffers an entire XMLTV document from r.
func Decode(r io.Reader) (*Document, error) {
	doc := &Document{}
	p := &Parser{
		OnChannel: func(ch *Channel) error {
			doc.Channels = append(doc.Channels, ch)
			return nil
		},
		OnProgramme: func(prog *Programme) error {
			doc.Programmes = append(doc.Programmes, prog)
			return nil
		},
	}
	stats, err := p.Parse(r)
	doc.Stats = stats
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DecodeString buffers an entire XMLTV document from a string.
func DecodeString(s string) (*Document, error) {
	return Decode(strings.NewReader(s))
}

// validateProgramme enforces the invariants a usable schedule entry needs.
func validateProgramme(prog *Programme) error {
	if prog.Channel == "" {
		return errors.New("programme missing channel id")
	}
	if prog.Start.IsZero() || prog.Stop.IsZero() {
		return fmt.Errorf("programme %q missing start or stop", prog.Title)
	}
	if !prog.Start.Before(prog.Stop) {
		return fmt.Errorf("programme %q start %s not before stop %s",
			prog.Title, prog.Start.Format(time.RFC3339), prog.Stop.Format(time.RFC3339))
	}
	return nil
}

// parseChannel consumes a channel element.
func parseChannel(decoder *xml.Decoder, start xml.StartElement) (*Channel, error) {
	ch := &Channel{}
	for _, attr := range start.Attr {
		if attr.Name.Local == "id" {
			ch.ID = attr.Value
		}
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}

		switch elem := token.(type) {
		case xml.StartElement:
			switch elem.Name.Local {
			case "display-name":
				var name string
				if err := decoder.DecodeElement(&name, &elem); err == nil {
					name = strings.TrimSpace(name)
					if name != "" {
						ch.DisplayNames = append(ch.DisplayNames, name)
					}
				}
			case "icon":
				for _, attr := range elem.Attr {
					if attr.Name.Local == "src" {
						ch.Icon = attr.Value
					}
				}
				_ = decoder.Skip()
			case "url":
				var url string
				if err := decoder.DecodeElement(&url, &elem); err == nil {
					ch.URL = strings.TrimSpace(url)
				}
			default:
				_ = decoder.Skip()
			}
		case xml.EndElement:
			if elem.Name.Local == "channel" {
				return ch, nil
			}
		}
	}
}

// parseProgramme consumes a programme element. Invalid timestamps leave
// the zero value; validateProgramme decides whether the entry survives.
func parseProgramme(decoder *xml.Decoder, start xml.StartElement) (*Programme, error) {
	prog := &Programme{}

	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "start":
			if t, err := ParseTime(attr.Value); err == nil {
				prog.Start = t
			}
		case "stop":
			if t, err := ParseTime(attr.Value); err == nil {
				prog.Stop = t
			}
		case "channel":
			prog.Channel = attr.Value
		}
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}

		switch elem := token.(type) {
		case xml.StartElement:
			switch elem.Name.Local {
			case "title":
				var title string
				if err := decoder.DecodeElement(&title, &elem); err == nil && prog.Title == "" {
					prog.Title = strings.TrimSpace(title)
				}
			case "sub-title":
				var subtitle string
				if err := decoder.DecodeElement(&subtitle, &elem); err == nil {
					prog.SubTitle = strings.TrimSpace(subtitle)
				}
			case "desc":
				var desc string
				if err := decoder.DecodeElement(&desc, &elem); err == nil {
					prog.Description = strings.TrimSpace(desc)
				}
			case "category":
				var cat string
				if err := decoder.DecodeElement(&cat, &elem); err == nil && prog.Category == "" {
					prog.Category = strings.TrimSpace(cat)
				}
			case "icon":
				for _, attr := range elem.Attr {
					if attr.Name.Local == "src" {
						prog.Icon = attr.Value
					}
				}
				_ = decoder.Skip()
			case "episode-num":
				var epNum string
				if err := decoder.DecodeElement(&epNum, &elem); err == nil {
					prog.EpisodeNum = strings.TrimSpace(epNum)
				}
			case "rating":
				parseRating(decoder, prog)
			case "language":
				var lang string
				if err := decoder.DecodeElement(&lang, &elem); err == nil {
					prog.Language = strings.TrimSpace(lang)
				}
			default:
				_ = decoder.Skip()
			}
		case xml.EndElement:
			if elem.Name.Local == "programme" {
				return prog, nil
			}
		}
	}
}

// parseRating pulls the value out of a rating element.
func parseRating(decoder *xml.Decoder, prog *Programme) {
	for {
		token, err := decoder.Token()
		if err != nil {
			return
		}

		switch elem := token.(type) {
		case xml.StartElement:
			if elem.Name.Local == "value" {
				var value string
				if err := decoder.DecodeElement(&value, &elem); err == nil {
					prog.Rating = strings.TrimSpace(value)
				}
			} else {
				_ = decoder.Skip()
			}
		case xml.EndElement:
			if elem.Name.Local == "rating" {
				return
			}
		}
	}
}

func (p *Parser) reportError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}
