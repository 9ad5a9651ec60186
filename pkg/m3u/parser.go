// Package m3u provides streaming M3U playlist parsing and writing.
// It handles extended M3U (M3U8) with EXTINF metadata, permissive
// key="value" attribute extraction, and transparent decompression of
// gzip, bzip2 and xz payloads.
package m3u

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"
)

// ErrInvalidFormat is returned when the input contains content but no M3U
// directives at all. Empty input is not an error.
var ErrInvalidFormat = errors.New("not an M3U playlist")

// Header holds attributes from the #EXTM3U header line.
type Header struct {
	// URLTvg is the EPG source advertised by the playlist via the
	// url-tvg (or x-tvg-url) attribute, if any.
	URLTvg string

	// Attrs contains all header attributes as written.
	Attrs map[string]string
}

// Entry represents one channel entry: an EXTINF directive paired with the
// stream URL on the following non-directive line.
type Entry struct {
	// Duration is the declared duration in seconds (-1 for live streams).
	Duration int

	// TvgID is the EPG channel identifier.
	TvgID string

	// TvgName is the name from the tvg-name attribute.
	TvgName string

	// TvgLogo is the channel logo URL.
	TvgLogo string

	// GroupTitle is the category from the group-title attribute.
	GroupTitle string

	// ChannelNumber is the tvg-chno attribute value.
	ChannelNumber int

	// Title is the display title following the last unquoted comma.
	Title string

	// URL is the stream URL.
	URL string

	// Attrs holds attributes not promoted to a named field.
	Attrs map[string]string
}

// Stats reports what a parse consumed and dropped.
type Stats struct {
	// Entries is the number of emitted EXTINF+URL pairs.
	Entries int

	// Malformed counts EXTINF directives that were dropped: orphaned
	// directives with no following URL line, or directives carrying no
	// usable metadata at all.
	Malformed int
}

// Playlist is the buffered result of a parse.
type Playlist struct {
	Header  Header
	Entries []*Entry
	Stats   Stats
}

// Parser provides streaming M3U parsing with callback-based processing.
// Entries are emitted only once both the EXTINF directive and its URL line
// have been consumed; an unpaired EXTINF is counted, never fatal.
type Parser struct {
	// OnHeader is called once if a #EXTM3U header line is seen.
	OnHeader func(h *Header) error

	// OnEntry is called for each parsed entry. Required.
	OnEntry func(e *Entry) error

	// OnError is called for recoverable per-line problems.
	// If nil, they are counted in Stats and otherwise ignored.
	OnError func(line int, err error)
}

var (
	// Duration and attribute portion: #EXTINF:-1 tvg-id="...",Title
	extinfRegex = regexp.MustCompile(`^#EXTINF:\s*(-?\d+)\s*(.*)$`)

	// key="value" or bare key=value pairs
	attrRegex = regexp.MustCompile(`([a-zA-Z0-9_-]+)=(?:"([^"]*)"|([^\s,]+))`)
)

// Parse consumes an M3U playlist from r. It returns stats for the run and
// a non-nil error only for unreadable input, a failed callback, or content
// that contains no M3U directives at all (ErrInvalidFormat).
func (p *Parser) Parse(r io.Reader) (Stats, error) {
	var stats Stats
	if p.OnEntry == nil {
		return stats, fmt.Errorf("OnEntry callback is required")
	}

	scanner := bufio.NewScanner(r)
	// Some playlists carry megabyte-long URL lines.
	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	var pending *Entry
	line := 0
	sawDirective := false
	sawContent := false

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())

		if text == "" {
			continue
		}
		sawContent = true

		if strings.HasPrefix(text, "#EXTM3U") {
			sawDirective = true
			if p.OnHeader != nil {
				if err := p.OnHeader(parseHeader(text)); err != nil {
					return stats, fmt.Errorf("header callback at line %d: %w", line, err)
				}
			}
			continue
		}

		if strings.HasPrefix(text, "#EXTINF:") {
			sawDirective = true
			if pending != nil {
				// Previous EXTINF never got its URL line.
				stats.Malformed++
				p.reportError(line, errors.New("EXTINF directive without stream URL"))
			}
			entry, err := parseExtinf(text)
			if err != nil {
				stats.Malformed++
				p.reportError(line, err)
				pending = nil
				continue
			}
			pending = entry
			continue
		}

		// Other directives (#EXTGRP, #EXTVLCOPT, comments) may sit
		// between an EXTINF and its URL; the pending entry survives.
		if strings.HasPrefix(text, "#") {
			continue
		}

		// Non-directive line: the stream URL for the pending entry.
		// Bare URLs with no preceding EXTINF carry no channel metadata
		// and are skipped.
		if pending == nil {
			continue
		}
		pending.URL = text
		stats.Entries++
		if err := p.OnEntry(pending); err != nil {
			return stats, fmt.Errorf("entry callback at line %d: %w", line, err)
		}
		pending = nil
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scanning M3U: %w", err)
	}

	if pending != nil {
		// Trailing EXTINF at end of input.
		stats.Malformed++
		p.reportError(line, errors.New("EXTINF directive without stream URL"))
	}

	if sawContent && !sawDirective {
		return stats, ErrInvalidFormat
	}
	return stats, nil
}

// ParseCompressed parses a potentially compressed playlist, auto-detecting
// gzip, bzip2 or xz by magic bytes.
func (p *Parser) ParseCompressed(r io.Reader) (Stats, error) {
	dr, err := decompress(r)
	if err != nil {
		return Stats{}, err
	}
	return p.Parse(dr)
}

// Decode buffers an entire playlist from r.
func Decode(r io.Reader) (*Playlist, error) {
	pl := &Playlist{}
	p := &Parser{
		OnHeader: func(h *Header) error {
			pl.Header = *h
			return nil
		},
		OnEntry: func(e *Entry) error {
			pl.Entries = append(pl.Entries, e)
			return nil
		},
	}
	stats, err := p.Parse(r)
	pl.Stats = stats
	if err != nil {
		return nil, err
	}
	return pl, nil
}

// DecodeString buffers an entire playlist from a string.
func DecodeString(s string) (*Playlist, error) {
	return Decode(strings.NewReader(s))
}

// decompress wraps r with the appropriate decompressor based on magic
// bytes, or returns the buffered reader unchanged for plain text.
func decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peeking header: %w", err)
	}

	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return gzr, nil

	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		return bzip2.NewReader(br), nil

	case len(header) >= 6 && header[0] == 0xfd && header[1] == '7' && header[2] == 'z' &&
		header[3] == 'X' && header[4] == 'Z' && header[5] == 0x00:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		return xzr, nil
	}
	return br, nil
}

// parseHeader extracts attributes from a #EXTM3U line.
func parseHeader(line string) *Header {
	h := &Header{Attrs: make(map[string]string)}
	for _, m := range attrRegex.FindAllStringSubmatch(line, -1) {
		key := strings.ToLower(m[1])
		value := m[2]
		if value == "" {
			value = m[3]
		}
		h.Attrs[key] = value
		if key == "url-tvg" || key == "x-tvg-url" {
			if h.URLTvg == "" {
				h.URLTvg = value
			}
		}
	}
	return h
}

// parseExtinf parses an EXTINF directive. Malformed attribute syntax
// degrades to treating the whole remainder as the display title rather
// than dropping the line; only a directive with nothing after the colon
// is an error.
func parseExtinf(line string) (*Entry, error) {
	matches := extinfRegex.FindStringSubmatch(line)
	if matches == nil {
		remainder := strings.TrimSpace(strings.TrimPrefix(line, "#EXTINF:"))
		if remainder == "" {
			return nil, errors.New("empty EXTINF directive")
		}
		return &Entry{
			Duration: -1,
			Title:    remainder,
			Attrs:    make(map[string]string),
		}, nil
	}

	duration, _ := strconv.Atoi(matches[1])
	remainder := matches[2]

	entry := &Entry{
		Duration: duration,
		Attrs:    make(map[string]string),
	}

	// Title is everything after the last comma outside quotes.
	if idx := lastUnquotedComma(remainder); idx >= 0 {
		entry.Title = strings.TrimSpace(remainder[idx+1:])
		remainder = remainder[:idx]
	}

	for _, m := range attrRegex.FindAllStringSubmatch(remainder, -1) {
		key := strings.ToLower(m[1])
		value := m[2]
		if value == "" {
			value = m[3]
		}

		switch key {
		case "tvg-id":
			entry.TvgID = value
		case "tvg-name":
			entry.TvgName = value
		case "tvg-logo":
			entry.TvgLogo = value
		case "group-title":
			entry.GroupTitle = value
		case "tvg-chno":
			entry.ChannelNumber, _ = strconv.Atoi(value)
		default:
			entry.Attrs[key] = value
		}
	}

	if entry.Title == "" && len(entry.Attrs) == 0 && entry.TvgID == "" &&
		entry.TvgName == "" && remainder != "" {
		// No comma and no recognizable attributes; the remainder is the
		// display name.
		entry.Title = strings.TrimSpace(remainder)
	}

	return entry, nil
}

// lastUnquotedComma finds the comma separating attributes from the title,
// skipping commas inside quoted values.
func lastUnquotedComma(s string) int {
	inQuotes := false
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '"' {
			inQuotes = !inQuotes
		}
		if s[i] == ',' && !inQuotes {
			return i
		}
	}
	return -1
}

func (p *Parser) reportError(line int, err error) {
	if p.OnError != nil {
		p.OnError(line, err)
	}
}
