package m3u

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Writer serializes entries back to extended M3U. Output preserves entry
// order and all recognized and extra attributes, so a parse/write/parse
// cycle yields the same playlist.
type Writer struct {
	w             io.Writer
	headerWritten bool
	headerAttrs   []string
}

// NewWriter creates an M3U writer targeting w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// SetTvgURL advertises an EPG source on the #EXTM3U header via url-tvg.
// Must be called before the header is written.
func (w *Writer) SetTvgURL(url string) {
	if url != "" {
		w.headerAttrs = append(w.headerAttrs, fmt.Sprintf(`url-tvg="%s"`, escapeQuotes(url)))
	}
}

// WriteHeader writes the #EXTM3U header line. WriteEntry calls it
// automatically if needed.
func (w *Writer) WriteHeader() error {
	if w.headerWritten {
		return nil
	}
	line := "#EXTM3U"
	if len(w.headerAttrs) > 0 {
		line += " " + strings.Join(w.headerAttrs, " ")
	}
	if _, err := fmt.Fprintln(w.w, line); err != nil {
		return fmt.Errorf("writing M3U header: %w", err)
	}
	w.headerWritten = true
	return nil
}

// WriteEntry writes one EXTINF directive followed by its stream URL.
func (w *Writer) WriteEntry(entry *Entry) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	var attrs []string
	if entry.TvgID != "" {
		attrs = append(attrs, fmt.Sprintf(`tvg-id="%s"`, escapeQuotes(entry.TvgID)))
	}
	if entry.TvgName != "" {
		attrs = append(attrs, fmt.Sprintf(`tvg-name="%s"`, escapeQuotes(entry.TvgName)))
	}
	if entry.TvgLogo != "" {
		attrs = append(attrs, fmt.Sprintf(`tvg-logo="%s"`, escapeQuotes(entry.TvgLogo)))
	}
	if entry.GroupTitle != "" {
		attrs = append(attrs, fmt.Sprintf(`group-title="%s"`, escapeQuotes(entry.GroupTitle)))
	}
	if entry.ChannelNumber > 0 {
		attrs = append(attrs, fmt.Sprintf(`tvg-chno="%d"`, entry.ChannelNumber))
	}

	// Sorted for stable output.
	if len(entry.Attrs) > 0 {
		keys := make([]string, 0, len(entry.Attrs))
		for k := range entry.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, fmt.Sprintf(`%s="%s"`, k, escapeQuotes(entry.Attrs[k])))
		}
	}

	duration := entry.Duration
	if duration == 0 {
		duration = -1
	}

	var extinf string
	if len(attrs) > 0 {
		extinf = fmt.Sprintf("#EXTINF:%d %s,%s", duration, strings.Join(attrs, " "), entry.Title)
	} else {
		extinf = fmt.Sprintf("#EXTINF:%d,%s", duration, entry.Title)
	}

	if _, err := fmt.Fprintln(w.w, extinf); err != nil {
		return fmt.Errorf("writing EXTINF: %w", err)
	}
	if _, err := fmt.Fprintln(w.w, entry.URL); err != nil {
		return fmt.Errorf("writing URL: %w", err)
	}
	return nil
}

// escapeQuotes escapes double quotes in attribute values.
func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
