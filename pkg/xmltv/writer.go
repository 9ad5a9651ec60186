package xmltv

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// Writer serializes channels and programmes back to XMLTV. All channel
// definitions must be written before the first programme, matching the
// DTD's element ordering.
type Writer struct {
	w             io.Writer
	generator     string
	generatorURL  string
	headerWritten bool
	channelsDone  bool
}

// NewWriter creates an XMLTV writer targeting w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:            w,
		generator:    "tvgrid",
		generatorURL: "https://github.com/jmylchreest/tvgrid",
	}
}

// SetGenerator overrides the generator-info attributes on the tv element.
// Must be called before the header is written.
func (w *Writer) SetGenerator(name, url string) {
	w.generator = name
	w.generatorURL = url
}

// WriteHeader writes the XML declaration and opens the tv element.
func (w *Writer) WriteHeader() error {
	if w.headerWritten {
		return nil
	}
	if _, err := fmt.Fprintln(w.w, `<?xml version="1.0" encoding="UTF-8"?>`); err != nil {
		return fmt.Errorf("writing XML declaration: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "<tv generator-info-name=%q generator-info-url=%q>\n",
		w.generator, w.generatorURL); err != nil {
		return fmt.Errorf("writing tv element: %w", err)
	}
	w.headerWritten = true
	return nil
}

// WriteChannel writes a channel definition.
func (w *Writer) WriteChannel(ch *Channel) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if w.channelsDone {
		return fmt.Errorf("channels must be written before programmes")
	}

	if _, err := fmt.Fprintf(w.w, "  <channel id=\"%s\">\n", xmlEscape(ch.ID)); err != nil {
		return fmt.Errorf("writing channel start: %w", err)
	}

	names := ch.DisplayNames
	if len(names) == 0 {
		names = []string{ch.ID}
	}
	for _, name := range names {
		if _, err := fmt.Fprintf(w.w, "    <display-name>%s</display-name>\n", xmlEscape(name)); err != nil {
			return err
		}
	}

	if ch.Icon != "" {
		if _, err := fmt.Fprintf(w.w, "    <icon src=\"%s\"/>\n", xmlEscape(ch.Icon)); err != nil {
			return err
		}
	}
	if ch.URL != "" {
		if _, err := fmt.Fprintf(w.w, "    <url>%s</url>\n", xmlEscape(ch.URL)); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w.w, "  </channel>")
	return err
}

// WriteProgramme writes a programme entry with UTC timestamps.
func (w *Writer) WriteProgramme(prog *Programme) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	w.channelsDone = true

	if _, err := fmt.Fprintf(w.w, "  <programme start=\"%s\" stop=\"%s\" channel=\"%s\">\n",
		FormatTime(prog.Start), FormatTime(prog.Stop), xmlEscape(prog.Channel)); err != nil {
		return fmt.Errorf("writing programme start: %w", err)
	}

	lang := prog.Language
	if lang == "" {
		lang = "en"
	}
	if _, err := fmt.Fprintf(w.w, "    <title lang=%q>%s</title>\n", lang, xmlEscape(prog.Title)); err != nil {
		return err
	}
	if prog.SubTitle != "" {
		if _, err := fmt.Fprintf(w.w, "    <sub-title lang=%q>%s</sub-title>\n", lang, xmlEscape(prog.SubTitle)); err != nil {
			return err
		}
	}
	if prog.Description != "" {
		if _, err := fmt.Fprintf(w.w, "    <desc lang=%q>%s</desc>\n", lang, xmlEscape(prog.Description)); err != nil {
			return err
		}
	}
	if prog.Category != "" {
		if _, err := fmt.Fprintf(w.w, "    <category lang=%q>%s</category>\n", lang, xmlEscape(prog.Category)); err != nil {
			return err
		}
	}
	if prog.Icon != "" {
		if _, err := fmt.Fprintf(w.w, "    <icon src=\"%s\"/>\n", xmlEscape(prog.Icon)); err != nil {
			return err
		}
	}
	if prog.EpisodeNum != "" {
		if _, err := fmt.Fprintf(w.w, "    <episode-num system=\"onscreen\">%s</episode-num>\n", xmlEscape(prog.EpisodeNum)); err != nil {
			return err
		}
	}
	if prog.Rating != "" {
		if _, err := fmt.Fprintf(w.w, "    <rating><value>%s</value></rating>\n", xmlEscape(prog.Rating)); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w.w, "  </programme>")
	return err
}

// WriteFooter closes the tv element.
func (w *Writer) WriteFooter() error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w.w, "</tv>")
	return err
}

// FormatTime renders a timestamp in XMLTV format, always UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format("20060102150405 +0000")
}

// xmlEscape escapes special XML characters.
func xmlEscape(s string) string {
	var buf []byte
	xml.EscapeText((*xmlEscapeWriter)(&buf), []byte(s))
	return string(buf)
}

type xmlEscapeWriter []byte

func (w *xmlEscapeWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
