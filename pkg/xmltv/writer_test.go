package xmltv

import (
	"strings"
	"testing"
	"time"
)

func TestWriter_RoundTrip(t *testing.T) {
	ch := &Channel{
		ID:           "channel1.tv",
		DisplayNames: []string{"Channel One", "Ch1"},
		Icon:         "http://example.com/logo.png",
	}
	prog := &Programme{
		Channel:     "channel1.tv",
		Start:       time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC),
		Stop:        time.Date(2024, 1, 15, 19, 0, 0, 0, time.UTC),
		Title:       "News & Weather",
		Description: "The latest news.",
		Category:    "News",
	}

	var sb strings.Builder
	w := NewWriter(&sb)
	if err := w.WriteChannel(ch); err != nil {
		t.Fatalf("write channel: %v", err)
	}
	if err := w.WriteProgramme(prog); err != nil {
		t.Fatalf("write programme: %v", err)
	}
	if err := w.WriteFooter(); err != nil {
		t.Fatalf("write footer: %v", err)
	}

	doc, err := DecodeString(sb.String())
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(doc.Channels) != 1 || len(doc.Programmes) != 1 {
		t.Fatalf("unexpected counts: %d channels, %d programmes", len(doc.Channels), len(doc.Programmes))
	}

	got := doc.Channels[0]
	if got.ID != ch.ID {
		t.Errorf("channel id: %q vs %q", ch.ID, got.ID)
	}
	if len(got.DisplayNames) != 2 || got.DisplayNames[1] != "Ch1" {
		t.Errorf("display names not preserved: %v", got.DisplayNames)
	}

	gp := doc.Programmes[0]
	if gp.Title != prog.Title {
		t.Errorf("title: %q vs %q", prog.Title, gp.Title)
	}
	if !gp.Start.Equal(prog.Start) || !gp.Stop.Equal(prog.Stop) {
		t.Errorf("times not preserved: %v-%v vs %v-%v", prog.Start, prog.Stop, gp.Start, gp.Stop)
	}
	if gp.Description != prog.Description || gp.Category != prog.Category {
		t.Errorf("fields not preserved: %+v", gp)
	}
}

func TestWriter_ChannelAfterProgrammeRejected(t *testing.T) {
	var sb strings.Builder
	w := NewWriter(&sb)

	prog := &Programme{
		Channel: "ch1",
		Start:   time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC),
		Stop:    time.Date(2024, 1, 15, 19, 0, 0, 0, time.UTC),
		Title:   "Programme",
	}
	if err := w.WriteProgramme(prog); err != nil {
		t.Fatalf("write programme: %v", err)
	}
	if err := w.WriteChannel(&Channel{ID: "ch2"}); err == nil {
		t.Fatal("expected error writing channel after programme")
	}
}

func TestFormatTime_AlwaysUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	local := time.Date(2024, 1, 15, 18, 0, 0, 0, loc)
	if got := FormatTime(local); got != "20240115170000 +0000" {
		t.Errorf("expected UTC output, got %q", got)
	}
}
