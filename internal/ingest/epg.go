package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmylchreest/tvgrid/internal/guide"
	"github.com/jmylchreest/tvgrid/internal/models"
	"github.com/jmylchreest/tvgrid/pkg/xmltv"
)

// EPGResult is a parsed EPG mapped to guide input form. Programs are keyed
// by the EPG channel id they belong to, in document order.
type EPGResult struct {
	Channels  []*guide.EpgChannel
	Programs  map[string][]guide.Program
	Malformed int
}

// LoadEPG fetches and parses an XMLTV source. Compressed content is
// detected and decompressed transparently.
func (l *Loader) LoadEPG(ctx context.Context, source string) (*EPGResult, error) {
	rc, err := l.open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return l.parseEPG(ctx, rc)
}

func (l *Loader) parseEPG(ctx context.Context, r io.Reader) (*EPGResult, error) {
	res := &EPGResult{Programs: make(map[string][]guide.Program)}

	parser := &xmltv.Parser{
		OnChannel: func(ch *xmltv.Channel) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			res.Channels = append(res.Channels, &guide.EpgChannel{
				ID:           ch.ID,
				DisplayNames: ch.DisplayNames,
				Icon:         ch.Icon,
			})
			return nil
		},
		OnProgramme: func(prog *xmltv.Programme) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			res.Programs[prog.Channel] = append(res.Programs[prog.Channel], guide.Program{
				Title:       prog.Title,
				SubTitle:    prog.SubTitle,
				Description: prog.Description,
				Category:    prog.Category,
				Start:       prog.Start,
				End:         prog.Stop,
				Icon:        prog.Icon,
				EpisodeNum:  prog.EpisodeNum,
				Rating:      prog.Rating,
			})
			return nil
		},
		OnError: func(err error) {
			l.logger.Debug("skipping EPG record", slog.String("error", err.Error()))
		},
	}

	stats, err := parser.ParseCompressed(r)
	if err != nil {
		if errors.Is(err, xmltv.ErrInvalidFormat) {
			return nil, fmt.Errorf("%w: %v", models.ErrFormatUnrecognized, err)
		}
		return nil, fmt.Errorf("parsing EPG: %w", err)
	}

	res.Malformed = stats.Malformed
	return res, nil
}
