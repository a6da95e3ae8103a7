package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/veracast/internal/caption"
	"github.com/ppiankov/veracast/internal/model"
)

// Record is one line of a recorded capture. Exactly one of Text, Snapshot
// and Flush is expected.
type Record struct {
	Text     string                 `json:"text,omitempty"`
	Context  *caption.StaticContext `json:"context,omitempty"`
	Snapshot string                 `json:"snapshot,omitempty"` // HTML of the caption area
	Flush    bool                   `json:"flush,omitempty"`
}

// ReplayStats summarizes a replay
type ReplayStats struct {
	Lines     int
	Fragments int
	Finalized int
	Skipped   int // Malformed lines
}

// Replay feeds a JSON-lines capture through the pipeline. Malformed lines
// are skipped; the trailing utterance is flushed at the end.
func (p *Pipeline) Replay(ctx context.Context, r io.Reader) (ReplayStats, error) {
	var stats ReplayStats
	dom := caption.NewDOMClassifier()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stats.Lines++

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			stats.Skipped++
			p.logger.Debug("skipping malformed capture line", "line", stats.Lines, "error", err)
			continue
		}

		switch {
		case rec.Flush:
			if _, ok := p.Flush(); ok {
				stats.Finalized++
			}
		case rec.Snapshot != "":
			doc, err := caption.ParseSnapshot(rec.Snapshot)
			if err != nil {
				stats.Skipped++
				continue
			}
			for _, obs := range dom.Observations(doc) {
				stats.Fragments++
				stats.Finalized += countFinal(p.Ingest(obs.Text, obs.Context))
			}
		case rec.Text != "":
			stats.Fragments++
			stats.Finalized += countFinal(p.Ingest(rec.Text, contextOf(rec.Context)))
		default:
			stats.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read capture: %w", err)
	}

	if _, ok := p.Flush(); ok {
		stats.Finalized++
	}
	return stats, nil
}

// contextOf keeps a missing context untyped so it reads as a continuation
func contextOf(sc *caption.StaticContext) any {
	if sc == nil {
		return nil
	}
	return *sc
}

func countFinal(evs []model.UtteranceEvent) int {
	n := 0
	for _, ev := range evs {
		if ev.Final {
			n++
		}
	}
	return n
}
