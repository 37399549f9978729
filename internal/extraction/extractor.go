// Package extraction defines the contract with the external LLM that pulls
// structured incident fields out of transcript chunks, plus the parsing of
// its responses into partial canonical records.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/canonical"
)

var (
	// ErrUnavailable marks transient extractor failures (network, 5xx,
	// rate limiting). Callers skip the chunk and keep the session alive.
	ErrUnavailable = errors.New("extractor unavailable")

	// ErrBadResponse marks a response that carried no parseable record.
	ErrBadResponse = errors.New("malformed extractor response")
)

// Extractor turns one transcript chunk into a partial canonical record. The
// filled map carries the wire-keyed fields already extracted in earlier
// chunks so the model only reports new information. A chunk with nothing new
// yields an all-empty record, not an error.
type Extractor interface {
	Extract(ctx context.Context, chunk string, filled map[string]string) (canonical.Record, error)
}

// Disabled is the extractor used when no LLM endpoint is configured. Chunks
// still accumulate into the transcript; the record only grows through the
// transcript-driven normalization rules.
type Disabled struct{}

func (Disabled) Extract(ctx context.Context, chunk string, filled map[string]string) (canonical.Record, error) {
	return canonical.Record{}, nil
}

var reCodeFence = regexp.MustCompile("```(?:json)?\\s*")

// ParsePartial pulls a partial record out of a raw model completion. Markdown
// code fences are stripped and the outermost JSON object is taken, so prose
// around the payload is tolerated; anything without a JSON object is not.
func ParsePartial(raw string) (canonical.Record, error) {
	text := strings.TrimSpace(reCodeFence.ReplaceAllString(raw, ""))

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last == -1 || last < first {
		return canonical.Record{}, fmt.Errorf("%w: no JSON object in completion", ErrBadResponse)
	}

	rec, err := canonical.Decode([]byte(text[first : last+1]))
	if err != nil {
		return canonical.Record{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return rec, nil
}
