// Package merge turns word-timestamped transcription results from possibly
// overlapping, out-of-order chunks into clean, de-duplicated text.
//
// The engine is pure: it reads a result, the chunk's offset within the
// session and the session's dedup watermark, and returns the text to append
// plus the new watermark. Deduplication relies solely on the watermark: any
// word that ends at or before the frontier already merged (minus a small
// tolerance) is dropped.
package merge

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

// DefaultEpsilon is the tolerance, in seconds, applied to the watermark.
const DefaultEpsilon = domain.DefaultEpsilonSeconds

// TimedWord is a word positioned on the session timeline, in seconds.
type TimedWord struct {
	Text  string
	Start float64
	End   float64
}

// Result is the outcome of merging one chunk.
type Result struct {
	// Text is the cleaned, de-duplicated text contributed by the chunk.
	Text string

	// Watermark is the new dedup watermark.
	Watermark float64

	// Kept and Dropped count words that survived or failed the watermark filter.
	Kept    int
	Dropped int
}

// Engine merges chunk transcripts against a watermark.
type Engine struct {
	epsilon float64
}

// NewEngine creates an engine with the given watermark tolerance in seconds.
// A negative epsilon is treated as zero.
func NewEngine(epsilon float64) *Engine {
	if epsilon < 0 {
		epsilon = 0
	}
	return &Engine{epsilon: epsilon}
}

// Epsilon returns the configured tolerance.
func (e *Engine) Epsilon() float64 {
	return e.epsilon
}

// Merge flattens result onto the session timeline using offsetMs, drops words
// behind watermark, and returns the joined text and the advanced watermark.
func (e *Engine) Merge(result *domain.TranscriptionResult, offsetMs int64, watermark float64) Result {
	words := Flatten(result, offsetMs)
	if len(words) == 0 {
		return Result{Watermark: watermark}
	}

	sort.SliceStable(words, func(i, j int) bool {
		return words[i].Start < words[j].Start
	})

	threshold := watermark - e.epsilon
	maxEnd := math.Inf(-1)
	var b strings.Builder
	out := Result{}
	for _, w := range words {
		if w.End > maxEnd {
			maxEnd = w.End
		}
		if w.End <= threshold {
			out.Dropped++
			continue
		}
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		out.Kept++
		b.WriteString(w.Text)
		b.WriteByte(' ')
	}

	out.Text = CollapseWhitespace(b.String())
	out.Watermark = math.Max(watermark, maxEnd)
	return out
}

// Flatten produces one word list from a transcription result. Word-level
// timestamps are preferred; segments without words contribute their whole
// text as a single token spanning the segment. Times are shifted by offsetMs
// and bidi formatting characters are stripped from every word.
func Flatten(result *domain.TranscriptionResult, offsetMs int64) []TimedWord {
	if result == nil {
		return nil
	}
	offset := float64(offsetMs) / 1000.0

	if len(result.Words) > 0 {
		out := make([]TimedWord, 0, len(result.Words))
		for _, w := range result.Words {
			out = append(out, timed(w.Word, w.Start, w.End, offset))
		}
		return out
	}

	var out []TimedWord
	for _, seg := range result.Segments {
		if len(seg.Words) > 0 {
			for _, w := range seg.Words {
				out = append(out, timed(w.Word, w.Start, w.End, offset))
			}
			continue
		}
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		out = append(out, timed(seg.Text, seg.Start, seg.End, offset))
	}
	return out
}

func timed(text string, start, end, offset float64) TimedWord {
	return TimedWord{
		Text:  StripInvisible(text),
		Start: start + offset,
		End:   end + offset,
	}
}

// CollapseWhitespace replaces every run of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
