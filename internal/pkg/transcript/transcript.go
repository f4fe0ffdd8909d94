// Package transcript implements quality scoring, filler-word filtering,
// and same-speaker merging over raw ASR output (C11).
package transcript

import (
	"fmt"
	"strings"

	"github.com/airenas/voxsum/internal/pkg/provider"
)

// Quality is the overall transcript confidence classification.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

const lowConfidenceThreshold = 0.7

// Score is the computed quality metrics for a transcript.
type Score struct {
	AvgConfidence     float64
	LowConfidenceRatio float64
	Quality           Quality
}

// ScoreSegments computes the quality score over raw segments. Segments
// with no confidence value are excluded from the average (vendor didn't
// report one); if none carry confidence, Quality defaults to medium.
func ScoreSegments(segs []provider.TranscriptSegment) Score {
	var sum float64
	var n, lowN int
	for _, s := range segs {
		if s.Confidence == nil {
			continue
		}
		sum += *s.Confidence
		n++
		if *s.Confidence < lowConfidenceThreshold {
			lowN++
		}
	}
	if n == 0 {
		return Score{Quality: QualityMedium}
	}
	avg := sum / float64(n)
	sc := Score{AvgConfidence: avg, LowConfidenceRatio: float64(lowN) / float64(n)}
	switch {
	case avg >= 0.8:
		sc.Quality = QualityHigh
	case avg >= 0.6:
		sc.Quality = QualityMedium
	default:
		sc.Quality = QualityLow
	}
	return sc
}

// NeedsQualityCaveat reports whether the Summary Generator should inject
// an explicit quality-caveat preamble and prefer a premium LLM.
func (s Score) NeedsQualityCaveat() bool {
	return s.Quality == QualityLow
}

// fillerWords is a minimal language-specific filler set for the two
// locales the system supports; there is no extension hook, and segments
// of any other locale are never treated as filler.
var fillerWords = map[string]map[string]bool{
	"zh": {"嗯": true, "啊": true, "呃": true, "那个": true},
	"en": {"um": true, "uh": true, "er": true, "like": true},
}

// isFiller reports whether a trimmed segment is a filler-word artifact:
// short, low-confidence, and present in the locale's filler set.
func isFiller(locale, content string, confidence *float64) bool {
	trimmed := strings.TrimSpace(content)
	if len([]rune(trimmed)) > 2 {
		return false
	}
	if confidence == nil || *confidence >= lowConfidenceThreshold {
		return false
	}
	set, ok := fillerWords[locale]
	if !ok {
		return false
	}
	return set[strings.ToLower(trimmed)]
}

// maxMergeGapSec is the inter-segment gap under which same-speaker
// segments are merged.
const maxMergeGapSec = 2.0

// Preprocess filters filler segments and merges consecutive same-speaker
// segments within maxMergeGapSec, returning the cleaned segment list.
func Preprocess(locale string, segs []provider.TranscriptSegment) []provider.TranscriptSegment {
	filtered := make([]provider.TranscriptSegment, 0, len(segs))
	for _, s := range segs {
		if isFiller(locale, s.Content, s.Confidence) {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) == 0 {
		return filtered
	}

	merged := []provider.TranscriptSegment{filtered[0]}
	for _, s := range filtered[1:] {
		last := &merged[len(merged)-1]
		if last.SpeakerID == s.SpeakerID && s.Start-last.End <= maxMergeGapSec {
			last.Content = strings.TrimSpace(last.Content) + " " + strings.TrimSpace(s.Content)
			last.End = s.End
			last.Words = append(last.Words, s.Words...)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// BlockText renders a speaker-annotated block text:
// "[speaker_x] <merged text>" separated by blank lines, the format
// the Summary Generator's templates expect as {transcript}.
func BlockText(segs []provider.TranscriptSegment) string {
	blocks := make([]string, 0, len(segs))
	for _, s := range segs {
		speaker := s.SpeakerID
		if speaker == "" {
			speaker = "unknown"
		}
		blocks = append(blocks, fmt.Sprintf("[%s] %s", speaker, strings.TrimSpace(s.Content)))
	}
	return strings.Join(blocks, "\n\n")
}
