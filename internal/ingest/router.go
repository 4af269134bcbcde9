package ingest

import "unicode/utf8"

const (
	ClassDigital = "digital"
	ClassScanned = "scanned"

	// A sampled page with fewer native characters than this is
	// "low-density". Counted in runes so CJK pages are not inflated
	// by their UTF-8 byte width.
	lowDensityThreshold = 50
	maxSampledPages     = 3
)

// TextSampler is the slice of Document the router needs.
type TextSampler interface {
	PageCount() int
	PageText(num int) (string, error)
}

// Classify decides whether a document is text-native or image-only by
// sampling up to the first three pages. If more than half of the sampled
// pages are low-density the document is routed to the scanned path. A
// zero-page document classifies as digital: no majority is possible.
// This is a heuristic; a wrong call routes content through the slower
// path, it is not reconciled after the fact.
func Classify(doc TextSampler) (string, error) {
	total := doc.PageCount()
	sample := total
	if sample > maxSampledPages {
		sample = maxSampledPages
	}
	if sample == 0 {
		return ClassDigital, nil
	}
	lowDensity := 0
	for i := 1; i <= sample; i++ {
		text, err := doc.PageText(i)
		if err != nil {
			return "", err
		}
		if utf8.RuneCountInString(text) < lowDensityThreshold {
			lowDensity++
		}
	}
	if lowDensity*2 > sample {
		return ClassScanned, nil
	}
	return ClassDigital, nil
}
