package ocr

import (
	"math"
	"slices"
	"strings"
)

// DefaultLineThreshold is the largest vertical gap, in pixels, between two
// consecutive detections that still places them on the same line.
const DefaultLineThreshold = 30.0

// Line is a group of detections reconstructed as one row of text.
type Line struct {
	// Top is the y coordinate of the first detection in the line.
	Top   float64
	Words []Detection
}

// String joins the words of the line with single spaces.
func (l Line) String() string {
	texts := make([]string, len(l.Words))
	for i, w := range l.Words {
		texts[i] = *w.Text
	}
	return strings.Join(texts, " ")
}

// Confidence is the mean confidence of the words in the line.
func (l Line) Confidence() float64 {
	if len(l.Words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range l.Words {
		sum += w.Confidence
	}
	return sum / float64(len(l.Words))
}

// GroupLines sorts valid detections top to bottom and groups them into lines.
//
// A detection joins the current line when its top y is within threshold of
// the previous detection's top y. The comparison is against the previous
// detection, not the line's first one, so a slow downward drift can keep a
// long run of detections on one line. Words inside a line keep the order of
// the stable y sort; no x ordering is applied.
func GroupLines(detections []Detection, threshold float64) []Line {
	valid := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Valid() {
			valid = append(valid, d)
		}
	}

	slices.SortStableFunc(valid, func(a, b Detection) int {
		ay, by := a.Box.TopLeft().Y, b.Box.TopLeft().Y
		switch {
		case ay < by:
			return -1
		case ay > by:
			return 1
		}
		return 0
	})

	lines := []Line{}
	var current *Line
	var lastY float64

	for _, d := range valid {
		y := d.Box.TopLeft().Y

		if current == nil || math.Abs(y-lastY) <= threshold {
			if current == nil {
				current = &Line{Top: y}
			}
			current.Words = append(current.Words, d)
		} else {
			lines = append(lines, *current)
			current = &Line{Top: y, Words: []Detection{d}}
		}

		lastY = y
	}

	if current != nil && len(current.Words) > 0 {
		lines = append(lines, *current)
	}

	return lines
}

// ReconstructLines groups detections into lines and renders each line as a
// space-joined string, top to bottom.
func ReconstructLines(detections []Detection, threshold float64) []string {
	lines := GroupLines(detections, threshold)
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.String()
	}
	return out
}
