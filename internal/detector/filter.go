package detector

import "strings"

// Filter reduces raw inference output to weapon detections. A box
// survives when its class is on the allowlist and its confidence
// meets the threshold; coordinates are rounded to pixel ints.
type Filter struct {
	threshold float64
	allowed   map[string]bool
}

// NewFilter creates a detection filter
func NewFilter(threshold float64, weaponClasses []string) *Filter {
	allowed := make(map[string]bool, len(weaponClasses))
	for _, class := range weaponClasses {
		allowed[strings.ToLower(class)] = true
	}
	return &Filter{
		threshold: threshold,
		allowed:   allowed,
	}
}

// Apply filters the response's bounding boxes
func (f *Filter) Apply(resp *InferenceResponse) []Detection {
	if resp == nil || len(resp.BoundingBoxes) == 0 {
		return nil
	}

	var detections []Detection
	for _, box := range resp.BoundingBoxes {
		if box.Confidence < f.threshold {
			continue
		}
		if len(f.allowed) > 0 && !f.allowed[strings.ToLower(box.ClassName)] {
			continue
		}
		detections = append(detections, Detection{
			Class:      strings.ToLower(box.ClassName),
			Confidence: box.Confidence,
			X1:         int(box.X1 + 0.5),
			Y1:         int(box.Y1 + 0.5),
			X2:         int(box.X2 + 0.5),
			Y2:         int(box.Y2 + 0.5),
		})
	}

	return detections
}

// Classes returns the distinct classes present in the detections,
// preserving first-seen order.
func Classes(detections []Detection) []string {
	seen := make(map[string]bool, len(detections))
	var classes []string
	for _, d := range detections {
		if !seen[d.Class] {
			seen[d.Class] = true
			classes = append(classes, d.Class)
		}
	}
	return classes
}
