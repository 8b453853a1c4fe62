package detection

import "math"

// minBBoxDiagonal/maxBBoxDiagonal bound the box size a color gets drawn
// for; anything smaller is noise, anything larger is very likely a
// false positive spanning most of the frame.
const (
	minBBoxDiagonal = 40.0
	maxBBoxDiagonal = 1000.0
)

// DeriveColor maps a detected object's class and bounding box to a
// display color under the current device settings. resnet50On/optFlowOn
// gate the two classes whose color depends on a secondary analysis pass
// having confirmed the primary detection; until that pass is enabled
// those classes draw yellow (tentative) instead of red (confirmed).
func DeriveColor(class ClassID, bbox BoundingBox, resnet50On, optFlowOn bool) Color {
	diagonal := math.Hypot(float64(bbox.Width), float64(bbox.Height))
	if diagonal < minBBoxDiagonal || diagonal > maxBBoxDiagonal {
		return ColorNone
	}

	switch class {
	case ClassNormalCow, ClassNormalCowSitting:
		return ColorGreen
	case ClassHeatCow:
		if resnet50On {
			return ColorRed
		}
		return ColorYellow
	case ClassFlipCow:
		if optFlowOn {
			return ColorRed
		}
		return ColorYellow
	case ClassLaborSignCow:
		return ColorRed
	case ClassOverTemp:
		return ColorBlue
	default:
		return ColorGreen
	}
}
