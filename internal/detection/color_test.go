package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func bboxDiag(size int) BoundingBox {
	return BoundingBox{Width: size, Height: size}
}

func TestDeriveColorFiltersOutOfRangeBoxSize(t *testing.T) {
	assert.Equal(t, ColorNone, DeriveColor(ClassNormalCow, bboxDiag(10), false, false))
	assert.Equal(t, ColorNone, DeriveColor(ClassNormalCow, bboxDiag(1000), false, false))
	assert.Equal(t, ColorGreen, DeriveColor(ClassNormalCow, bboxDiag(100), false, false))
}

func TestDeriveColorByClass(t *testing.T) {
	box := bboxDiag(100)

	assert.Equal(t, ColorGreen, DeriveColor(ClassNormalCow, box, false, false))
	assert.Equal(t, ColorGreen, DeriveColor(ClassNormalCowSitting, box, false, false))
	assert.Equal(t, ColorRed, DeriveColor(ClassLaborSignCow, box, false, false))
	assert.Equal(t, ColorBlue, DeriveColor(ClassOverTemp, box, false, false))
}

func TestDeriveColorHeatCowGatedByResNet50(t *testing.T) {
	box := bboxDiag(100)

	assert.Equal(t, ColorYellow, DeriveColor(ClassHeatCow, box, false, false))
	assert.Equal(t, ColorRed, DeriveColor(ClassHeatCow, box, true, false))
}

func TestDeriveColorFlipCowGatedByOptFlow(t *testing.T) {
	box := bboxDiag(100)

	assert.Equal(t, ColorYellow, DeriveColor(ClassFlipCow, box, false, false))
	assert.Equal(t, ColorRed, DeriveColor(ClassFlipCow, box, false, true))
}
