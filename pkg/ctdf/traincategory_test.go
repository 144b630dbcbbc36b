package ctdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrainCategoryFor(t *testing.T) {
	tests := []struct {
		label       string
		productType string
		expected    TrainCategory
	}{
		{"ICE 123", "nationalExpress", TrainCategoryHighSpeed},
		{"ICE", "", TrainCategoryHighSpeed},
		{"IC 2011", "national", TrainCategoryIntercity},
		{"EC 7", "", TrainCategoryIntercity},
		{"ECE 101", "", TrainCategoryIntercity},
		{"RE 1", "regional", TrainCategoryRegional},
		{"RB48", "regional", TrainCategoryRegional},
		{"IRE 3", "", TrainCategoryRegional},
		{"S 6", "suburban", TrainCategorySuburban},
		{"S11", "", TrainCategorySuburban},
		{"U79", "subway", TrainCategorySubway},
		{"Bus 721", "", TrainCategoryBus},
		{"SEV", "bus", TrainCategoryBus},
		{"STR 1", "tram", TrainCategoryUnknown},
		{"SEV", "", TrainCategoryUnknown},
		{"Sprinter", "", TrainCategoryUnknown},
		{"", "", TrainCategoryUnknown},
		// rule precedence: the high speed prefix wins even when the product says bus
		{"ICE 10", "bus", TrainCategoryHighSpeed},
	}

	for _, tt := range tests {
		t.Run(tt.label+"/"+tt.productType, func(t *testing.T) {
			assert.Equal(t, tt.expected, TrainCategoryFor(tt.label, tt.productType))
		})
	}
}

func TestTrainCategoryIcon(t *testing.T) {
	assert.Equal(t, "🚄", TrainCategoryHighSpeed.Icon())
	assert.Equal(t, "🚉", TrainCategory("bogus").Icon())
}
