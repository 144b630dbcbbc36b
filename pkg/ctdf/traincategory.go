package ctdf

import (
	"strings"
	"unicode"
)

type TrainCategory string

const (
	TrainCategoryHighSpeed TrainCategory = "HighSpeed"
	TrainCategoryIntercity TrainCategory = "Intercity"
	TrainCategoryRegional  TrainCategory = "Regional"
	TrainCategorySuburban  TrainCategory = "Suburban"
	TrainCategorySubway    TrainCategory = "Subway"
	TrainCategoryBus       TrainCategory = "Bus"
	TrainCategoryUnknown   TrainCategory = "UNKNOWN"
)

var trainCategoryIcons = map[TrainCategory]string{
	TrainCategoryHighSpeed: "🚄",
	TrainCategoryIntercity: "🚅",
	TrainCategoryRegional:  "🚆",
	TrainCategorySuburban:  "🚈",
	TrainCategorySubway:    "🚇",
	TrainCategoryBus:       "🚌",
	TrainCategoryUnknown:   "🚉",
}

func (c TrainCategory) Icon() string {
	if icon, ok := trainCategoryIcons[c]; ok {
		return icon
	}

	return trainCategoryIcons[TrainCategoryUnknown]
}

// Short line designations like "S 6" or "U79". Longer labels that share the first
// letter (SEV, STR 1, Sprinter) must not be taken for S-Bahn/U-Bahn.
const maxShortLineLength = 4

var (
	highSpeedPrefixes = []string{"ICE"}
	intercityPrefixes = []string{"IC", "EC", "ECE", "RJ", "RJX"}
	regionalPrefixes  = []string{"RE", "RB", "IRE", "MEX", "RS"}
)

// TrainCategoryFor picks the category from the train label, first matching rule wins.
// productType is only consulted for buses.
func TrainCategoryFor(label string, productType string) TrainCategory {
	name := strings.ToUpper(strings.TrimSpace(label))
	compact := strings.ReplaceAll(name, " ", "")

	switch {
	case hasAnyPrefix(compact, highSpeedPrefixes):
		return TrainCategoryHighSpeed
	case hasAnyPrefix(compact, intercityPrefixes):
		return TrainCategoryIntercity
	case hasAnyPrefix(compact, regionalPrefixes):
		return TrainCategoryRegional
	case isShortLine(compact, "S"):
		return TrainCategorySuburban
	case isShortLine(compact, "U"):
		return TrainCategorySubway
	case strings.Contains(strings.ToUpper(productType), "BUS") || strings.Contains(name, "BUS"):
		return TrainCategoryBus
	}

	return TrainCategoryUnknown
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if !strings.HasPrefix(s, prefix) {
			continue
		}

		// "RE5" and "RE" are regional, "REX" style words are not
		rest := s[len(prefix):]
		if rest == "" || unicode.IsDigit(rune(rest[0])) {
			return true
		}
	}

	return false
}

func isShortLine(s string, prefix string) bool {
	if len(s) > maxShortLineLength || !strings.HasPrefix(s, prefix) {
		return false
	}

	rest := s[len(prefix):]
	if rest == "" {
		return false
	}
	for _, r := range rest {
		if !unicode.IsDigit(r) {
			return false
		}
	}

	return true
}
