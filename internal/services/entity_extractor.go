package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jdkato/prose/v2"

	"shop-assistant/internal/ragerr"
)

// Entities are the structured facts pulled out of a shopper message
type Entities struct {
	HeightCM  int      `json:"height_cm,omitempty"`
	WeightKG  int      `json:"weight_kg,omitempty"`
	MaxPrice  float64  `json:"max_price,omitempty"`
	Category  string   `json:"category,omitempty"`
	Colors    []string `json:"colors,omitempty"`
	Occasion  string   `json:"occasion,omitempty"`
	OrderCode string   `json:"order_code,omitempty"`
}

// HasMeasurements reports whether a height or weight figure was found
func (e Entities) HasMeasurements() bool {
	return e.HeightCM > 0 || e.WeightKG > 0
}

type keywordEntry struct {
	phrase string
	value  string
}

// Category slugs used in vector metadata. Longer phrases come first so
// "quần short" wins over "quần".
var categoryKeywords = []keywordEntry{
	{"áo polo", "ao-polo"}, {"polo", "ao-polo"},
	{"áo thun", "ao-thun"}, {"áo phông", "ao-thun"}, {"tshirt", "ao-thun"}, {"t-shirt", "ao-thun"}, {"thun", "ao-thun"},
	{"áo khoác", "ao-khoac"}, {"jacket", "ao-khoac"}, {"khoác", "ao-khoac"}, {"hoodie", "ao-khoac"},
	{"áo sơ mi", "ao-so-mi"}, {"sơ mi", "ao-so-mi"}, {"somi", "ao-so-mi"}, {"shirt", "ao-so-mi"},
	{"quần short", "quan-short"}, {"quần đùi", "quan-short"}, {"shorts", "quan-short"}, {"short", "quan-short"},
	{"quần", "quan"}, {"pants", "quan"}, {"jeans", "quan"}, {"jean", "quan"}, {"kaki", "quan"},
	{"phụ kiện", "phu-kien"}, {"thắt lưng", "phu-kien"}, {"mũ", "phu-kien"}, {"nón", "phu-kien"},
	{"túi", "phu-kien"}, {"belt", "phu-kien"}, {"cap", "phu-kien"},
}

var colorKeywords = []keywordEntry{
	{"xanh navy", "navy"}, {"navy", "navy"}, {"xanh dương", "xanh"}, {"xanh lá", "xanh lá"},
	{"xanh", "xanh"}, {"blue", "xanh"}, {"green", "xanh lá"},
	{"đen", "đen"}, {"black", "đen"},
	{"trắng", "trắng"}, {"white", "trắng"},
	{"đỏ", "đỏ"}, {"red", "đỏ"},
	{"xám", "xám"}, {"grey", "xám"}, {"gray", "xám"},
	{"be", "be"}, {"beige", "be"},
	{"nâu", "nâu"}, {"brown", "nâu"},
	{"hồng", "hồng"}, {"pink", "hồng"},
	{"vàng", "vàng"}, {"yellow", "vàng"},
}

var occasionKeywords = []keywordEntry{
	{"đi làm", "work"}, {"công sở", "work"}, {"văn phòng", "work"}, {"office", "work"},
	{"dự tiệc", "party"}, {"đi tiệc", "party"}, {"tiệc", "party"}, {"party", "party"},
	{"hẹn hò", "date"}, {"date", "date"},
	{"đám cưới", "wedding"}, {"wedding", "wedding"},
	{"đi chơi", "casual"}, {"dạo phố", "casual"}, {"casual", "casual"},
	{"thể thao", "sport"}, {"gym", "sport"}, {"sport", "sport"},
	{"du lịch", "travel"}, {"travel", "travel"},
}

var (
	heightMetersCompact = regexp.MustCompile(`(?i)\b([12])\s*m\s*(\d{1,2})\b`)
	heightMetersDecimal = regexp.MustCompile(`(?i)\b([12][.,]\d{1,2})\s*m\b`)
	heightCentimeters   = regexp.MustCompile(`(?i)(\d{3})\s*cm\b`)
	heightBare          = regexp.MustCompile(`(?i)cao\s*:?\s*(\d{3})\b`)

	weightKilograms = regexp.MustCompile(`(?i)(\d{2,3})\s*(?:kg|kí|ký|kilo)`)
	weightBare      = regexp.MustCompile(`(?i)nặng\s*:?\s*(\d{2,3})\b`)

	budgetPattern = regexp.MustCompile(`(?i)(?:dưới|không quá|tối đa|under|below|max|<)\s*(\$)?\s*(\d+(?:[.,]\d+)?)\s*(k|tr|triệu|usd|\$)?`)

	orderCodePattern = regexp.MustCompile(`(?i)(?:#|mã\s*đơn(?:\s*hàng)?\s*:?\s*|order\s*(?:id|code)?\s*:?\s*#?)([a-z0-9]{6,24})\b`)
	digitPattern     = regexp.MustCompile(`\d`)
)

// EntityExtractor parses sizes, budgets, categories, colors and occasions
// out of free text in Vietnamese or English
type EntityExtractor struct{}

func NewEntityExtractor() *EntityExtractor {
	return &EntityExtractor{}
}

// Extract never panics on malformed input. A tokenizer failure returns an
// EntityExtractionError together with the regex-only entities.
func (x *EntityExtractor) Extract(message string) (Entities, error) {
	text := strings.ToLower(strings.TrimSpace(message))
	var entities Entities
	if text == "" {
		return entities, nil
	}

	entities.HeightCM = parseHeight(text)
	entities.WeightKG = parseWeight(text)
	entities.MaxPrice = parseBudget(text)
	entities.OrderCode = parseOrderCode(message)

	tokens, err := tokenize(text)
	if err != nil {
		return entities, ragerr.EntityExtraction("tokenize", err)
	}
	joined := " " + strings.Join(tokens, " ") + " "

	if match := firstMatch(joined, categoryKeywords); match != "" {
		entities.Category = match
	}
	entities.Colors = allMatches(joined, colorKeywords)
	entities.Occasion = firstMatch(joined, occasionKeywords)

	return entities, nil
}

// tokenize splits text with prose's tokenizer; tagging, segmentation and
// named-entity extraction are English models and stay off
func tokenize(text string) (tokens []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tokenizer panic: %v", r)
		}
	}()

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false))
	if err != nil {
		return nil, err
	}

	for _, tok := range doc.Tokens() {
		if tok.Text != "" {
			tokens = append(tokens, tok.Text)
		}
	}
	return tokens, nil
}

func firstMatch(joined string, table []keywordEntry) string {
	for _, entry := range table {
		if strings.Contains(joined, " "+entry.phrase+" ") {
			return entry.value
		}
	}
	return ""
}

func allMatches(joined string, table []keywordEntry) []string {
	var out []string
	seen := make(map[string]bool)
	consumed := joined
	for _, entry := range table {
		needle := " " + entry.phrase + " "
		if !strings.Contains(consumed, needle) {
			continue
		}
		// blank the phrase so "xanh navy" is not also counted as "xanh"
		consumed = strings.ReplaceAll(consumed, needle, "  ")
		if !seen[entry.value] {
			seen[entry.value] = true
			out = append(out, entry.value)
		}
	}
	return out
}

func parseHeight(text string) int {
	var cm int
	if m := heightMetersCompact.FindStringSubmatch(text); m != nil {
		meters, _ := strconv.Atoi(m[1])
		rest, _ := strconv.Atoi(m[2])
		if len(m[2]) == 1 {
			rest *= 10
		}
		cm = meters*100 + rest
	} else if m := heightMetersDecimal.FindStringSubmatch(text); m != nil {
		v, _ := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		cm = int(v*100 + 0.5)
	} else if m := heightCentimeters.FindStringSubmatch(text); m != nil {
		cm, _ = strconv.Atoi(m[1])
	} else if m := heightBare.FindStringSubmatch(text); m != nil {
		cm, _ = strconv.Atoi(m[1])
	}

	if cm < 100 || cm > 230 {
		return 0
	}
	return cm
}

func parseWeight(text string) int {
	var kg int
	if m := weightKilograms.FindStringSubmatch(text); m != nil {
		kg, _ = strconv.Atoi(m[1])
	} else if m := weightBare.FindStringSubmatch(text); m != nil {
		kg, _ = strconv.Atoi(m[1])
	}

	if kg < 30 || kg > 200 {
		return 0
	}
	return kg
}

// parseBudget returns the price ceiling in the units the shopper wrote:
// "k" multiplies by a thousand, "tr"/"triệu" by a million
func parseBudget(text string) float64 {
	m := budgetPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	number := strings.Replace(m[2], ",", ".", 1)
	v, err := strconv.ParseFloat(number, 64)
	if err != nil || v <= 0 {
		return 0
	}
	switch m[3] {
	case "k":
		v *= 1_000
	case "tr", "triệu":
		v *= 1_000_000
	}
	return v
}

func parseOrderCode(message string) string {
	for _, m := range orderCodePattern.FindAllStringSubmatch(message, -1) {
		if digitPattern.MatchString(m[1]) {
			return strings.ToUpper(m[1])
		}
	}
	return ""
}
