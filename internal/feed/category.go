package feed

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/drstein77/chainprices/internal/models"
)

// Category is a label with the keywords that select it.
type Category struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Categories is the built-in keyword table. Order matters: a name matching
// several categories gets the first one listed.
var Categories = []Category{
	{Label: "מוצרי חלב", Keywords: []string{"חלב", "גבינה", "יוגורט", "שמנת", "קוטג", "לבן", "מעדן", "שוקו"}},
	{Label: "לחם ומאפים", Keywords: []string{"לחם", "פיתה", "לחמניה", "חלה", "באגט", "טוסט", "מאפה"}},
	{Label: "ביצים", Keywords: []string{"ביצים", "ביצה"}},
	{Label: "בשר ועוף", Keywords: []string{"עוף", "בקר", "טלה", "הודו", "נקניק", "שניצל", "המבורגר", "בשר"}},
	{Label: "דגים", Keywords: []string{"דג", "סלמון", "טונה", "אמנון", "פילה"}},
	{Label: "פירות וירקות", Keywords: []string{"תפוח", "בננה", "תפוז", "לימון", "עגבני", "מלפפון", "גזר", "בצל"}},
	{Label: "משקאות", Keywords: []string{"מים", "קולה", "ספרייט", "מיץ", "סודה", "בירה", "יין", "משקה"}},
	{Label: "חטיפים", Keywords: []string{"במבה", "ביסלי", "שוקולד", "עוגיה", "וופל", "סוכריה", "חטיף"}},
	{Label: "ניקיון", Keywords: []string{"סבון", "שמפו", "מרכך", "אבקה", "נוזל כלים", "אקונומיקה"}},
	{Label: "פסטה ואורז", Keywords: []string{"פסטה", "ספגטי", "אטריות", "אורז", "קוסקוס"}},
	{Label: "שימורים", Keywords: []string{"שימורים", "טונה", "תירס", "אפונה", "חומוס"}},
	{Label: "קפה ותה", Keywords: []string{"קפה", "נס", "אספרסו", "תה"}},
}

// Categorizer assigns a category label to a product name.
type Categorizer struct {
	categories []Category
	fallback   string
}

// NewCategorizer returns a categorizer over the given table. Keywords are
// lower-cased once up front.
func NewCategorizer(categories []Category) *Categorizer {
	c := &Categorizer{
		categories: make([]Category, 0, len(categories)),
		fallback:   models.DefaultCategory,
	}
	for _, cat := range categories {
		keywords := make([]string, 0, len(cat.Keywords))
		for _, kw := range cat.Keywords {
			if kw = strings.ToLower(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		c.categories = append(c.categories, Category{Label: cat.Label, Keywords: keywords})
	}
	return c
}

// DefaultCategorizer uses the built-in table.
func DefaultCategorizer() *Categorizer {
	return NewCategorizer(Categories)
}

// Categorize returns the label of the first category with a keyword contained
// in name, or the default label.
func (c *Categorizer) Categorize(name string) string {
	lower := strings.ToLower(name)
	for _, cat := range c.categories {
		for _, kw := range cat.Keywords {
			if strings.Contains(lower, kw) {
				return cat.Label
			}
		}
	}
	return c.fallback
}

// LoadCategories reads an ordered category table from a YAML file:
//
//	- label: מוצרי חלב
//	  keywords: [חלב, גבינה]
func LoadCategories(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	var categories []Category
	if err := yaml.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("decode categories file: %w", err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("categories file %s is empty", path)
	}
	for i, cat := range categories {
		if strings.TrimSpace(cat.Label) == "" {
			return nil, fmt.Errorf("category #%d has no label", i+1)
		}
	}
	return categories, nil
}
