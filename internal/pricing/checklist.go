package pricing

import "fmt"

const TableChecklist = "checklist"

// ChecklistTable prices pages in tiers: the first page carries the base
// price, pages 2-4 and 5-7 each add a per-page rate.
type ChecklistTable struct {
	BasePrice     int `yaml:"base_price"`
	TierTwoRate   int `yaml:"tier_two_rate"`
	TierThreeRate int `yaml:"tier_three_rate"`
	MaxPages      int `yaml:"max_pages"`
	LightEditing  int `yaml:"light_editing"`
	HeavyShaping  int `yaml:"heavy_shaping"`
	Gallery       int `yaml:"gallery"`
	Blog          int `yaml:"blog"`
	Rush          int `yaml:"rush"`
}

func DefaultChecklist() ChecklistTable {
	return ChecklistTable{
		BasePrice:     500,
		TierTwoRate:   150,
		TierThreeRate: 100,
		MaxPages:      7,
		LightEditing:  150,
		HeavyShaping:  300,
		Gallery:       100,
		Blog:          150,
		Rush:          200,
	}
}

// Compute is pure: equal inputs always produce equal estimates.
func (t ChecklistTable) Compute(in Inputs) Estimate {
	maxPages := t.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	pages := clamp(in.PageCount, 1, maxPages)

	tierTwo := clamp(pages-1, 0, 3)
	tierThree := 0
	if pages > 4 {
		tierThree = pages - 4
	}

	items := []LineItem{{Label: "First page", Amount: t.BasePrice}}
	items = appendItem(items, fmt.Sprintf("Pages 2-4 (%d)", tierTwo), tierTwo*t.TierTwoRate)
	items = appendItem(items, fmt.Sprintf("Pages 5-%d (%d)", maxPages, tierThree), tierThree*t.TierThreeRate)

	switch in.ContentReadiness {
	case ContentLightEditing:
		items = appendItem(items, "Content editing", t.LightEditing)
	case ContentHeavyShaping, ContentFullCopy:
		items = appendItem(items, "Content shaping", t.HeavyShaping)
	}
	if in.Features.Gallery {
		items = appendItem(items, "Gallery", t.Gallery)
	}
	if in.Features.Blog {
		items = appendItem(items, "Blog", t.Blog)
	}
	if in.Timeline == TimelineRush {
		items = appendItem(items, "Rush timeline", t.Rush)
	}

	return Estimate{
		Table:     TableChecklist,
		Total:     sum(items),
		Breakdown: items,
	}
}
