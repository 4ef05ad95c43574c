package pricing

import "fmt"

const TableSlider = "slider"

// SliderTable prices pages linearly and presents the total as a band.
type SliderTable struct {
	BasePrice    int     `yaml:"base_price"`
	ExtraPage    int     `yaml:"extra_page"`
	MaxPages     int     `yaml:"max_pages"`
	LightEditing int     `yaml:"light_editing"`
	HeavyShaping int     `yaml:"heavy_shaping"`
	FullCopy     int     `yaml:"full_copy"`
	Portfolio    int     `yaml:"portfolio"`
	Blog         int     `yaml:"blog"`
	Scheduling   int     `yaml:"scheduling"`
	Newsletter   int     `yaml:"newsletter"`
	Rush         int     `yaml:"rush"`
	BandLow      float64 `yaml:"band_low"`
	BandHigh     float64 `yaml:"band_high"`
}

func DefaultSlider() SliderTable {
	return SliderTable{
		BasePrice:    500,
		ExtraPage:    200,
		MaxPages:     8,
		LightEditing: 150,
		HeavyShaping: 300,
		FullCopy:     600,
		Portfolio:    300,
		Blog:         300,
		Scheduling:   150,
		Newsletter:   200,
		Rush:         150,
		BandLow:      0.9,
		BandHigh:     1.1,
	}
}

func (t SliderTable) Compute(in Inputs) Estimate {
	maxPages := t.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	pages := clamp(in.PageCount, 1, maxPages)

	items := []LineItem{{Label: "First page", Amount: t.BasePrice}}
	items = appendItem(items, fmt.Sprintf("Extra pages (%d)", pages-1), (pages-1)*t.ExtraPage)

	switch in.ContentReadiness {
	case ContentLightEditing:
		items = appendItem(items, "Content help", t.LightEditing)
	case ContentHeavyShaping:
		items = appendItem(items, "Content help", t.HeavyShaping)
	case ContentFullCopy:
		items = appendItem(items, "Content help", t.FullCopy)
	}
	if in.Features.Portfolio {
		items = appendItem(items, "Portfolio", t.Portfolio)
	}
	if in.Features.Blog {
		items = appendItem(items, "Blog", t.Blog)
	}
	if in.Features.Scheduling {
		items = appendItem(items, "Scheduling", t.Scheduling)
	}
	if in.Features.Newsletter {
		items = appendItem(items, "Newsletter", t.Newsletter)
	}
	if in.Timeline == TimelineRush {
		items = appendItem(items, "Rush timeline", t.Rush)
	}

	total := sum(items)
	return Estimate{
		Table:     TableSlider,
		Total:     total,
		Breakdown: items,
		Low:       band(total, t.BandLow),
		High:      band(total, t.BandHigh),
	}
}
