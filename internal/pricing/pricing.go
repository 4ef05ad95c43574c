// Package pricing computes project estimates from normalized inputs.
//
// Two tables exist side by side: the checklist table used by the quote form
// and the AI intake, and the slider table used by the interactive estimator.
// They are priced independently and never merged.
package pricing

import "math"

type ContentReadiness string

const (
	ContentReady        ContentReadiness = "ready"
	ContentLightEditing ContentReadiness = "light_editing"
	ContentHeavyShaping ContentReadiness = "heavy_shaping"
	// ContentFullCopy only exists on the slider scale; the checklist prices it as heavy shaping.
	ContentFullCopy ContentReadiness = "full_copy"
)

type Timeline string

const (
	TimelineNormal Timeline = "normal"
	TimelineRush   Timeline = "rush"
)

// Features is the union of add-ons offered by every channel. A table prices
// only the add-ons it knows about.
type Features struct {
	Gallery    bool `json:"gallery" yaml:"gallery"`
	Blog       bool `json:"blog" yaml:"blog"`
	Scheduling bool `json:"scheduling" yaml:"scheduling"`
	Newsletter bool `json:"newsletter" yaml:"newsletter"`
	Portfolio  bool `json:"portfolio" yaml:"portfolio"`
}

// Union returns the add-ons selected in either set.
func (f Features) Union(other Features) Features {
	return Features{
		Gallery:    f.Gallery || other.Gallery,
		Blog:       f.Blog || other.Blog,
		Scheduling: f.Scheduling || other.Scheduling,
		Newsletter: f.Newsletter || other.Newsletter,
		Portfolio:  f.Portfolio || other.Portfolio,
	}
}

type Inputs struct {
	PageCount        int              `json:"pageCount"`
	ContentReadiness ContentReadiness `json:"contentReadiness"`
	Features         Features         `json:"features"`
	Timeline         Timeline         `json:"timeline"`
}

type LineItem struct {
	Label  string `json:"label"`
	Amount int    `json:"amount"`
}

// Estimate amounts are whole currency units. Low and High are only set by
// tables that present a band.
type Estimate struct {
	Table     string     `json:"table"`
	Total     int        `json:"total"`
	Breakdown []LineItem `json:"breakdown"`
	Low       int        `json:"low,omitempty"`
	High      int        `json:"high,omitempty"`
}

// MinorUnits converts a whole-unit total into the cents stored on records.
func (e Estimate) MinorUnits() int64 {
	return int64(e.Total) * 100
}

func clamp(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func band(total int, factor float64) int {
	return int(math.Round(float64(total) * factor))
}

func appendItem(items []LineItem, label string, amount int) []LineItem {
	if amount == 0 {
		return items
	}
	return append(items, LineItem{Label: label, Amount: amount})
}

func sum(items []LineItem) int {
	total := 0
	for _, item := range items {
		total += item.Amount
	}
	return total
}
