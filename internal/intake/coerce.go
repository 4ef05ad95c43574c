package intake

import (
	"sort"
	"strings"

	"leadflow/internal/pricing"
	"leadflow/internal/store"
)

func readiness(value any) *pricing.ContentReadiness {
	var level pricing.ContentReadiness
	switch typed := value.(type) {
	case nil:
		return nil
	case bool:
		if typed {
			level = pricing.ContentReady
		} else {
			level = pricing.ContentHeavyShaping
		}
		return &level
	}

	text := strings.ToLower(stringify(value))
	switch {
	case text == "":
		return nil
	case text == string(pricing.ContentReady) || text == "yes" || text == "true":
		level = pricing.ContentReady
	case plainlyReady(text):
		level = pricing.ContentReady
	case strings.Contains(text, "full") || strings.Contains(text, "writ") || strings.Contains(text, "copy"):
		level = pricing.ContentFullCopy
	case strings.Contains(text, "light") || strings.Contains(text, "some") || strings.Contains(text, "edit") || strings.Contains(text, "partial") || strings.Contains(text, "mostly"):
		level = pricing.ContentLightEditing
	case strings.Contains(text, "heavy") || strings.Contains(text, "shap") || strings.Contains(text, "need") ||
		strings.Contains(text, "not") || text == "no" || text == "false" || text == "none":
		level = pricing.ContentHeavyShaping
	case strings.Contains(text, "ready") || strings.Contains(text, "have"):
		level = pricing.ContentReady
	default:
		return nil
	}
	return &level
}

// plainlyReady matches "ready, no editing needed" or "we have everything"
// but not "not ready" or "mostly ready".
func plainlyReady(text string) bool {
	if !strings.Contains(text, "ready") && !strings.Contains(text, "have") {
		return false
	}
	for _, hedge := range []string{"not ", "n't", "mostly", "partial", "some", "light", "half", "almost"} {
		if strings.Contains(text, hedge) {
			return false
		}
	}
	return true
}

func readinessString(level *pricing.ContentReadiness) *string {
	if level == nil {
		return nil
	}
	value := string(*level)
	return &value
}

func timelineOf(value string, rushFlag bool) pricing.Timeline {
	if rushFlag {
		return pricing.TimelineRush
	}
	text := strings.ToLower(value)
	for _, keyword := range []string{"rush", "asap", "urgent", "fast", "immediately"} {
		if strings.Contains(text, keyword) {
			return pricing.TimelineRush
		}
	}
	return pricing.TimelineNormal
}

var featureKeywords = []struct {
	name     string
	keywords []string
}{
	{name: "gallery", keywords: []string{"gallery", "photo"}},
	{name: "blog", keywords: []string{"blog"}},
	{name: "scheduling", keywords: []string{"schedul", "booking", "appointment", "calendar"}},
	{name: "newsletter", keywords: []string{"newsletter", "mailing", "email list"}},
	{name: "portfolio", keywords: []string{"portfolio"}},
}

// featuresFrom unions boolean flags with keyword matches in free-form lists.
func featuresFrom(f fields, listKeys ...string) pricing.Features {
	features := pricing.Features{
		Gallery:    f.boolean("gallery"),
		Blog:       f.boolean("blog"),
		Scheduling: f.boolean("scheduling", "booking"),
		Newsletter: f.boolean("newsletter"),
		Portfolio:  f.boolean("portfolio"),
	}
	for _, item := range f.list(listKeys...) {
		features = features.Union(matchFeatures(item))
	}
	return features
}

func matchFeatures(text string) pricing.Features {
	text = strings.ToLower(text)
	matched := map[string]bool{}
	for _, entry := range featureKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(text, keyword) {
				matched[entry.name] = true
			}
		}
	}
	return pricing.Features{
		Gallery:    matched["gallery"],
		Blog:       matched["blog"],
		Scheduling: matched["scheduling"],
		Newsletter: matched["newsletter"],
		Portfolio:  matched["portfolio"],
	}
}

func featureNames(features pricing.Features) []string {
	names := make([]string, 0, 5)
	if features.Gallery {
		names = append(names, "gallery")
	}
	if features.Blog {
		names = append(names, "blog")
	}
	if features.Scheduling {
		names = append(names, "scheduling")
	}
	if features.Newsletter {
		names = append(names, "newsletter")
	}
	if features.Portfolio {
		names = append(names, "portfolio")
	}
	sort.Strings(names)
	return names
}

func fitStatus(value string) string {
	switch foldKey(value) {
	case "":
		return store.FitGood
	case "good", "goodfit", "yes", "strong", "greatfit":
		return store.FitGood
	case "notfit", "notagoodfit", "no", "poor", "poorfit", "bad":
		return store.FitNotFit
	default:
		return store.FitBorderline
	}
}

// suggestedTier prefers an explicit tier and falls back to the estimate.
func suggestedTier(explicit *int, total int) *int {
	if explicit != nil {
		switch *explicit {
		case 500, 1000, 1500:
			tier := *explicit
			return &tier
		}
	}
	var tier int
	switch {
	case total <= 500:
		tier = 500
	case total <= 1000:
		tier = 1000
	case total <= 1500:
		tier = 1500
	default:
		return nil
	}
	return &tier
}

func conversationFrom(value any) []store.ChatTurn {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	turns := make([]store.ChatTurn, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		turn := newFields(entry)
		content := turn.text("content", "text", "message")
		if content == "" {
			continue
		}
		turns = append(turns, store.ChatTurn{
			Role:    firstNonBlank(turn.text("role", "sender"), "user"),
			Content: content,
		})
	}
	return turns
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
