package bilibili

import "sort"

// Quality tiers accepted by the playurl qn parameter
const (
	Quality8K        = 127
	QualityDolby     = 126
	QualityHDR       = 125
	Quality4K        = 120
	Quality1080P60   = 116
	Quality1080PPlus = 112
	Quality1080P     = 80
	Quality720P60    = 74
	Quality720P      = 64
	Quality480P      = 32
	Quality360P      = 16
)

type qualityInfo struct {
	label string
	vip   bool
}

var qualities = map[int]qualityInfo{
	Quality8K:        {"8K", true},
	QualityDolby:     {"Dolby Vision", true},
	QualityHDR:       {"HDR", true},
	Quality4K:        {"4K", true},
	Quality1080P60:   {"1080P60", true},
	Quality1080PPlus: {"1080P+", true},
	Quality1080P:     {"1080P", false},
	Quality720P60:    {"720P60", true},
	Quality720P:      {"720P", false},
	Quality480P:      {"480P", false},
	Quality360P:      {"360P", false},
}

// QualityLabel returns a human label for a tier, or "" if unknown
func QualityLabel(qn int) string {
	return qualities[qn].label
}

// QualityNeedsVIP reports whether the tier is gated behind a premium account
func QualityNeedsVIP(qn int) bool {
	return qualities[qn].vip
}

// IsKnownQuality reports whether qn is a tier the API understands
func IsKnownQuality(qn int) bool {
	_, ok := qualities[qn]
	return ok
}

// Qualities returns all tiers, best first
func Qualities() []int {
	out := make([]int, 0, len(qualities))
	for qn := range qualities {
		out = append(out, qn)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
