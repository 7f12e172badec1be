package runtime

import (
	"math"
	"sort"

	"github.com/brightpath-assess/toolgate/internal/catalog"
)

// Fixed z-index bands. Rendering layers consume these as a documented
// constant table: cross-band stacking order never changes, intra-band order
// is recency-of-bring-to-front.
//
//	base content      0–999     assessment content, chrome
//	non-modal tools   1000–1999 ruler, protractor, reading guide
//	modal tools       2000–2999 calculator, dictionary
//	control handles   3000–3999 drag/resize handles
//	highlight infra   4000–4999 speech/annotation highlight overlays
//	critical overlays 5000+     errors, system notices
const (
	ZBaseContent   = 0
	ZNonModalTools = 1000
	ZModalTools    = 2000
	ZHandles       = 3000
	ZHighlight     = 4000
	ZCritical      = 5000
)

type bandRange struct {
	min, max int
}

var bandRanges = map[catalog.Band]bandRange{
	catalog.BandContent:   {ZBaseContent, ZNonModalTools - 1},
	catalog.BandNonModal:  {ZNonModalTools, ZModalTools - 1},
	catalog.BandModal:     {ZModalTools, ZHandles - 1},
	catalog.BandHandles:   {ZHandles, ZHighlight - 1},
	catalog.BandHighlight: {ZHighlight, ZCritical - 1},
	catalog.BandCritical:  {ZCritical, math.MaxInt32},
}

// BandRange returns the inclusive z-index range for a band. Unknown bands
// fall back to the non-modal tool band.
func BandRange(b catalog.Band) (min, max int) {
	r, ok := bandRanges[b]
	if !ok {
		r = bandRanges[catalog.BandNonModal]
	}
	return r.min, r.max
}

// nextZ computes the z-index for an instance being brought to the front of
// its band: strictly greater than every visible instance in that band. When
// the band is about to overflow, visible z-indexes in the band are compacted
// back to the band floor first (preserving relative order) via renumber.
func nextZ(band catalog.Band, visibleInBand []*instance) (z int, renumbered bool) {
	min, max := BandRange(band)

	top := min - 1
	for _, inst := range visibleInBand {
		if inst.zIndex > top {
			top = inst.zIndex
		}
	}
	if top+1 <= max {
		return top + 1, false
	}

	renumber(min, visibleInBand)
	return min + len(visibleInBand), true
}

// renumber compacts visible instances in a band to consecutive z-indexes
// starting at the band floor, keeping their relative stacking order.
func renumber(floor int, visibleInBand []*instance) {
	sort.SliceStable(visibleInBand, func(i, j int) bool {
		return visibleInBand[i].zIndex < visibleInBand[j].zIndex
	})
	for i, inst := range visibleInBand {
		inst.zIndex = floor + i
	}
}
