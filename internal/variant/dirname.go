package variant

import (
	"fmt"
	"strings"
)

// DirName names the output directory of one selection:
// <year>_inputs_<measurement>_<tagger>[_topPt<bin>]. The inclusive bin has
// no suffix.
func DirName(sel Selector) string {
	name := fmt.Sprintf("%s_inputs_%s_%s", sel.Year, sel.Measurement, sel.Tagger)
	if sel.PtBin != "" && sel.PtBin != Inclusive {
		name += "_topPt" + sel.PtBin
	}
	return name
}

// ParseDirName inverts DirName. ok is false for names of another shape.
func ParseDirName(name string) (sel Selector, ok bool) {
	chunks := strings.Split(name, "_")
	if len(chunks) < 4 || chunks[1] != "inputs" {
		return Selector{}, false
	}
	sel = Selector{Year: chunks[0], Measurement: chunks[2], Tagger: chunks[3]}
	switch {
	case len(chunks) == 4:
	case len(chunks) == 5 && strings.HasPrefix(chunks[4], "topPt"):
		sel.PtBin = strings.TrimPrefix(chunks[4], "topPt")
	default:
		return Selector{}, false
	}
	return sel, true
}
