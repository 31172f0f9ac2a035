package formula

import (
	"fmt"
	"sort"
	"strings"
)

// Fields returns the sorted, de-duplicated set of data fields referenced
// by the given expressions. Numeric literals (integers and decimals alike),
// namespaced calls and bare function names are not fields. Both sides of
// a member access such as jet.pt are reported.
//
// The result may over-report but never under-reports: every field needed to
// evaluate the expressions is included.
func Fields(exprs ...string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, e := range exprs {
		toks, err := Tokenize(e)
		if err != nil {
			return nil, err
		}
		for i, t := range toks {
			if t.Kind != TokIdent {
				continue
			}
			if i+1 < len(toks) && toks[i+1].Kind == TokLParen {
				if _, ok := builtins[t.Text]; ok {
					continue
				}
			}
			seen[t.Text] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

// SplitAxes splits a draw variable into its axis expressions. A variable
// with exactly one ':' that is not part of a '::' is two dimensional and is
// returned as [y, x], following the TTree::Draw "y:x" convention. Anything
// else is returned as a single expression.
func SplitAxes(variable string) []string {
	var cuts []int
	for i := 0; i < len(variable); i++ {
		if variable[i] != ':' {
			continue
		}
		if i+1 < len(variable) && variable[i+1] == ':' {
			i++
			continue
		}
		cuts = append(cuts, i)
	}
	if len(cuts) != 1 {
		return []string{variable}
	}
	c := cuts[0]
	return []string{strings.TrimSpace(variable[:c]), strings.TrimSpace(variable[c+1:])}
}

// Is2D reports whether variable describes a two dimensional draw.
func Is2D(variable string) bool { return len(SplitAxes(variable)) == 2 }

// Dimensions validates the variable and returns its axis count.
func Dimensions(variable string) (int, error) {
	axes := SplitAxes(variable)
	for _, a := range axes {
		if a == "" {
			return 0, fmt.Errorf("%w: empty axis in %q", ErrSyntax, variable)
		}
	}
	return len(axes), nil
}
