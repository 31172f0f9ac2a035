package sf

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Triplet is a (-1 sigma, best fit, +1 sigma) value.
type Triplet [3]float64

// Hi is the distance from the best fit to the upper value.
func (t Triplet) Hi() float64 { return t[2] - t[1] }

// Lo is the distance from the lower value to the best fit.
func (t Triplet) Lo() float64 { return t[1] - t[0] }

// POI is a fitted parameter of interest.
type POI struct {
	Name string  `json:"name"`
	Fit  Triplet `json:"fit"`
}

// Param is one nuisance parameter of the impacts payload: its own fit
// and its impact on each scale factor, keyed SF_<process>.
type Param struct {
	Name    string
	Fit     Triplet
	Impacts map[string]Triplet
}

// UnmarshalJSON keeps name, fit and every SF_* entry, ignoring the rest.
func (p *Param) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Param{Impacts: make(map[string]Triplet)}
	if v, ok := raw["name"]; ok {
		if err := json.Unmarshal(v, &p.Name); err != nil {
			return fmt.Errorf("param name: %w", err)
		}
	}
	if v, ok := raw["fit"]; ok {
		if err := json.Unmarshal(v, &p.Fit); err != nil {
			return fmt.Errorf("param %q fit: %w", p.Name, err)
		}
	}
	for k, v := range raw {
		if !strings.HasPrefix(k, "SF_") {
			continue
		}
		var t Triplet
		if err := json.Unmarshal(v, &t); err != nil {
			return fmt.Errorf("param %q %s: %w", p.Name, k, err)
		}
		p.Impacts[k] = t
	}
	return nil
}

// Impacts is the impacts payload.
type Impacts struct {
	POIs   []POI   `json:"POIs"`
	Params []Param `json:"params"`
}

// ReadImpacts reads an impacts payload from path.
func ReadImpacts(path string) (*Impacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read impacts: %w", err)
	}
	var im Impacts
	if err := json.Unmarshal(data, &im); err != nil {
		return nil, fmt.Errorf("parse impacts %s: %w", path, err)
	}
	return &im, nil
}
