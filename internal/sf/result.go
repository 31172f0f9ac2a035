// Package sf reads fitted scale factors and adjusts their uncertainties
// with nuisance impacts.
package sf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrMissingProcess is returned when a fit result has no scale factor for
// the requested process.
var ErrMissingProcess = errors.New("process missing from fit result")

// File names inside a fit directory.
const (
	FitResultFile = "fit_result.json"
	ImpactsFile   = "impacts.json"
)

// Result is one fitted scale factor with asymmetric errors.
type Result struct {
	SF          float64 `json:"sf"`
	HiErr       float64 `json:"hi_err"`
	LoErr       float64 `json:"lo_err"`
	Tagger      string  `json:"tagger"`
	Measurement string  `json:"measurement"`
	PtBin       string  `json:"pt_bin"`
}

// ID identifies the result within a summary.
func (r Result) ID() string { return r.Tagger + r.Measurement + r.PtBin }

// Missing reports whether the fit produced no scale factor.
func (r Result) Missing() bool { return r.SF <= 0 }

// FitRecord is the flat result record written by the fit: SF_<process>,
// SF_<process>HiErr and SF_<process>LoErr per fitted process.
type FitRecord map[string]float64

// ReadFitRecord reads a fit record from path.
func ReadFitRecord(path string) (FitRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fit result: %w", err)
	}
	var rec FitRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse fit result %s: %w", path, err)
	}
	return rec, nil
}

// Value returns the scale factor of process and its errors. ok is false
// when the record has no entry for process; the result then carries
// SF = -1, matching a failed fit.
func (f FitRecord) Value(process string) (sf, hiErr, loErr float64, ok bool) {
	sf, ok = f["SF_"+process]
	if !ok {
		return -1, 0, 0, false
	}
	return sf, f["SF_"+process+"HiErr"], f["SF_"+process+"LoErr"], true
}
