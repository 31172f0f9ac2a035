package sf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioImpacts = `{
  "POIs": [{"name": "SF_TTmatch", "fit": [0.9, 1.0, 1.15]}],
  "method": "default",
  "params": [
    {"name": "lumi", "fit": [-1.0, 0.0, 1.0], "SF_TTmatch": [0.99, 1.0, 1.01], "type": "Gaussian"},
    {"name": "JEC", "fit": [0.8, 1.0, 1.3], "SF_TTmatch": [0.95, 1.0, 1.08], "SF_QCD": [0.5, 1.0, 2.0], "prefit": [-1, 0, 1]}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadImpacts(t *testing.T) {
	im, err := ReadImpacts(writeFile(t, ImpactsFile, scenarioImpacts))
	require.NoError(t, err)

	want := &Impacts{
		POIs: []POI{{Name: "SF_TTmatch", Fit: Triplet{0.9, 1.0, 1.15}}},
		Params: []Param{
			{Name: "lumi", Fit: Triplet{-1, 0, 1}, Impacts: map[string]Triplet{"SF_TTmatch": {0.99, 1.0, 1.01}}},
			{Name: "JEC", Fit: Triplet{0.8, 1.0, 1.3}, Impacts: map[string]Triplet{
				"SF_TTmatch": {0.95, 1.0, 1.08},
				"SF_QCD":     {0.5, 1.0, 2.0},
			}},
		},
	}
	if diff := cmp.Diff(want, im); diff != "" {
		t.Errorf("impacts mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadImpacts(writeFile(t, "bad.json", `{"params": [{"name": "JEC", "SF_QCD": "x"}]}`))
	assert.Error(t, err)
	_, err = ReadImpacts(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestCombineScenario(t *testing.T) {
	im, err := ReadImpacts(writeFile(t, ImpactsFile, scenarioImpacts))
	require.NoError(t, err)

	in := Result{SF: 0.5, HiErr: 9, LoErr: 9, Tagger: "Res", Measurement: "Mis", PtBin: "150to200"}
	got, err := Combiner{Nuisance: "JEC", Process: "TTmatch"}.Combine(in, im)
	require.NoError(t, err)

	assert.Equal(t, 1.0, got.SF)
	assert.InDelta(t, 0.295316, got.HiErr, 1e-6)
	assert.InDelta(t, 0.264575, got.LoErr, 1e-6)
	assert.Equal(t, "150to200", got.PtBin)
	// Input untouched.
	assert.Equal(t, 0.5, in.SF)

	again, err := Combiner{Nuisance: "JEC", Process: "TTmatch"}.Combine(in, im)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestCombineIdentityWithoutMatch(t *testing.T) {
	im, err := ReadImpacts(writeFile(t, ImpactsFile, scenarioImpacts))
	require.NoError(t, err)

	in := Result{SF: 0.93, HiErr: 0.04, LoErr: 0.03, Tagger: "Mrg", Measurement: "Mis"}
	for _, nuisance := range []string{"JER", "", "jec"} {
		got, err := Combiner{Nuisance: nuisance, Process: "TTmatch"}.Combine(in, im)
		require.NoError(t, err)
		assert.Equal(t, in, got, "nuisance %q", nuisance)
	}
}

func TestCombineZeroPull(t *testing.T) {
	im := &Impacts{Params: []Param{{
		Name:    "JEC",
		Fit:     Triplet{0, 0, 0},
		Impacts: map[string]Triplet{"SF_QCD": {0.97, 1.0, 1.04}},
	}}}
	in := Result{SF: 1.0, HiErr: 0.05, LoErr: 0.05}
	got, err := Combiner{Nuisance: "JEC", Process: "QCD"}.Combine(in, im)
	require.NoError(t, err)
	// rescale 1 leaves the error as it was.
	if diff := cmp.Diff(in, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCombineDegenerate(t *testing.T) {
	im := &Impacts{
		POIs: []POI{{Fit: Triplet{0.95, 1.0, 1.02}}},
		Params: []Param{{
			Name:    "JEC",
			Fit:     Triplet{-1, 0, 1},
			Impacts: map[string]Triplet{"SF_QCD": {0.9, 1.0, 1.1}},
		}},
	}
	in := Result{SF: 0.7, HiErr: 0.1, LoErr: 0.1}
	got, err := Combiner{Nuisance: "JEC", Process: "QCD"}.Combine(in, im)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegenerateNuisance))
	var de *DegenerateError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "hi", de.Side)
	assert.Less(t, de.Residual2, 0.0)
	assert.Equal(t, in, got)
}

func TestCombineWithinTolerance(t *testing.T) {
	// err equals impact: the residual rounds to zero instead of failing.
	im := &Impacts{
		POIs: []POI{{Fit: Triplet{0.9, 1.0, 1.1}}},
		Params: []Param{{
			Name:    "JEC",
			Fit:     Triplet{-0.5, 0, 0.5},
			Impacts: map[string]Triplet{"SF_QCD": {0.9, 1.0, 1.1}},
		}},
	}
	got, err := Combiner{Nuisance: "JEC", Process: "QCD"}.Combine(Result{}, im)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got.HiErr, 1e-9)
	assert.InDelta(t, 0.2, got.LoErr, 1e-9)
}

func TestCombineMissingImpact(t *testing.T) {
	im := &Impacts{Params: []Param{{Name: "JEC", Impacts: map[string]Triplet{}}}}
	_, err := Combiner{Nuisance: "JEC", Process: "QCD"}.Combine(Result{}, im)
	assert.True(t, errors.Is(err, ErrMissingImpact), "got %v", err)
}

func TestFitRecord(t *testing.T) {
	rec, err := ReadFitRecord(writeFile(t, FitResultFile, `{"SF_QCD": 0.91, "SF_QCDHiErr": 0.05, "SF_QCDLoErr": 0.04, "status": 0}`))
	require.NoError(t, err)

	sf, hi, lo, ok := rec.Value("QCD")
	assert.True(t, ok)
	assert.Equal(t, []float64{0.91, 0.05, 0.04}, []float64{sf, hi, lo})

	sf, _, _, ok = rec.Value("TTmatch")
	assert.False(t, ok)
	assert.Equal(t, -1.0, sf)
	assert.True(t, Result{SF: sf}.Missing())

	_, err = ReadFitRecord(writeFile(t, "bad.json", `[1, 2]`))
	assert.Error(t, err)
}
