package card

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tagprobe/internal/config"
	"github.com/banshee-data/tagprobe/internal/hist"
	"github.com/banshee-data/tagprobe/internal/monitoring"
	"github.com/banshee-data/tagprobe/internal/store"
	"github.com/banshee-data/tagprobe/internal/variant"
)

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func render(t *testing.T, in Input) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in))
	return buf.Bytes()
}

func twoProcess() Input {
	return Input{
		PassFile:     "top_mass_pass.db",
		FailFile:     "top_mass_fail.db",
		ObservedPass: 120.5,
		ObservedFail: 80.0,
		Rates: []Rate{
			{Process: "TT", Pass: 100, Fail: 60},
			{Process: "QCD", Pass: 20.5, Fail: 20},
		},
		Lumi:     1.025,
		Fallback: &Fallback{Name: "qcdNorm", Process: "QCD", Value: 2.0},
	}
}

// everywhere is a shape row covering every process in both categories.
func everywhere(name string, rates []Rate) Shape {
	sh := Shape{Name: name, Pass: map[string]bool{}, Fail: map[string]bool{}}
	for _, r := range rates {
		sh.Pass[r.Process] = true
		sh.Fail[r.Process] = true
	}
	return sh
}

func TestWriteGolden(t *testing.T) {
	g := golden(t)

	g.Assert(t, "two_process_fallback", render(t, twoProcess()))

	eff := []Rate{
		{"TTmatch", 1210.4567, 310.25},
		{"TTunmatch", 95.5, 402},
		{"QCD", 12, 15000.125},
		{"Boson", 3.25, 80},
		{"TTX", 1, 2},
		{"ST", 60, 210.5},
	}
	g.Assert(t, "eff_shapes", render(t, Input{
		PassFile:     "top_mass_pass.db",
		FailFile:     "top_mass_fail.db",
		ObservedPass: 1523,
		ObservedFail: 20871.25,
		Rates:        eff,
		Lumi:         1.023,
		Shapes:       []Shape{everywhere("pu", eff), everywhere("JEC", eff)},
	}))

	wide := []Rate{
		{"VeryLongProcessName", 123456789.5, 0},
		{"QCD", 1, 2},
	}
	g.Assert(t, "wide_cells", render(t, Input{
		PassFile:     "top_mass_pass.db",
		FailFile:     "top_mass_fail.db",
		ObservedPass: 123456789012345,
		Rates:        wide,
		Lumi:         1.012,
		Shapes:       []Shape{everywhere("averyverylongsyst", wide)},
	}))
}

func TestWritePartialShape(t *testing.T) {
	in := twoProcess()
	in.Fallback = nil
	in.Shapes = []Shape{{
		Name: "pu",
		Pass: map[string]bool{"TT": true},
		Fail: map[string]bool{"TT": true, "QCD": true},
	}}

	var row []string
	for _, line := range strings.Split(string(render(t, in)), "\n") {
		if f := strings.Fields(line); len(f) > 0 && f[0] == "pu" {
			row = f
		}
	}
	assert.Equal(t, []string{"pu", "shape", "1", "--", "1", "1"}, row)
}

func TestWriteTwoProcessScenario(t *testing.T) {
	out := string(render(t, twoProcess()))
	assert.Contains(t, out, "imax 2")
	assert.Contains(t, out, "jmax 1")

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "rate" {
			continue
		}
		assert.Equal(t, []string{"100.000", "20.500", "60.000", "20.000"}, fields[1:])
		assert.Equal(t, spacer, line[leadWidth+2*cellWidth:leadWidth+2*cellWidth+len(spacer)])
	}
}

// Every grid and nuisance row carries one cell per process per category.
func TestWriteCellCount(t *testing.T) {
	in := twoProcess()
	in.Shapes = []Shape{everywhere("pu", in.Rates), {Name: "JEC", Pass: map[string]bool{"QCD": true}}}
	p := len(in.Rates)

	rows := 0
	for _, line := range strings.Split(string(render(t, in)), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		lead := 0
		switch fields[0] {
		case "bin", "process", "rate":
			lead = 1
		case "lumi", "pu", "JEC", "qcdNorm":
			lead = 2
		default:
			continue
		}
		if fields[0] == "bin" && len(fields) == 3 {
			continue // bin/observation header
		}
		rows++
		assert.Len(t, fields, lead+2*p, "row %q", line)
		if lead == 1 {
			assert.Equal(t, spacer, line[leadWidth+p*cellWidth:leadWidth+p*cellWidth+len(spacer)], "row %q", line)
		} else {
			assert.Equal(t, spacer, line[2*headWidth+p*cellWidth:2*headWidth+p*cellWidth+len(spacer)], "row %q", line)
		}
	}
	assert.Equal(t, 8, rows)
}

func TestWriteNoRates(t *testing.T) {
	err := Write(&bytes.Buffer{}, Input{})
	assert.Error(t, err)
}

func TestPad(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"TT", 12, "TT          "},
		{"", 4, "    "},
		{"exactlytwelv", 12, "exactlytwelv "},
		{"longer than twelve", 12, "longer than twelve "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pad(tt.in, tt.width))
	}
}

func TestPyFloat(t *testing.T) {
	tests := map[float64]string{
		80:        "80.0",
		120.5:     "120.5",
		1.025:     "1.025",
		0:         "0.0",
		-3:        "-3.0",
		1e16:      "1e+16",
		1.5e-5:    "1.5e-05",
		1234567.5: "1234567.5",
	}
	for v, want := range tests {
		assert.Equal(t, want, pyFloat(v), "pyFloat(%v)", v)
	}
}

func TestScriptGolden(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteScript(dir, []string{"TTmatch", "TTunmatch", "QCD", "Boson", "TTX", "ST"})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	golden(t).Assert(t, "runfits_eff", data)
}

// stores writes pass and fail stores holding the given integrals, one
// count in the first bin each.
func stores(t *testing.T, pass, fail map[string]float64) (*store.Store, *store.Store) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	mk := func(file string, yields map[string]float64) *store.Store {
		s, err := store.Create(ctx, filepath.Join(dir, file))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		for name, v := range yields {
			h, err := hist.New1D(name, hist.Uniform(20, 100, 250))
			require.NoError(t, err)
			h.Fill(101, v)
			require.NoError(t, s.Put(ctx, h))
		}
		return s
	}
	return mk("top_mass_pass.db", pass), mk("top_mass_fail.db", fail)
}

func misEnumeration(t *testing.T, systematics bool) *variant.Enumeration {
	t.Helper()
	e, err := variant.Enumerate(config.MustDefault(), variant.Selector{
		Year: "2017", Measurement: "Mis", Tagger: "Mrg", Systematics: systematics,
	})
	require.NoError(t, err)
	return e
}

func yields(names ...string) map[string]float64 {
	m := map[string]float64{"data_obs": 50}
	for i, n := range names {
		m[n] = float64(i + 1)
	}
	return m
}

func TestAssembleFallback(t *testing.T) {
	defer monitoring.Nop()()
	e := misEnumeration(t, false)
	procs := []string{"QCD", "TT", "WJets", "DYJets", "Boson", "TTX", "ST"}
	pass, fail := stores(t, yields(procs...), yields(procs...))

	in, err := Assemble(context.Background(), e, pass, fail, false)
	require.NoError(t, err)
	assert.Equal(t, "top_mass_pass.db", in.PassFile)
	assert.Equal(t, 50.0, in.ObservedPass)
	assert.Equal(t, 1.023, in.Lumi)
	require.Len(t, in.Rates, 7)
	assert.Equal(t, Rate{"QCD", 1, 1}, in.Rates[0])
	assert.Equal(t, Rate{"ST", 7, 7}, in.Rates[6])
	assert.Empty(t, in.Shapes)
	assert.Equal(t, &Fallback{Name: "ttNorm", Process: "TT", Value: 2.0}, in.Fallback)

	out := string(render(t, in))
	assert.Contains(t, out, "jmax 6")
	assert.Contains(t, out, "ttNorm  lnN     --          2.0         --")
}

func TestAssembleShapes(t *testing.T) {
	defer monitoring.Nop()()
	e := misEnumeration(t, true)
	procs := []string{"QCD", "TT", "WJets", "DYJets", "Boson", "TTX", "ST"}
	// QCD has only the Up shift in pass, so it gets no cell there.
	pass, fail := stores(t,
		yields(append(procs, "TT_puUp", "TT_puDown", "QCD_puUp")...),
		yields(append(procs, "TT_puUp", "TT_puDown")...))

	in, err := Assemble(context.Background(), e, pass, fail, true)
	require.NoError(t, err)
	require.Len(t, in.Shapes, 1)
	assert.Equal(t, Shape{
		Name: "pu",
		Pass: map[string]bool{"TT": true},
		Fail: map[string]bool{"TT": true},
	}, in.Shapes[0])
	assert.Nil(t, in.Fallback)

	var row []string
	for _, line := range strings.Split(string(render(t, in)), "\n") {
		if f := strings.Fields(line); len(f) > 0 && f[0] == "pu" {
			row = f
		}
	}
	require.Len(t, row, 2+2*len(procs))
	for i, cell := range row[2:] {
		want := "--"
		if i%len(procs) == 1 {
			want = "1"
		}
		assert.Equal(t, want, cell, "cell %d", i)
	}
}

func TestAssembleShapesFallBackWhenNoneFilled(t *testing.T) {
	defer monitoring.Nop()()
	e := misEnumeration(t, true)
	procs := []string{"QCD", "TT", "WJets", "DYJets", "Boson", "TTX", "ST"}
	pass, fail := stores(t, yields(procs...), yields(procs...))

	in, err := Assemble(context.Background(), e, pass, fail, true)
	require.NoError(t, err)
	assert.Empty(t, in.Shapes)
	assert.Equal(t, &Fallback{Name: "ttNorm", Process: "TT", Value: 2.0}, in.Fallback)
}

func TestAssembleMissingProcessFails(t *testing.T) {
	defer monitoring.Nop()()
	e := misEnumeration(t, false)
	pass, fail := stores(t, yields("QCD", "TT"), yields("QCD", "TT"))

	_, err := Assemble(context.Background(), e, pass, fail, false)
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteFile(dir, twoProcess())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sf.txt"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, render(t, twoProcess()), data)
}
