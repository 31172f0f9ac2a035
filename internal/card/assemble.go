package card

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/banshee-data/tagprobe/internal/monitoring"
	"github.com/banshee-data/tagprobe/internal/store"
	"github.com/banshee-data/tagprobe/internal/variant"
)

// Assemble reads yields from the merged pass and fail stores. Every
// simulated process and the observed data must be present in both. A
// shape cell is written only where both shifted histograms of the process
// exist in that category, and a source with no such cell gets no row. The
// measurement's fallback normalisation is used when systematics were not
// requested or when no shape row survives.
func Assemble(ctx context.Context, e *variant.Enumeration, pass, fail *store.Store, systematics bool) (Input, error) {
	in := Input{
		PassFile: filepath.Base(pass.Path()),
		FailFile: filepath.Base(fail.Path()),
		Lumi:     e.Lumi,
	}

	integral := func(s *store.Store, name string) (float64, error) {
		h, err := s.Get(ctx, name)
		if err != nil {
			return 0, fmt.Errorf("card yields: %w", err)
		}
		return h.Integral(), nil
	}

	var err error
	if in.ObservedPass, err = integral(pass, variant.DataObs); err != nil {
		return Input{}, err
	}
	if in.ObservedFail, err = integral(fail, variant.DataObs); err != nil {
		return Input{}, err
	}

	sim := e.Processes.WithoutData()
	for _, p := range sim {
		r := Rate{Process: p.Label}
		if r.Pass, err = integral(pass, p.Label); err != nil {
			return Input{}, err
		}
		if r.Fail, err = integral(fail, p.Label); err != nil {
			return Input{}, err
		}
		in.Rates = append(in.Rates, r)
	}

	if systematics {
		for _, s := range e.Systematics {
			sh, err := shiftedProcesses(ctx, s.Name, sim.Labels(), pass, fail)
			if err != nil {
				return Input{}, err
			}
			if len(sh.Pass)+len(sh.Fail) > 0 {
				in.Shapes = append(in.Shapes, sh)
			}
		}
		if len(in.Shapes) > 0 {
			return in, nil
		}
		monitoring.L().Warn("no shifted histograms in the merged stores, using fallback normalisation",
			zap.String("pass", pass.Path()))
	}
	if f := e.Measurement.FallbackNorm; f != nil {
		in.Fallback = &Fallback{Name: f.Name, Process: f.Process, Value: f.Value}
	}
	return in, nil
}

// shiftedProcesses finds the processes holding both the Up and Down
// histogram of source in each category store.
func shiftedProcesses(ctx context.Context, source string, processes []string, pass, fail *store.Store) (Shape, error) {
	sh := Shape{Name: source, Pass: map[string]bool{}, Fail: map[string]bool{}}
	for _, cat := range []struct {
		s   *store.Store
		set map[string]bool
	}{{pass, sh.Pass}, {fail, sh.Fail}} {
		for _, p := range processes {
			both := true
			for _, d := range []variant.Direction{variant.Up, variant.Down} {
				key := variant.Key{Process: p, Source: source, Direction: d}
				ok, err := cat.s.Has(ctx, key.OutputName(false))
				if err != nil {
					return Shape{}, err
				}
				both = both && ok
			}
			if both {
				cat.set[p] = true
			}
		}
	}
	return sh, nil
}

// WriteFile renders the card into dir/sf.txt.
func WriteFile(dir string, in Input) (string, error) {
	path := filepath.Join(dir, CardFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create card: %w", err)
	}
	if err := Write(f, in); err != nil {
		f.Close()
		return "", fmt.Errorf("write card: %w", err)
	}
	return path, f.Close()
}

// Script returns the fit script for the given simulated processes.
func Script(processes []string) string {
	var b strings.Builder
	b.WriteString("echo \"Do tag and probe\"\n")
	fmt.Fprintf(&b, "text2workspace.py -m 173.2 -P HiggsAnalysis.CombinedLimit.TagAndProbeModel:tagAndProbe %s --PO categories=%s\n\n",
		CardFile, strings.Join(processes, ","))
	b.WriteString("echo \"Do the MultiDimFit\"\n")
	b.WriteString("combine -M MultiDimFit -m 173.2 sf.root --algo=singles --robustFit=1 --cminDefaultMinimizerTolerance 5.\n\n")
	b.WriteString("echo \"Run the FitDiagnostics\"\n")
	b.WriteString("combine -M FitDiagnostics -m 173.2 sf.root --saveShapes --saveWithUncertainties --robustFit=1 --cminDefaultMinimizerTolerance 5.\n\n")
	return b.String()
}

// WriteScript writes dir/runfits.sh, executable.
func WriteScript(dir string, processes []string) (string, error) {
	path := filepath.Join(dir, ScriptFile)
	if err := os.WriteFile(path, []byte(Script(processes)), 0o755); err != nil {
		return "", fmt.Errorf("write fit script: %w", err)
	}
	// WriteFile does not change the mode of an existing file.
	if err := os.Chmod(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
