package pipeline

import (
	"fmt"
	"io"
	"math"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
)

// Phase collects the failures of one validation phase.
type Phase struct {
	Name   string
	Errors []string
}

func (p *Phase) errorf(format string, args ...any) {
	p.Errors = append(p.Errors, fmt.Sprintf(format, args...))
}

// Passed reports whether the phase found no problems.
func (p *Phase) Passed() bool { return len(p.Errors) == 0 }

// Validate runs integrity checks over a generated collection. bbox bounds
// every point; when priorities is true, plantPriority must be present.
func Validate(c domain.Collection, bbox [4]float64, priorities bool) []*Phase {
	phases := []*Phase{
		validateGeometry(c, bbox),
		validateInputs(c),
		validateScores(c),
	}
	if priorities {
		phases = append(phases, validatePriorities(c))
	}
	return phases
}

func validateGeometry(c domain.Collection, bbox [4]float64) *Phase {
	p := &Phase{Name: "Geometry within bbox"}
	if len(c) == 0 {
		p.errorf("collection is empty")
	}
	for i, f := range c {
		if f.Lon() < bbox[0] || f.Lon() > bbox[2] || f.Lat() < bbox[1] || f.Lat() > bbox[3] {
			p.errorf("point %d: (%.6f, %.6f) outside bbox", i, f.Lon(), f.Lat())
		}
	}
	return p
}

func validateInputs(c domain.Collection) *Phase {
	p := &Phase{Name: "Sampled inputs plausible"}
	for i, f := range c {
		for _, name := range []string{domain.PropTemp, domain.PropNDVI, domain.PropDensity} {
			v, ok := f.Get(name)
			if !ok {
				p.errorf("point %d: missing %s", i, name)
				continue
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				p.errorf("point %d: %s is not finite", i, name)
			}
		}
		if err := domain.CheckTemperature(f.Value(domain.PropTemp)); err != nil {
			p.errorf("point %d: %v", i, err)
		}
		if err := domain.CheckNDVI(f.Value(domain.PropNDVI)); err != nil {
			p.errorf("point %d: %v", i, err)
		}
		if d := f.Value(domain.PropDensity); d < 0 || d > 1 {
			p.errorf("point %d: bldDensity %v outside [0, 1]", i, d)
		}
	}
	return p
}

func validateScores(c domain.Collection) *Phase {
	p := &Phase{Name: "Vulnerability present and finite"}
	for i, f := range c {
		v, ok := f.Get(domain.PropVulnerability)
		switch {
		case !ok:
			p.errorf("point %d: missing vulnerability", i)
		case math.IsNaN(v) || math.IsInf(v, 0):
			p.errorf("point %d: vulnerability is not finite", i)
		}
	}
	return p
}

func validatePriorities(c domain.Collection) *Phase {
	p := &Phase{Name: "Planting priority present"}
	for i, f := range c {
		if _, ok := f.Get(domain.PropPlantPriority); !ok {
			p.errorf("point %d: missing plantPriority", i)
		}
	}
	return p
}

// Report writes a pass/fail summary followed by the failures of each phase.
// It returns true when every phase passed.
func Report(w io.Writer, phases []*Phase, points int) bool {
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.Passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.Errors))
			allPassed = false
		}
		_, _ = fmt.Fprintf(w, "  %-42s %s\n", p.Name, status)
	}
	_, _ = fmt.Fprintf(w, "\nPoints: %d\n", points)

	for _, p := range phases {
		if p.Passed() {
			continue
		}
		_, _ = fmt.Fprintf(w, "\n--- %s ---\n", p.Name)
		for i, e := range p.Errors {
			_, _ = fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		_, _ = fmt.Fprintln(w, "\nAll validations passed.")
	} else {
		_, _ = fmt.Fprintln(w, "\nValidation FAILED.")
	}
	return allPassed
}
