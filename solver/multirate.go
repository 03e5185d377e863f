package solver

import (
	"math"

	"github.com/notargets/DGSolver/comm"
	"github.com/notargets/DGSolver/dof"
)

// SizeClasses puts a group in class c when its smallest element is between
// Ratio^-(c+1) and Ratio^-c times the largest group size over all ranks.
type SizeClasses struct {
	Ratio      float64 // Defaults to 2
	MaxClasses int     // Defaults to 4
}

func (sc SizeClasses) Classify(a *Algorithm, U *dof.Container) (int, error) {
	ratio, maxClasses := sc.Ratio, sc.MaxClasses
	if ratio <= 1 {
		ratio = 2
	}
	if maxClasses < 1 {
		maxClasses = 4
	}
	href := []float64{0}
	for _, g := range a.Collection.Groups {
		href[0] = math.Max(href[0], g.MinSize())
	}
	if err := comm.AllReduceMax(U.Comm(), href); err != nil {
		return 0, err
	}
	used := []float64{0}
	for _, g := range a.Collection.Groups {
		c := int(math.Floor(math.Log(href[0]/g.MinSize())/math.Log(ratio) + 1e-12))
		g.Class = max(0, min(c, maxClasses-1))
		used[0] = math.Max(used[0], float64(g.Class))
	}
	if err := comm.AllReduceMax(U.Comm(), used); err != nil {
		return 0, err
	}
	return int(used[0]) + 1, nil
}

// SingleClass keeps every group in class 0, reducing MultirateRK3 to
// SSP-RK3.
type SingleClass struct{}

func (SingleClass) Classify(a *Algorithm, _ *dof.Container) (int, error) {
	for _, g := range a.Collection.Groups {
		g.Class = 0
	}
	return 1, nil
}
