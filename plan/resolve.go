package plan

import "slices"

// Step is a single migration selected to run.
type Step struct {
	// Index is the migration's position in the plan.
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`
}

// Resolution is the ordered list of migrations a Selection resolved to.
type Resolution struct {
	Direction Direction `json:"direction" yaml:"direction"`
	Steps     []Step    `json:"steps" yaml:"steps"`
}

// Empty reports whether there's nothing to run.
func (r Resolution) Empty() bool {
	return len(r.Steps) == 0
}

// Resolve computes the migrations sel selects, given the plan order and the
// applied list read from the state store. reversible reports whether the named
// migration can be rolled back.
//
// Forward steps are in plan order, and reverse steps in reverse plan order. A
// target that's already on the requested side of the applied boundary resolves
// to no steps.
func Resolve(order, applied []string, sel Selection, reversible func(name string) bool) (Resolution, error) {
	if err := sel.validate(); err != nil {
		return Resolution{}, err
	}
	if err := checkPrefix(order, applied); err != nil {
		return Resolution{}, err
	}

	res := Resolution{Direction: sel.Direction(), Steps: []Step{}}
	numApplied := len(applied)

	switch sel.kind {
	case applyAll:
		res.Steps = forwardSteps(order, numApplied, len(order))
	case applyNext:
		res.Steps = forwardSteps(order, numApplied, min(numApplied+sel.count, len(order)))
	case applyTo:
		idx := slices.Index(order, sel.target)
		if idx < 0 {
			return Resolution{}, &TargetNotFoundError{Name: sel.target, Available: order[numApplied:]}
		}
		if idx >= numApplied {
			res.Steps = forwardSteps(order, numApplied, idx+1)
		}
	case rollbackAll:
		res.Steps = reverseSteps(applied, 0)
	case rollbackLast:
		res.Steps = reverseSteps(applied, max(numApplied-sel.count, 0))
	case rollbackTo:
		idx := slices.Index(order, sel.target)
		if idx < 0 {
			return Resolution{}, &TargetNotFoundError{Name: sel.target, Available: applied}
		}
		if idx < numApplied {
			res.Steps = reverseSteps(applied, idx)
		}
	}

	if res.Direction == Reverse {
		for _, step := range res.Steps {
			if !reversible(step.Name) {
				return Resolution{}, &IrreversibleMigrationError{Name: step.Name, Index: step.Index}
			}
		}
	}

	return res, nil
}

func checkPrefix(order, applied []string) error {
	for i, name := range applied {
		if i < len(order) && order[i] == name {
			continue
		}
		driftErr := &StateDriftError{
			Index:    i,
			Recorded: name,
			Unknown:  !slices.Contains(order, name),
		}
		if i < len(order) {
			driftErr.Expected = order[i]
		}
		return driftErr
	}
	return nil
}

func forwardSteps(order []string, from, to int) []Step {
	steps := make([]Step, 0, max(to-from, 0))
	for i := from; i < to; i++ {
		steps = append(steps, Step{Index: i, Name: order[i]})
	}
	return steps
}

func reverseSteps(applied []string, downTo int) []Step {
	steps := make([]Step, 0, len(applied)-downTo)
	for i := len(applied) - 1; i >= downTo; i-- {
		steps = append(steps, Step{Index: i, Name: applied[i]})
	}
	return steps
}
