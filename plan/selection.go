package plan

import "fmt"

type selectionKind int

const (
	applyAll selectionKind = iota
	applyNext
	applyTo
	rollbackLast
	rollbackTo
	rollbackAll
)

// Selection describes which migrations a run should apply or roll back.
type Selection struct {
	kind   selectionKind
	count  int
	target string
}

// ApplyAll selects all pending migrations.
func ApplyAll() Selection {
	return Selection{kind: applyAll}
}

// ApplyNext selects the next n pending migrations. If fewer are pending, all
// of them are selected.
func ApplyNext(n int) Selection {
	return Selection{kind: applyNext, count: n}
}

// ApplyTo selects pending migrations up to and including name.
func ApplyTo(name string) Selection {
	return Selection{kind: applyTo, target: name}
}

// RollbackLast selects the last n applied migrations, most recent first. If
// fewer are applied, all of them are selected.
func RollbackLast(n int) Selection {
	return Selection{kind: rollbackLast, count: n}
}

// RollbackTo selects applied migrations from the most recent one down to and
// including name.
func RollbackTo(name string) Selection {
	return Selection{kind: rollbackTo, target: name}
}

// RollbackAll selects all applied migrations, most recent first.
func RollbackAll() Selection {
	return Selection{kind: rollbackAll}
}

// Direction returns the direction in which the selected migrations run.
func (s Selection) Direction() Direction {
	switch s.kind {
	case rollbackLast, rollbackTo, rollbackAll:
		return Reverse
	}
	return Forward
}

func (s Selection) String() string {
	switch s.kind {
	case applyNext:
		return fmt.Sprintf("apply next %d", s.count)
	case applyTo:
		return fmt.Sprintf("apply to %s", s.target)
	case rollbackLast:
		return fmt.Sprintf("rollback last %d", s.count)
	case rollbackTo:
		return fmt.Sprintf("rollback to %s", s.target)
	case rollbackAll:
		return "rollback all"
	}
	return "apply all"
}

func (s Selection) validate() error {
	switch s.kind {
	case applyNext, rollbackLast:
		if s.count < 1 {
			return &InvalidSelectionError{Selection: s, Reason: "count must be at least 1"}
		}
	case applyTo, rollbackTo:
		if s.target == "" {
			return &InvalidSelectionError{Selection: s, Reason: "target migration name is empty"}
		}
	}
	return nil
}
