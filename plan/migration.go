package plan

import (
	"context"
	"fmt"
)

// Migration is a single forward change applied to a value of type C.
type Migration[C any] interface {
	Up(ctx context.Context, c C) error
}

// Reversible is a Migration that can also be rolled back.
type Reversible[C any] interface {
	Migration[C]
	Down(ctx context.Context, c C) error
}

// Func returns an irreversible Migration that runs up. It returns nil if up is
// nil.
//
//nolint:ireturn // Intentional, this is an adapter.
func Func[C any](up func(context.Context, C) error) Migration[C] {
	if up == nil {
		return nil
	}
	return upFunc[C](up)
}

// Funcs returns a Reversible migration that runs up and down. If down is nil
// the returned migration is irreversible.
//
//nolint:ireturn // Intentional, this is an adapter.
func Funcs[C any](up, down func(context.Context, C) error) Migration[C] {
	if down == nil {
		return Func(up)
	}
	if up == nil {
		return nil
	}
	return upDownFuncs[C]{up: up, down: down}
}

type upFunc[C any] func(context.Context, C) error

func (f upFunc[C]) Up(ctx context.Context, c C) error {
	return f(ctx, c)
}

type upDownFuncs[C any] struct {
	up, down func(context.Context, C) error
}

func (f upDownFuncs[C]) Up(ctx context.Context, c C) error {
	return f.up(ctx, c)
}

func (f upDownFuncs[C]) Down(ctx context.Context, c C) error {
	return f.down(ctx, c)
}

// Direction is the direction in which migrations are run.
type Direction int

// Migration directions.
const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "down"
	}
	return "up"
}

// MarshalText implements the encoding.TextMarshaler interface.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "up":
		*d = Forward
	case "down":
		*d = Reverse
	default:
		return fmt.Errorf("invalid direction '%s'", text)
	}
	return nil
}
