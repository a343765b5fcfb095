package scripting

import (
	"context"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomsync/internal/game/session"
)

// StepFunction is the Lua global a stepper script must define:
//
//	function step(id, x, y) return dx, dy end
const StepFunction = "step"

// LuaStepper computes offload displacements by calling a script's step
// function once per participant.
//
// The underlying LState is single-threaded; Step calls are serialized.
type LuaStepper struct {
	name   string
	limit  int
	logger *zap.Logger

	mu sync.Mutex
	L  *lua.LState
}

// NewLuaStepperFromFile loads a stepper script from path.
//
// Precondition: logger must be non-nil; limit <= 0 uses DefaultInstructionLimit.
// Postcondition: Returns a ready stepper or an error if the script cannot be
// read, fails to load, or does not define step.
func NewLuaStepperFromFile(path string, limit int, logger *zap.Logger) (*LuaStepper, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading stepper script %q: %w", path, err)
	}
	return NewLuaStepper(path, string(src), limit, logger)
}

// NewLuaStepper loads a stepper from source. name identifies the script in
// errors and logs.
func NewLuaStepper(name, src string, limit int, logger *zap.Logger) (*LuaStepper, error) {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	L := NewSandboxedState()
	registerModules(L, logger, name)

	if err := runLimited(context.Background(), L, limit, func() error { return L.DoString(src) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: loading %q: %w", name, err)
	}
	if _, ok := L.GetGlobal(StepFunction).(*lua.LFunction); !ok {
		L.Close()
		return nil, fmt.Errorf("scripting: %q does not define function %s", name, StepFunction)
	}
	return &LuaStepper{
		name:   name,
		limit:  limit,
		logger: logger,
		L:      L,
	}, nil
}

// Step calls step(id, x, y) for every participant. A nil return counts as a
// zero displacement.
//
// Postcondition: Returns one displacement per participant, or the first Lua
// error (runtime error, exhausted instruction budget, cancelled ctx, or a
// non-numeric return).
func (s *LuaStepper) Step(ctx context.Context, in []session.ParticipantState) ([]session.Displacement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.L == nil {
		return nil, fmt.Errorf("scripting: stepper %q is closed", s.name)
	}
	fn := s.L.GetGlobal(StepFunction)

	out := make([]session.Displacement, 0, len(in))
	for _, p := range in {
		var dx, dy float64
		err := runLimited(ctx, s.L, s.limit, func() error {
			if err := s.L.CallByParam(lua.P{
				Fn:      fn,
				NRet:    2,
				Protect: true,
			}, lua.LString(p.ID), lua.LNumber(p.X), lua.LNumber(p.Y)); err != nil {
				return err
			}
			rx, ry := s.L.Get(-2), s.L.Get(-1)
			s.L.Pop(2)

			var err error
			if dx, err = toNumber(rx); err != nil {
				return fmt.Errorf("dx: %w", err)
			}
			if dy, err = toNumber(ry); err != nil {
				return fmt.Errorf("dy: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scripting: %s(%q) in %q: %w", StepFunction, p.ID, s.name, err)
		}
		out = append(out, session.Displacement{ID: p.ID, DX: dx, DY: dy})
	}
	return out, nil
}

func toNumber(v lua.LValue) (float64, error) {
	switch n := v.(type) {
	case lua.LNumber:
		return float64(n), nil
	case *lua.LNilType:
		return 0, nil
	default:
		return 0, fmt.Errorf("expected number, got %s", v.Type())
	}
}

// Close releases the Lua state. Idempotent.
func (s *LuaStepper) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
}
