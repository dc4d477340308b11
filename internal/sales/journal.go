package sales

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

type stepKind string

const (
	stepInventory  stepKind = "inventory_delta"
	stepSaleHeader stepKind = "sale_header"
	stepLineItems  stepKind = "sale_line_items"
)

// step is one applied write plus the write that reverses it.
type step struct {
	Kind     stepKind
	Action   string
	SaleID   uuid.UUID
	ItemID   *uuid.UUID
	Line     *int
	Quantity int

	undo func(ctx context.Context) error
}

func (s step) describe() map[string]any {
	out := map[string]any{"kind": string(s.Kind), "action": s.Action, "sale_id": s.SaleID.String()}
	if s.ItemID != nil {
		out["inventory_item_id"] = s.ItemID.String()
	}
	if s.Line != nil {
		out["line"] = *s.Line
	}
	if s.Kind == stepInventory {
		out["delta"] = s.Quantity
	}
	return out
}

// journal records the writes an operation has applied, in order.
type journal struct {
	op    string
	steps []step
}

func newJournal(op string) *journal {
	return &journal{op: op}
}

func (j *journal) record(s step) {
	j.steps = append(j.steps, s)
}

func (j *journal) describe() []map[string]any {
	out := make([]map[string]any, 0, len(j.steps))
	for _, s := range j.steps {
		out = append(out, s.describe())
	}
	return out
}

// unwind runs every undo in reverse order. It keeps going past failures and
// returns the steps that could not be reversed with their combined error.
func (j *journal) unwind(ctx context.Context) ([]step, error) {
	var (
		failed []step
		errs   error
	)
	for i := len(j.steps) - 1; i >= 0; i-- {
		s := j.steps[i]
		if s.undo == nil {
			continue
		}
		if err := s.undo(ctx); err != nil {
			failed = append(failed, s)
			errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", s.Kind, s.Action, err))
		}
	}
	return failed, errs
}
