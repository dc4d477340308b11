// Package resolver maps the loosely typed stone references found on sale
// drafts to inventory items.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
	"github.com/angelmondragon/gemtrade-backend/pkg/metrics"
)

// CaratTolerance bounds the fuzzy fallback on either side of the hinted weight.
var CaratTolerance = decimal.RequireFromString("0.1")

var (
	fuzzyFloor   = decimal.RequireFromString("0.25")
	fuzzyCeiling = decimal.RequireFromString("0.5")
)

// Hint carries the optional descriptors from the draft line used by the
// fuzzy fallback.
type Hint struct {
	StoneType string
	Carat     decimal.Decimal
}

func (h Hint) usable() bool {
	return strings.TrimSpace(h.StoneType) != "" && h.Carat.IsPositive()
}

// Match is a tagged resolution outcome.
type Match struct {
	Item       *models.InventoryItem
	Kind       enums.MatchKind
	Confidence decimal.Decimal
}

type Resolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, ref string, hint Hint) (*Match, error)
}

type resolver struct {
	store   Store
	logg    *logger.Logger
	metrics *metrics.SaleMetrics
}

func New(store Store, logg *logger.Logger, m *metrics.SaleMetrics) (Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("inventory store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &resolver{store: store, logg: logg, metrics: m}, nil
}

// Resolve tries, in order: internal id, gem code, then type and carat within
// CaratTolerance. The first hit wins. No hit yields STONE_NOT_FOUND.
func (r *resolver) Resolve(ctx context.Context, tx *gorm.DB, ref string, hint Hint) (*Match, error) {
	store := r.store.WithTx(tx)
	ref = strings.TrimSpace(ref)

	if ref != "" {
		if id, err := uuid.Parse(ref); err == nil {
			item, err := store.FindByID(ctx, id)
			if err != nil {
				return nil, lookupFailed(ref, err)
			}
			if item != nil {
				return &Match{Item: item, Kind: enums.MatchKindExactID, Confidence: decimal.NewFromInt(1)}, nil
			}
		}

		item, err := store.FindByGemCode(ctx, ref)
		if err != nil {
			return nil, lookupFailed(ref, err)
		}
		if item != nil {
			return &Match{Item: item, Kind: enums.MatchKindCode, Confidence: decimal.NewFromInt(1)}, nil
		}
	}

	if hint.usable() {
		candidates, err := store.FindByTypeAndCarat(ctx, strings.TrimSpace(hint.StoneType), hint.Carat.Sub(CaratTolerance), hint.Carat.Add(CaratTolerance))
		if err != nil {
			return nil, lookupFailed(ref, err)
		}
		if best := closest(candidates, hint.Carat); best != nil {
			match := &Match{Item: best, Kind: enums.MatchKindFuzzy, Confidence: fuzzyConfidence(best.Carat, hint.Carat)}
			r.metrics.IncFuzzyMatch()
			r.logg.Warn(r.logg.WithFields(r.logg.WithItem(ctx, best.ID.String(), best.GemCode), map[string]any{
				"stone_ref":  ref,
				"stone_type": hint.StoneType,
				"carat":      hint.Carat.String(),
				"confidence": match.Confidence.String(),
			}), "stone reference resolved by fuzzy fallback")
			return match, nil
		}
	}

	return nil, pkgerrors.New(pkgerrors.CodeStoneNotFound, fmt.Sprintf("no inventory item matches %q", ref)).
		WithDetails(map[string]any{"stone_ref": ref})
}

// closest picks the candidate nearest in carat, then the one with most stock,
// then the lowest gem code so the choice is deterministic.
func closest(candidates []models.InventoryItem, carat decimal.Decimal) *models.InventoryItem {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]models.InventoryItem, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		di := sorted[i].Carat.Sub(carat).Abs()
		dj := sorted[j].Carat.Sub(carat).Abs()
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		if sorted[i].Quantity != sorted[j].Quantity {
			return sorted[i].Quantity > sorted[j].Quantity
		}
		return sorted[i].GemCode < sorted[j].GemCode
	})
	if sorted[0].Carat.Sub(carat).Abs().GreaterThan(CaratTolerance) {
		return nil
	}
	return &sorted[0]
}

// fuzzyConfidence scales linearly from 0.5 at an exact carat hit down to
// 0.25 at the tolerance edge.
func fuzzyConfidence(itemCarat, hinted decimal.Decimal) decimal.Decimal {
	delta := itemCarat.Sub(hinted).Abs()
	if delta.GreaterThan(CaratTolerance) {
		delta = CaratTolerance
	}
	span := fuzzyCeiling.Sub(fuzzyFloor)
	return fuzzyCeiling.Sub(span.Mul(delta).Div(CaratTolerance)).Round(4)
}

func lookupFailed(ref string, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inventory lookup failed").
		WithDetails(map[string]any{"stone_ref": ref})
}
