package sales

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
)

const codeScope = "sale_code"

// Sequencer hands out monotonically increasing numbers per scope. The Redis
// client implements it.
type Sequencer interface {
	NextSequence(ctx context.Context, scope ...string) (int64, error)
}

// CodeGenerator issues human readable sale codes of the form
// <prefix>-<year>-<seq>.
type CodeGenerator struct {
	prefix string
	seq    Sequencer
	logg   *logger.Logger
	now    func() time.Time
}

// NewCodeGenerator returns a generator. seq may be nil, in which case codes
// use a time derived suffix instead of a counter.
func NewCodeGenerator(prefix string, seq Sequencer, logg *logger.Logger) *CodeGenerator {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "SL"
	}
	return &CodeGenerator{prefix: prefix, seq: seq, logg: logg, now: time.Now}
}

// Next never fails: a sequencer error degrades to the time derived suffix.
func (g *CodeGenerator) Next(ctx context.Context, saleDate time.Time) string {
	if saleDate.IsZero() {
		saleDate = g.now()
	}
	year := strconv.Itoa(saleDate.UTC().Year())
	if g.seq != nil {
		n, err := g.seq.NextSequence(ctx, codeScope, year)
		if err == nil {
			return fmt.Sprintf("%s-%s-%06d", g.prefix, year, n)
		}
		if g.logg != nil {
			g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "sale code counter unavailable, using time based code")
		}
	}
	suffix := strings.ToUpper(strconv.FormatInt(g.now().UnixNano(), 36))
	return fmt.Sprintf("%s-%s-%s", g.prefix, year, suffix)
}
