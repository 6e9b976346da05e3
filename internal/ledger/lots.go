package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradefolio/platform/internal/portfolio"
)

// lot is an open FIFO purchase lot. Sells consume lots oldest-first.
type lot struct {
	qty   int64
	price decimal.Decimal
}

// closedLot records a sell matched against one purchase lot. PnL over a
// closed lot is (sellPrice - costBasis) * qty.
type closedLot struct {
	symbol    string
	qty       int64
	costBasis decimal.Decimal
	sellPrice decimal.Decimal
	closedAt  time.Time
}

func (c closedLot) pnl() decimal.Decimal {
	return c.sellPrice.Sub(c.costBasis).Mul(decimal.NewFromInt(c.qty))
}

// replayLots walks trades in execution order and returns open holdings
// plus every closed lot. Cost math runs in decimals, converted to float
// only at the boundary. Trades are re-sorted by execution time; callers
// normally supply them already ordered.
func replayLots(trades []Trade) (map[string]portfolio.Holding, []closedLot, error) {
	ordered := make([]Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExecutedAt.Before(ordered[j].ExecutedAt)
	})

	open := make(map[string][]lot)
	var closed []closedLot

	for _, t := range ordered {
		switch t.Side {
		case SideBuy:
			open[t.Symbol] = append(open[t.Symbol], lot{
				qty:   t.Quantity,
				price: decimal.NewFromFloat(t.Price),
			})
		case SideSell:
			remaining := t.Quantity
			sellPrice := decimal.NewFromFloat(t.Price)
			lots := open[t.Symbol]
			for remaining > 0 && len(lots) > 0 {
				head := &lots[0]
				take := head.qty
				if take > remaining {
					take = remaining
				}
				closed = append(closed, closedLot{
					symbol:    t.Symbol,
					qty:       take,
					costBasis: head.price,
					sellPrice: sellPrice,
					closedAt:  t.ExecutedAt,
				})
				head.qty -= take
				remaining -= take
				if head.qty == 0 {
					lots = lots[1:]
				}
			}
			if remaining > 0 {
				return nil, nil, fmt.Errorf("ledger corrupt: sell of %d %s exceeds open lots by %d (trade %s)",
					t.Quantity, t.Symbol, remaining, t.ID)
			}
			if len(lots) == 0 {
				delete(open, t.Symbol)
			} else {
				open[t.Symbol] = lots
			}
		default:
			return nil, nil, fmt.Errorf("ledger corrupt: unknown side %q (trade %s)", t.Side, t.ID)
		}
	}

	holdings := make(map[string]portfolio.Holding, len(open))
	for symbol, lots := range open {
		var qty int64
		cost := decimal.Zero
		for _, l := range lots {
			qty += l.qty
			cost = cost.Add(l.price.Mul(decimal.NewFromInt(l.qty)))
		}
		if qty == 0 {
			continue
		}
		avg, _ := cost.Div(decimal.NewFromInt(qty)).Float64()
		holdings[symbol] = portfolio.Holding{
			Symbol:   symbol,
			Quantity: qty,
			AvgCost:  avg,
		}
	}
	return holdings, closed, nil
}

// realizedSince sums PnL over closed lots whose closing sell executed
// strictly after since. A zero since covers the whole history.
func realizedSince(trades []Trade, since time.Time) (float64, error) {
	_, closed, err := replayLots(trades)
	if err != nil {
		return 0, err
	}
	total := decimal.Zero
	for _, c := range closed {
		if !since.IsZero() && !c.closedAt.After(since) {
			continue
		}
		total = total.Add(c.pnl())
	}
	f, _ := total.Float64()
	return f, nil
}
