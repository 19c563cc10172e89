package valuation

import "github.com/jmercier/folio/internal/domain"

// EffectivePrice selects the price to value a holding at. During pre-market
// sessions the pre-market price wins when present, during post-market
// sessions the post-market price, otherwise the regular price. A nil quote
// yields 0.
func EffectivePrice(q *domain.Quote) float64 {
	if q == nil {
		return 0
	}
	switch q.MarketState {
	case domain.MarketStatePre, domain.MarketStatePrePre:
		if q.PreMarket != nil {
			return *q.PreMarket
		}
	case domain.MarketStatePost, domain.MarketStatePostPost:
		if q.PostMarket != nil {
			return *q.PostMarket
		}
	}
	return q.Price
}

// Valuate computes the valuation of one holding position against a quote.
// Missing inputs never raise errors: a nil quote, a zero rate, or an absent
// previous close all degrade to zero-valued outputs. The fx rate converts
// from the holding's currency into the caller's target currency.
func Valuate(h *domain.Holding, pos domain.Position, q *domain.Quote, fxRate float64) HoldingValuation {
	price := EffectivePrice(q)

	prevClose := price
	if q != nil && q.PreviousClose != nil {
		prevClose = *q.PreviousClose
	}

	return valuate(h, pos, price, prevClose, fxRate)
}

// ValuateAt computes the valuation of one holding position against explicit
// prices, used by the historical backfill where the "previous close" is the
// nearest earlier trading day's close rather than the quote's field.
func ValuateAt(h *domain.Holding, pos domain.Position, price, prevClose, fxRate float64) HoldingValuation {
	return valuate(h, pos, price, prevClose, fxRate)
}

func valuate(h *domain.Holding, pos domain.Position, price, prevClose, fxRate float64) HoldingValuation {
	v := HoldingValuation{
		Symbol:         h.Symbol,
		Name:           h.Name,
		AssetType:      h.AssetType,
		Currency:       h.Currency,
		Quantity:       pos.Quantity,
		EffectivePrice: price,
	}

	v.MarketValue = price * pos.Quantity * fxRate
	v.CostBasis = pos.AverageCost * pos.Quantity * fxRate
	v.UnrealizedPnL = v.MarketValue - v.CostBasis
	if v.CostBasis > 0 {
		v.UnrealizedPnLPct = v.UnrealizedPnL / v.CostBasis * 100
	}

	v.DailyPnL = (price - prevClose) * pos.Quantity * fxRate
	if base := prevClose * pos.Quantity * fxRate; base > 0 {
		v.DailyPnLPct = v.DailyPnL / base * 100
	}

	return v
}
