// Package orders turns planner output and pricer decisions into concrete,
// ready-to-submit Order values (spec §4.6).
package orders

import (
	"math"
	"strconv"
	"time"

	"github.com/arutneva1/IB-Trade/internal/config"
	"github.com/arutneva1/IB-Trade/internal/domain"
	"github.com/arutneva1/IB-Trade/internal/errs"
	"github.com/arutneva1/IB-Trade/internal/pricer"
)

// round rounds the exact binary value of value to decimals places, so a
// value stored just below a half (1000.005 is 1000.00499...) rounds down.
func round(value float64, decimals int) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(value, 'f', decimals, 64), 64)
	if err != nil {
		return value
	}
	return rounded
}

func rthFlag(preferRTH bool) domain.RTHFlag {
	if preferRTH {
		return domain.RTHOnly
	}
	return domain.RTHAllHours
}

// BuildEquityOrders turns a set of signed-share planned orders into concrete
// Order values. Every symbol in orders must have a quote and a resolved
// contract. When rebalanceCfg.OrderType is LMT, the limit pricer (§4.5) is
// consulted per symbol; an escalation to MKT switches the order's type.
func BuildEquityOrders(
	planned []domain.PlannedOrder,
	quotes map[string]domain.Quote,
	contracts map[string]domain.ContractRef,
	rebalanceCfg config.RebalanceConfig,
	limitsCfg config.LimitsConfig,
	allowFractional bool,
	preferRTH bool,
	now time.Time,
) ([]domain.Order, error) {
	built := make([]domain.Order, 0, len(planned))

	for _, p := range planned {
		if p.Shares == 0 {
			return nil, errs.NewRuntimeError("non-zero quantity required for %s", p.Symbol)
		}
		contract, ok := contracts[p.Symbol]
		if !ok {
			return nil, errs.NewResolutionError(nil, "missing contract for "+p.Symbol)
		}
		quote, ok := quotes[p.Symbol]
		if !ok {
			return nil, errs.NewRuntimeError("missing quote for %s", p.Symbol)
		}

		side := domain.SideBuy
		if p.Shares < 0 {
			side = domain.SideSell
		}
		quantity := math.Abs(p.Shares)
		if contract.LotSize > 1 {
			quantity = EnforceLotSize(quantity, contract.LotSize)
		}
		if !allowFractional {
			quantity = math.Round(quantity)
		}
		if quantity <= 0 {
			continue
		}

		orderType := domain.OrderTypeMarket
		if rebalanceCfg.OrderType == "LMT" {
			orderType = domain.OrderTypeLimit
		}

		var limitPrice *float64
		if orderType == domain.OrderTypeLimit {
			price, kind, err := pricer.PriceLimit(side, quote, contract.MinTick, limitsCfg, now)
			if err != nil {
				return nil, err
			}
			if kind == domain.OrderTypeMarket {
				orderType = domain.OrderTypeMarket
			} else {
				limitPrice = price
			}
		}

		built = append(built, domain.Order{
			Contract:   contract,
			Side:       side,
			Quantity:   quantity,
			Type:       orderType,
			LimitPrice: limitPrice,
			TIF:        domain.TIFDay,
			RTH:        rthFlag(preferRTH),
		})
	}

	return built, nil
}

// BuildFXOrder turns an FxPlan into a concrete FX Order: quantity rounded to
// 0.01, limit price rounded to the contract tick (defaulting to a pip,
// 0.0001). A plan with NeedFX false is rejected with a RuntimeError.
func BuildFXOrder(plan domain.FxPlan, contract domain.ContractRef, preferRTH bool) (domain.Order, error) {
	if !plan.NeedFX {
		return domain.Order{}, errs.NewRuntimeError("fx plan does not require a conversion")
	}

	qty := round(plan.Qty, 2)
	if qty <= 0 {
		return domain.Order{}, errs.NewRuntimeError("fx quantity must be positive")
	}

	orderType := domain.OrderTypeMarket
	if plan.OrderType == domain.OrderTypeLimit {
		orderType = domain.OrderTypeLimit
	}

	var limitPrice *float64
	if orderType == domain.OrderTypeLimit {
		if plan.LimitPrice == nil {
			return domain.Order{}, errs.NewRuntimeError("limit price required for LMT FX order")
		}
		tick := contract.MinTick
		if tick <= 0 {
			tick = 0.0001
		}
		price := round(math.Round(*plan.LimitPrice/tick)*tick, 4)
		limitPrice = &price
	}

	return domain.Order{
		Contract:   contract,
		Side:       plan.Side,
		Quantity:   qty,
		Type:       orderType,
		LimitPrice: limitPrice,
		TIF:        domain.TIFDay,
		Route:      plan.Route,
		RTH:        rthFlag(preferRTH),
	}, nil
}

// EnforceLotSize rounds quantity to the nearest valid multiple of lotSize,
// preferring the floor; if that rounds to zero it rounds up instead. Used as
// a supplemental step by callers whose contracts enforce a minimum lot
// (lotSize <= 1 means no rounding is applied).
func EnforceLotSize(quantity float64, lotSize int) float64 {
	if lotSize <= 1 {
		return quantity
	}
	lot := float64(lotSize)
	down := math.Floor(quantity/lot) * lot
	if down > 0 {
		return down
	}
	up := math.Ceil(quantity/lot) * lot
	return up
}
