package commission

import (
	"slices"

	"github.com/shopspring/decimal"
)

var (
	hundred        = decimal.NewFromInt(100)
	discountCap    = decimal.NewFromInt(90)
	ratioThreshold = decimal.NewFromInt(40)
)

// Calculate validates the ledger rows and runs the full pipeline.
// Nothing is computed when any row is invalid.
func Calculate(rows []LedgerRow, opts Options) (*Report, error) {
	txs, err := Validate(rows)
	if err != nil {
		return nil, err
	}
	return Compute(txs, opts), nil
}

// Compute runs rate assignment, re-ranking and tier grouping over validated transactions.
func Compute(txs []Transaction, opts Options) *Report {
	opts = opts.normalized()
	rows := GroupByTier(Rerank(AssignRates(txs, opts), opts))
	return newReport(rows, opts)
}

// AssignRates orders transactions by sale date, computes each (counter, month)
// group's total and running sum, and assigns the commission rate and amount.
func AssignRates(txs []Transaction, opts Options) []Enriched {
	opts = opts.normalized()
	out := make([]Enriched, len(txs))
	for i, tx := range txs {
		out[i] = Enriched{Transaction: tx}
	}
	slices.SortStableFunc(out, func(a, b Enriched) int {
		return a.SaleDate.Compare(b.SaleDate)
	})

	totals := make(map[groupKey]decimal.Decimal)
	for _, e := range out {
		k := keyOf(e.Transaction)
		totals[k] = totals[k].Add(e.NetSales)
	}

	running := make(map[groupKey]decimal.Decimal, len(totals))
	for i := range out {
		k := keyOf(out[i].Transaction)
		running[k] = running[k].Add(out[i].NetSales)
		out[i].GroupTotal = totals[k]
		out[i].RunningSum = running[k]
		out[i].CommissionRate = rateFor(out[i].DiscountRate, out[i].RunningSum, out[i].GroupTotal)
		out[i].CommissionAmount = commissionAmount(out[i].NetSales, out[i].CommissionRate, opts.Rounding)
	}
	return out
}

// rateFor picks 22 while the month's running share is strictly below 40% and
// the discount is under 90; everything else, including empty months, earns 25.
func rateFor(discount, running, total decimal.Decimal) int {
	if discount.GreaterThanOrEqual(discountCap) {
		return RateHigh
	}
	if !total.IsPositive() {
		return RateHigh
	}
	if running.Mul(hundred).LessThan(ratioThreshold.Mul(total)) {
		return RateStandard
	}
	return RateHigh
}

func commissionAmount(net decimal.Decimal, rate int, rounding Rounding) int64 {
	amount := net.Mul(decimal.NewFromInt(int64(rate))).Div(hundred)
	return rounding.round(amount, 0).IntPart()
}

// Rerank re-sorts by (discount rate, sale date) and fills the cumulative
// percentage. Input order breaks ties. The input slice is not modified.
func Rerank(enriched []Enriched, opts Options) []Enriched {
	opts = opts.normalized()
	out := slices.Clone(enriched)
	slices.SortStableFunc(out, compareTier)

	var running decimal.Decimal
	perGroup := make(map[groupKey]decimal.Decimal)
	for i := range out {
		numerator := running.Add(out[i].NetSales)
		running = numerator
		if opts.CumulativeMode == CumulativePerGroup {
			k := keyOf(out[i].Transaction)
			perGroup[k] = perGroup[k].Add(out[i].NetSales)
			numerator = perGroup[k]
		}
		out[i].CumulativePct = cumulativePct(numerator, out[i].GroupTotal, opts.Rounding)
	}
	return out
}

func compareTier(a, b Enriched) int {
	if c := a.DiscountRate.Cmp(b.DiscountRate); c != 0 {
		return c
	}
	return a.SaleDate.Compare(b.SaleDate)
}

func cumulativePct(numerator, total decimal.Decimal, rounding Rounding) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return rounding.round(numerator.Mul(hundred).Div(total), 2)
}

// GroupByTier groups records by discount rate in order of first appearance
// and appends a subtotal row after each group.
func GroupByTier(ranked []Enriched) []Row {
	type tier struct {
		rows   []Row
		net    decimal.Decimal
		amount int64
	}
	var tiers []*tier
	index := make(map[string]*tier)
	for _, e := range ranked {
		key := e.DiscountRate.String()
		t, ok := index[key]
		if !ok {
			t = &tier{}
			index[key] = t
			tiers = append(tiers, t)
		}
		t.rows = append(t.rows, Row{
			Kind:             RowData,
			CounterID:        e.CounterID,
			SaleDate:         e.SaleDate,
			DiscountRate:     e.DiscountRate,
			NetSales:         e.NetSales,
			CumulativePct:    e.CumulativePct,
			CommissionRate:   e.CommissionRate,
			CommissionAmount: e.CommissionAmount,
		})
		t.net = t.net.Add(e.NetSales)
		t.amount += e.CommissionAmount
	}

	rows := make([]Row, 0, len(ranked)+len(tiers))
	for _, t := range tiers {
		rows = append(rows, t.rows...)
		rows = append(rows, Row{Kind: RowSubtotal, NetSales: t.net, CommissionAmount: t.amount})
	}
	return rows
}
