package commission

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tx(counter string, date time.Time, discount, net int64) Transaction {
	return Transaction{
		CounterID:    counter,
		SaleDate:     date,
		DiscountRate: decimal.NewFromInt(discount),
		NetSales:     decimal.NewFromInt(net),
	}
}

func dataRows(rows []Row) []Row {
	var out []Row
	for _, r := range rows {
		if !r.IsSubtotal() {
			out = append(out, r)
		}
	}
	return out
}

func TestAssignRatesRunningShareAcrossMonth(t *testing.T) {
	txs := []Transaction{
		tx("320408", day(2025, 7, 3), 50, 31020),
		tx("320408", day(2025, 7, 1), 50, 990),
	}
	out := AssignRates(txs, DefaultOptions())
	require.Len(t, out, 2)

	first, second := out[0], out[1]
	require.True(t, first.SaleDate.Equal(day(2025, 7, 1)))
	require.Equal(t, "32010", first.GroupTotal.String())
	require.Equal(t, "990", first.RunningSum.String())
	require.Equal(t, RateStandard, first.CommissionRate)
	require.Equal(t, int64(218), first.CommissionAmount)

	require.Equal(t, "32010", second.RunningSum.String())
	require.Equal(t, RateHigh, second.CommissionRate)
	require.Equal(t, int64(7755), second.CommissionAmount)
}

func TestAssignRatesHighDiscountAlwaysHighRate(t *testing.T) {
	txs := []Transaction{
		tx("A", day(2025, 7, 1), 90, 11000),
		tx("A", day(2025, 7, 2), 50, 1_000_000),
	}
	out := AssignRates(txs, DefaultOptions())
	require.Equal(t, RateHigh, out[0].CommissionRate)
	require.Equal(t, int64(2750), out[0].CommissionAmount)
	require.Equal(t, RateHigh, out[1].CommissionRate)
}

func TestAssignRatesZeroTotalGroup(t *testing.T) {
	txs := []Transaction{
		tx("Z", day(2025, 8, 1), 50, 0),
		tx("Z", day(2025, 8, 2), 60, 0),
	}
	report := Compute(txs, DefaultOptions())
	for _, row := range dataRows(report.Rows) {
		require.Equal(t, RateHigh, row.CommissionRate)
		require.True(t, row.CumulativePct.IsZero())
		require.Equal(t, int64(0), row.CommissionAmount)
	}
}

func TestRateBoundaryAtFortyPercent(t *testing.T) {
	txs := []Transaction{
		tx("B", day(2025, 7, 1), 50, 40),
		tx("B", day(2025, 7, 2), 50, 60),
	}
	out := AssignRates(txs, DefaultOptions())
	require.Equal(t, RateHigh, out[0].CommissionRate, "ratio of exactly 40 is not below the threshold")

	txs[0].NetSales = decimal.RequireFromString("39.99")
	out = AssignRates(txs, DefaultOptions())
	require.Equal(t, RateStandard, out[0].CommissionRate)
}

func TestAssignRatesGroupsByCounterAndMonth(t *testing.T) {
	txs := []Transaction{
		tx("A", day(2025, 7, 31), 50, 100),
		tx("A", day(2025, 8, 1), 50, 100),
		tx("B", day(2025, 7, 15), 50, 100),
	}
	out := AssignRates(txs, DefaultOptions())
	for _, e := range out {
		require.Equal(t, "100", e.GroupTotal.String(), "line %s %s", e.CounterID, e.Month())
		require.Equal(t, RateHigh, e.CommissionRate)
	}
}

func TestAssignRatesKeepsInputOrderForSameDay(t *testing.T) {
	txs := []Transaction{
		tx("A", day(2025, 7, 2), 60, 10),
		tx("A", day(2025, 7, 2), 70, 20),
		tx("A", day(2025, 7, 1), 50, 30),
	}
	for i := range txs {
		txs[i].Line = i + 1
	}
	out := AssignRates(txs, DefaultOptions())
	lines := []int{out[0].Line, out[1].Line, out[2].Line}
	require.Equal(t, []int{3, 1, 2}, lines)
	require.Equal(t, "40", out[1].RunningSum.String())
}

func TestRerankGlobalNumeratorOverGroupDenominator(t *testing.T) {
	txs := []Transaction{
		tx("A", day(2025, 7, 1), 60, 100),
		tx("B", day(2025, 7, 1), 50, 300),
	}
	ranked := Rerank(AssignRates(txs, DefaultOptions()), DefaultOptions())
	require.Equal(t, "B", ranked[0].CounterID)
	require.Equal(t, "100", ranked[0].CumulativePct.String())
	// A's running numerator includes B's 300 even though A's month total is 100.
	require.Equal(t, "A", ranked[1].CounterID)
	require.Equal(t, "400", ranked[1].CumulativePct.String())
}

func TestRerankPerGroupMode(t *testing.T) {
	opts := Options{CumulativeMode: CumulativePerGroup}
	txs := []Transaction{
		tx("A", day(2025, 7, 1), 60, 100),
		tx("B", day(2025, 7, 1), 50, 300),
	}
	ranked := Rerank(AssignRates(txs, opts), opts)
	require.Equal(t, "100", ranked[0].CumulativePct.String())
	require.Equal(t, "100", ranked[1].CumulativePct.String())
}

func TestRerankRoundsToTwoPlaces(t *testing.T) {
	txs := []Transaction{
		tx("C", day(2025, 7, 1), 50, 990),
		tx("C", day(2025, 7, 3), 50, 31020),
	}
	ranked := Rerank(AssignRates(txs, DefaultOptions()), DefaultOptions())
	require.Equal(t, "3.09", ranked[0].CumulativePct.String())
	require.Equal(t, "100", ranked[1].CumulativePct.String())
}

func TestRerankIsIdempotent(t *testing.T) {
	txs := sampleLedger()
	once := Rerank(AssignRates(txs, DefaultOptions()), DefaultOptions())
	resorted := slices.Clone(once)
	slices.SortStableFunc(resorted, compareTier)
	require.Equal(t, once, resorted)
}

func TestRerankDoesNotMutateInput(t *testing.T) {
	enriched := AssignRates(sampleLedger(), DefaultOptions())
	before := slices.Clone(enriched)
	_ = Rerank(enriched, DefaultOptions())
	require.Equal(t, before, enriched)
}

func TestGroupByTierSubtotals(t *testing.T) {
	report := Compute(sampleLedger(), DefaultOptions())

	var (
		net    decimal.Decimal
		amount int64
		tiers  []string
	)
	for _, row := range report.Rows {
		if row.IsSubtotal() {
			require.True(t, net.Equal(row.NetSales), "net subtotal")
			require.Equal(t, amount, row.CommissionAmount, "commission subtotal")
			require.Empty(t, row.CounterID)
			require.True(t, row.SaleDate.IsZero())
			net, amount = decimal.Zero, 0
			continue
		}
		if len(tiers) == 0 || tiers[len(tiers)-1] != row.DiscountRate.String() {
			tiers = append(tiers, row.DiscountRate.String())
		}
		net = net.Add(row.NetSales)
		amount += row.CommissionAmount
		require.Contains(t, []int{RateStandard, RateHigh}, row.CommissionRate)
	}
	require.Equal(t, []string{"50", "60", "70", "80"}, tiers)
	require.Equal(t, 4, report.Tiers)
	require.Equal(t, 6, report.DataRows)
	require.True(t, report.Rows[len(report.Rows)-1].IsSubtotal())
}

func randomLedger(rng *rand.Rand) []Transaction {
	counters := []string{"320408", "320411", "Z"}
	discounts := []string{"0", "30", "50", "50.5", "89.9", "90", "95"}
	n := 1 + rng.IntN(40)
	txs := make([]Transaction, 0, n)
	for i := 0; i < n; i++ {
		counter := counters[rng.IntN(len(counters))]
		net := int64(0)
		// Counter Z only books zero sales so its months always total zero.
		if counter != "Z" && rng.IntN(4) != 0 {
			net = 1 + rng.Int64N(50_000)
		}
		txs = append(txs, Transaction{
			Line:         i + 2,
			CounterID:    counter,
			SaleDate:     day(2025, time.Month(6+rng.IntN(3)), 1+rng.IntN(28)),
			DiscountRate: decimal.RequireFromString(discounts[rng.IntN(len(discounts))]),
			NetSales:     decimal.NewFromInt(net),
		})
	}
	return txs
}

func TestComputeInvariantsOnRandomLedgers(t *testing.T) {
	rng := rand.New(rand.NewPCG(20250701, 7))
	ninety := decimal.NewFromInt(90)

	for i := 0; i < 500; i++ {
		txs := randomLedger(rng)
		totals := make(map[groupKey]decimal.Decimal)
		inputNet := decimal.Zero
		for _, x := range txs {
			totals[keyOf(x)] = totals[keyOf(x)].Add(x.NetSales)
			inputNet = inputNet.Add(x.NetSales)
		}

		for _, mode := range []CumulativeMode{CumulativeGlobal, CumulativePerGroup} {
			report := Compute(txs, Options{CumulativeMode: mode})
			require.Equal(t, len(txs), report.DataRows, "case %d", i)
			require.Len(t, dataRows(report.Rows), len(txs), "case %d", i)
			require.True(t, report.Rows[len(report.Rows)-1].IsSubtotal(), "case %d", i)

			var (
				net       = decimal.Zero
				amount    int64
				tiers     int
				seenNet   = decimal.Zero
				prev      *Row
				inTier    bool
				tierValue decimal.Decimal
			)
			for j := range report.Rows {
				row := report.Rows[j]
				if row.IsSubtotal() {
					require.True(t, inTier, "case %d: empty tier", i)
					require.True(t, net.Equal(row.NetSales), "case %d: tier net", i)
					require.Equal(t, amount, row.CommissionAmount, "case %d: tier commission", i)
					net, amount, inTier = decimal.Zero, 0, false
					tiers++
					continue
				}
				if !inTier {
					tierValue = row.DiscountRate
					inTier = true
				}
				require.True(t, tierValue.Equal(row.DiscountRate), "case %d: mixed tier", i)
				if prev != nil {
					require.True(t, prev.DiscountRate.LessThanOrEqual(row.DiscountRate), "case %d: discount order", i)
					if prev.DiscountRate.Equal(row.DiscountRate) {
						require.False(t, row.SaleDate.Before(prev.SaleDate), "case %d: date order", i)
					}
				}
				require.Contains(t, []int{RateStandard, RateHigh}, row.CommissionRate, "case %d", i)
				if row.DiscountRate.GreaterThanOrEqual(ninety) {
					require.Equal(t, RateHigh, row.CommissionRate, "case %d: discount >= 90", i)
				}
				month := groupKey{counter: row.CounterID, month: row.SaleDate.Format("2006-01")}
				if totals[month].IsZero() {
					require.Equal(t, RateHigh, row.CommissionRate, "case %d: zero month", i)
					require.True(t, row.CumulativePct.IsZero(), "case %d: zero month pct", i)
				}
				net = net.Add(row.NetSales)
				amount += row.CommissionAmount
				seenNet = seenNet.Add(row.NetSales)
				prev = &report.Rows[j]
			}
			require.Equal(t, report.Tiers, tiers, "case %d", i)
			require.True(t, inputNet.Equal(seenNet), "case %d: net sales lost", i)
			require.True(t, inputNet.Equal(report.TotalNetSales), "case %d: total net", i)
		}
	}
}

func TestGroupByTierFirstAppearanceOrder(t *testing.T) {
	ranked := []Enriched{
		{Transaction: tx("A", day(2025, 7, 1), 70, 10), CommissionAmount: 2},
		{Transaction: tx("A", day(2025, 7, 2), 50, 20), CommissionAmount: 4},
		{Transaction: tx("A", day(2025, 7, 3), 70, 30), CommissionAmount: 7},
	}
	rows := GroupByTier(ranked)
	require.Len(t, rows, 5)
	require.Equal(t, "70", rows[0].DiscountRate.String())
	require.Equal(t, "70", rows[1].DiscountRate.String())
	require.True(t, rows[2].IsSubtotal())
	require.Equal(t, "40", rows[2].NetSales.String())
	require.Equal(t, int64(9), rows[2].CommissionAmount)
	require.Equal(t, "50", rows[3].DiscountRate.String())
	require.True(t, rows[4].IsSubtotal())
}

func TestComputeSampleLedger(t *testing.T) {
	report := Compute(sampleLedger(), DefaultOptions())
	got := dataRows(report.Rows)
	require.Len(t, got, 6)

	type want struct {
		discount string
		date     time.Time
		rate     int
		amount   int64
		pct      string
	}
	// Month total is 156090.
	expected := []want{
		{"50", day(2025, 7, 1), RateStandard, 218, "0.63"},
		{"50", day(2025, 7, 3), RateHigh, 7755, "20.51"},
		{"50", day(2025, 7, 4), RateHigh, 12760, "53.21"},
		{"60", day(2025, 7, 2), RateStandard, 2420, "60.25"},
		{"70", day(2025, 7, 2), RateStandard, 4622, "73.71"},
		{"80", day(2025, 7, 3), RateHigh, 10258, "100"},
	}
	for i, w := range expected {
		require.Equal(t, w.discount, got[i].DiscountRate.String(), "row %d", i)
		require.True(t, w.date.Equal(got[i].SaleDate), "row %d", i)
		require.Equal(t, w.rate, got[i].CommissionRate, "row %d", i)
		require.Equal(t, w.amount, got[i].CommissionAmount, "row %d", i)
		require.Equal(t, w.pct, got[i].CumulativePct.String(), "row %d", i)
	}
	require.Equal(t, "156090", report.TotalNetSales.String())
	require.Equal(t, int64(218+7755+12760+2420+4622+10258), report.TotalCommission)
}

func TestRoundingModes(t *testing.T) {
	txs := []Transaction{tx("R", day(2025, 7, 1), 90, 10)}

	even := Compute(txs, Options{Rounding: RoundHalfEven})
	require.Equal(t, int64(2), even.Rows[0].CommissionAmount)

	up := Compute(txs, Options{Rounding: RoundHalfUp})
	require.Equal(t, int64(3), up.Rows[0].CommissionAmount)
}

func TestComputeEmptyLedger(t *testing.T) {
	report := Compute(nil, Options{})
	require.Empty(t, report.Rows)
	require.Equal(t, DefaultOptions(), report.Options)
}

func TestCalculateRejectsWholeBatch(t *testing.T) {
	rows := []LedgerRow{
		{Line: 2, CounterID: "320408", SaleDate: "2025/7/1", DiscountRate: "50", NetSales: "990"},
		{Line: 3, CounterID: "320408", SaleDate: "", DiscountRate: "50", NetSales: "31020"},
	}
	report, err := Calculate(rows, DefaultOptions())
	require.Nil(t, report)
	require.ErrorIs(t, err, ErrValidation)
}

// sampleLedger mirrors the column example shown on the upload form.
func sampleLedger() []Transaction {
	return []Transaction{
		tx("320408", day(2025, 7, 1), 50, 990),
		tx("320408", day(2025, 7, 2), 60, 11000),
		tx("320408", day(2025, 7, 2), 70, 21010),
		tx("320408", day(2025, 7, 3), 50, 31020),
		tx("320408", day(2025, 7, 3), 80, 41030),
		tx("320408", day(2025, 7, 4), 50, 51040),
	}
}
