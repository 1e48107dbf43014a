package commission

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Commission rates in percent.
const (
	RateStandard = 22
	RateHigh     = 25
)

// SubtotalTag replaces the discount rate of a tier subtotal row.
const SubtotalTag = "Subtotal"

// Columns lists the report columns in their fixed output order.
var Columns = []string{
	"counter_id",
	"sale_date",
	"discount_rate",
	"net_sales",
	"cumulative_pct",
	"commission_rate",
	"commission_amount",
}

// LedgerRow is one ledger line as read from an upload, before validation.
type LedgerRow struct {
	Line         int
	CounterID    string
	SaleDate     string
	DiscountRate string
	NetSales     string
}

// Transaction is a validated ledger line.
type Transaction struct {
	Line         int
	CounterID    string
	SaleDate     time.Time
	DiscountRate decimal.Decimal
	NetSales     decimal.Decimal
}

// Month returns the calendar year-month of the sale.
func (t Transaction) Month() string {
	return t.SaleDate.Format("2006-01")
}

type groupKey struct {
	counter string
	month   string
}

func keyOf(t Transaction) groupKey {
	return groupKey{counter: t.CounterID, month: t.Month()}
}

// Enriched is a transaction carrying its monthly aggregates and commission.
type Enriched struct {
	Transaction
	GroupTotal       decimal.Decimal
	RunningSum       decimal.Decimal
	CommissionRate   int
	CommissionAmount int64
	CumulativePct    decimal.Decimal
}

// RowKind distinguishes data rows from tier subtotals.
type RowKind string

const (
	RowData     RowKind = "data"
	RowSubtotal RowKind = "subtotal"
)

// Row is one line of the final report.
type Row struct {
	Kind             RowKind
	CounterID        string
	SaleDate         time.Time
	DiscountRate     decimal.Decimal
	NetSales         decimal.Decimal
	CumulativePct    decimal.Decimal
	CommissionRate   int
	CommissionAmount int64
}

// IsSubtotal reports whether the row is a tier subtotal.
func (r Row) IsSubtotal() bool {
	return r.Kind == RowSubtotal
}

type rowJSON struct {
	Kind             RowKind          `json:"kind"`
	CounterID        string           `json:"counter_id"`
	SaleDate         string           `json:"sale_date"`
	DiscountRate     any              `json:"discount_rate"`
	NetSales         decimal.Decimal  `json:"net_sales"`
	CumulativePct    *decimal.Decimal `json:"cumulative_pct"`
	CommissionRate   *int             `json:"commission_rate"`
	CommissionAmount int64            `json:"commission_amount"`
}

// MarshalJSON renders subtotal rows with blank fields and the subtotal tag.
func (r Row) MarshalJSON() ([]byte, error) {
	out := rowJSON{
		Kind:             r.Kind,
		NetSales:         r.NetSales,
		CommissionAmount: r.CommissionAmount,
	}
	if r.IsSubtotal() {
		out.DiscountRate = SubtotalTag
		return json.Marshal(out)
	}
	pct := r.CumulativePct
	rate := r.CommissionRate
	out.CounterID = r.CounterID
	out.SaleDate = r.SaleDate.Format("2006-01-02")
	out.DiscountRate = r.DiscountRate
	out.CumulativePct = &pct
	out.CommissionRate = &rate
	return json.Marshal(out)
}

// Report is the ordered output of one calculation.
type Report struct {
	Rows            []Row           `json:"rows"`
	Options         Options         `json:"options"`
	Tiers           int             `json:"tiers"`
	DataRows        int             `json:"data_rows"`
	TotalNetSales   decimal.Decimal `json:"total_net_sales"`
	TotalCommission int64           `json:"total_commission"`
}

func newReport(rows []Row, opts Options) *Report {
	report := &Report{Rows: rows, Options: opts}
	for _, row := range rows {
		if row.IsSubtotal() {
			report.Tiers++
			continue
		}
		report.DataRows++
		report.TotalNetSales = report.TotalNetSales.Add(row.NetSales)
		report.TotalCommission += row.CommissionAmount
	}
	return report
}
