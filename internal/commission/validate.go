package commission

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	"2006/1/2",
	"2006-1-2",
	"2006.1.2",
	"20060102",
	"2006/1/2 15:04",
	"2006/1/2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2 15:04:05",
	"2006-1-2T15:04:05",
	time.RFC3339,
}

var (
	errEmpty     = errors.New("value is empty")
	errBadDate   = errors.New("unparseable date")
	errBadNumber = errors.New("not a number")
	errNegative  = errors.New("must not be negative")
	errNoCounter = errors.New("counter id is empty")
)

// ParseSaleDate parses a ledger date and discards the time of day.
func ParseSaleDate(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, errEmpty
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, errBadDate
}

// ParseAmount parses a numeric ledger cell, accepting thousands separators.
func ParseAmount(value string) (decimal.Decimal, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return decimal.Zero, errEmpty
	}
	v = strings.ReplaceAll(v, ",", "")
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errBadNumber
	}
	return d, nil
}

// ParseDiscount parses a discount rate such as "50" or "50%".
func ParseDiscount(value string) (decimal.Decimal, error) {
	return ParseAmount(strings.TrimSuffix(strings.TrimSpace(value), "%"))
}

// Validate converts raw ledger rows into transactions. Every problem in the
// batch is collected; on any problem no transactions are returned.
func Validate(rows []LedgerRow) ([]Transaction, error) {
	var problems []FieldError
	txs := make([]Transaction, 0, len(rows))
	for i, row := range rows {
		line := row.Line
		if line <= 0 {
			line = i + 1
		}
		report := func(column, value string, err error) {
			problems = append(problems, FieldError{Line: line, Column: column, Value: value, Reason: err.Error()})
		}

		counter := strings.TrimSpace(row.CounterID)
		if counter == "" {
			report("counter_id", row.CounterID, errNoCounter)
		}
		date, err := ParseSaleDate(row.SaleDate)
		if err != nil {
			report("sale_date", row.SaleDate, err)
		}
		discount, err := ParseDiscount(row.DiscountRate)
		if err != nil {
			report("discount_rate", row.DiscountRate, err)
		}
		net, err := ParseAmount(row.NetSales)
		if err != nil {
			report("net_sales", row.NetSales, err)
		} else if net.IsNegative() {
			report("net_sales", row.NetSales, errNegative)
		}

		txs = append(txs, Transaction{
			Line:         line,
			CounterID:    counter,
			SaleDate:     date,
			DiscountRate: discount,
			NetSales:     net,
		})
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return txs, nil
}
