package config

import (
	"github.com/noah-isme/backend-komisi/internal/commission"
	"github.com/noah-isme/backend-komisi/internal/spreadsheet"
)

// CommissionOptions converts the commission settings into engine options.
func (c *Config) CommissionOptions() (commission.Options, error) {
	mode, err := commission.ParseCumulativeMode(c.CumulativeMode)
	if err != nil {
		return commission.Options{}, err
	}
	rounding, err := commission.ParseRounding(c.Rounding)
	if err != nil {
		return commission.Options{}, err
	}
	return commission.Options{CumulativeMode: mode, Rounding: rounding}, nil
}

// Labels resolves the label set used for rendered reports.
func (c *Config) Labels() (spreadsheet.Labels, error) {
	return spreadsheet.LabelsFor(c.ReportLabels)
}
