package spreadsheet

import (
	"fmt"
	"strings"

	"github.com/noah-isme/backend-komisi/internal/commission"
)

// Labels holds the user-facing strings of a rendered report.
type Labels struct {
	Sheet       string
	Headers     []string
	Subtotal    string
	DefaultName string
}

// Chinese is the default label set used by the counter staff.
var Chinese = Labels{
	Sheet:       "抽成計算",
	Headers:     []string{"櫃位編號", "銷售日期", "折扣率", "銷售淨額", "銷售累計百分比", "抽成率", "抽成額"},
	Subtotal:    "小計",
	DefaultName: "處理結果",
}

// English mirrors Chinese for non-local readers.
var English = Labels{
	Sheet:       "Commission",
	Headers:     []string{"Counter ID", "Sale Date", "Discount Rate", "Net Sales", "Cumulative %", "Commission Rate", "Commission Amount"},
	Subtotal:    commission.SubtotalTag,
	DefaultName: "commission_report",
}

// LabelsFor resolves a label set by name ("zh" or "en"). Empty means zh.
func LabelsFor(name string) (Labels, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "zh", "zh-tw", "zh_tw":
		return Chinese, nil
	case "en", "en-us", "en_us":
		return English, nil
	default:
		return Labels{}, fmt.Errorf("unknown label set %q", name)
	}
}
