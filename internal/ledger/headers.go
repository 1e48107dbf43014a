package ledger

import (
	"strings"

	"github.com/noah-isme/backend-komisi/internal/commission"
)

var requiredColumns = []string{"counter_id", "sale_date", "discount_rate", "net_sales"}

// headerAliases lists the accepted header spellings per canonical column,
// compared after normalizeHeader.
var headerAliases = map[string][]string{
	"counter_id":    {"櫃位編號", "柜位编号", "櫃號", "counterid", "counter", "counterno"},
	"sale_date":     {"銷售日期", "销售日期", "日期", "saledate", "salesdate", "date"},
	"discount_rate": {"折扣率", "折扣", "discountrate", "discount"},
	"net_sales":     {"銷售淨額", "销售净额", "淨額", "netsales", "netamount", "net"},
}

var aliasIndex = func() map[string]string {
	idx := make(map[string]string)
	for canonical, aliases := range headerAliases {
		for _, alias := range aliases {
			idx[alias] = canonical
		}
	}
	return idx
}()

type columnIndex struct {
	counter  int
	date     int
	discount int
	net      int
}

var headerNoise = strings.NewReplacer("\ufeff", "", " ", "", "_", "", "-", "", ".", "")

func normalizeHeader(value string) string {
	return headerNoise.Replace(strings.ToLower(normalizeCell(value)))
}

// mapHeader locates the required columns; the first matching header wins.
func mapHeader(header []string) (columnIndex, error) {
	found := map[string]int{}
	for i, h := range header {
		canonical, ok := aliasIndex[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := found[canonical]; !dup {
			found[canonical] = i
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := found[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return columnIndex{}, commission.MissingColumns(missing...)
	}
	return columnIndex{
		counter:  found["counter_id"],
		date:     found["sale_date"],
		discount: found["discount_rate"],
		net:      found["net_sales"],
	}, nil
}
