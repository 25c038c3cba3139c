package sheetsync

import "strings"

// Field is a standardized sheet column role. Source sheets name their
// columns inconsistently across batches; the resolver maps whatever headers
// a sheet carries back onto this closed set.
type Field string

const (
	FieldProductName   Field = "product_name"
	FieldCustomerName  Field = "customer_name"
	FieldCostUsd       Field = "cost_usd"
	FieldCostVnd       Field = "cost_vnd"
	FieldSalePrice     Field = "sale_price"
	FieldProfit        Field = "profit"
	FieldWeight        Field = "weight"
	FieldShippingCost  Field = "shipping_cost"
	FieldPaymentStatus Field = "payment_status"
	FieldQuantity      Field = "quantity"
	FieldRowNumber     Field = "row_number"
)

type columnMapping struct {
	field    Field
	patterns []string
}

// The first mapping whose pattern matches claims the header, so fields with
// narrow patterns come before fields with broad ones: customer_name before
// product_name (whose "hàng" pattern would swallow "khách hàng"), row_number
// and quantity before payment_status ("tt" is inside "stt"), cost_vnd before
// cost_usd ("giá nhập" is a prefix of "giá nhập (vnd)").
var columnMappings = []columnMapping{
	{FieldRowNumber, []string{"stt", "no", "#", "số thứ tự"}},
	{FieldCustomerName, []string{"khách hàng", "khách", "tên khách", "customer", "người mua"}},
	{FieldProductName, []string{"mặt hàng", "tên mặt hàng", "tên hàng", "sản phẩm", "sp", "hàng"}},
	{FieldCostVnd, []string{"giá nhập (vnd)", "giá nhập vnd", "giá vnd"}},
	{FieldCostUsd, []string{"giá nhập (usd)", "giá nhập ($)", "đơn giá", "giá nhập", "giá usd", "cost", "price usd", "giá gốc"}},
	{FieldSalePrice, []string{"giá bán (vnd)", "giá bán", "bán", "sale price", "selling price", "giá bán vnd"}},
	{FieldProfit, []string{"lãi (vnd)", "lãi", "profit", "lời", "lợi nhuận"}},
	{FieldWeight, []string{"cân nặng", "weight", "kg", "trọng lượng", "nặng"}},
	{FieldShippingCost, []string{"phí ship", "tiền ship", "ship", "shipping", "phí vận chuyển"}},
	{FieldQuantity, []string{"số lượng", "sl", "qty", "quantity"}},
	{FieldPaymentStatus, []string{"trạng thái thanh toán", "tình trạng", "status", "thanh toán", "tt", "trạng thái"}},
}

// NormalizeColumnHeader maps a raw header cell to its Field, or "" when the
// header matches nothing. Matching is case-insensitive and bidirectional
// substring: "Tên Mặt Hàng (bắt buộc)" matches the "tên mặt hàng" pattern,
// and a terse header like "giá" matches the "giá nhập" pattern it abbreviates.
func NormalizeColumnHeader(header string) Field {
	normalized := strings.ToLower(strings.TrimSpace(header))
	if normalized == "" {
		return ""
	}
	for _, mapping := range columnMappings {
		for _, pattern := range mapping.patterns {
			if strings.Contains(normalized, pattern) || strings.Contains(pattern, normalized) {
				return mapping.field
			}
		}
	}
	return ""
}

// ResolveColumns maps each recognized header to its column index. When two
// headers resolve to the same field the first occurrence wins.
func ResolveColumns(headers []string) map[Field]int {
	resolved := make(map[Field]int)
	for index, header := range headers {
		field := NormalizeColumnHeader(header)
		if field == "" {
			continue
		}
		if _, taken := resolved[field]; taken {
			continue
		}
		resolved[field] = index
	}
	return resolved
}
