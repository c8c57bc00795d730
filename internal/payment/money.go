package payment

import (
	"strings"

	"github.com/shopspring/decimal"

	"fashionadmin/internal/models"
	"fashionadmin/internal/paypal"
)

// unitPrice rounds a catalog price to cents.
func unitPrice(price float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Round(2)
}

func orderTotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(unitPrice(it.UnitPrice).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}

// amountMatches reports whether the processor's amount equals the stored
// order total. A missing or unparsable amount never matches.
func amountMatches(order models.Order, m paypal.Money) bool {
	got, err := m.Decimal()
	if err != nil {
		return false
	}
	if order.Currency != "" && m.CurrencyCode != "" && !strings.EqualFold(order.Currency, m.CurrencyCode) {
		return false
	}
	return got.Round(2).Equal(unitPrice(order.TotalAmount))
}

func payerInfo(p *paypal.Payer) *models.PayerInfo {
	if p == nil {
		return nil
	}
	info := &models.PayerInfo{PayerID: p.PayerID, Email: p.EmailAddress}
	if p.Name != nil {
		info.GivenName = p.Name.GivenName
		info.Surname = p.Name.Surname
	}
	if p.Address != nil {
		info.CountryCode = p.Address.CountryCode
	}
	return info
}
