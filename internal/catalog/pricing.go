package catalog

import "fashionadmin/internal/models"

func isProductOnSale(price float64, saleEnabled bool, salePrice float64) bool {
	return saleEnabled && salePrice > 0 && salePrice < price
}

func effectiveProductPrice(price float64, saleEnabled bool, salePrice float64) float64 {
	if isProductOnSale(price, saleEnabled, salePrice) {
		return salePrice
	}
	return price
}

// EffectivePrice is the unit price a checkout must charge for p right now.
func EffectivePrice(p models.Product) float64 {
	return effectiveProductPrice(p.Price, p.SaleEnabled, p.SalePrice)
}
