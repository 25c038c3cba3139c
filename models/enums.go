package models

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusDeposit PaymentStatus = "deposit"
	PaymentStatusUnknown PaymentStatus = "unknown"
)

type ProductCategory string

const (
	ProductCategorySupplements ProductCategory = "supplements"
	ProductCategorySkincare    ProductCategory = "skincare"
	ProductCategoryCosmetics   ProductCategory = "cosmetics"
	ProductCategoryFragrance   ProductCategory = "fragrance"
	ProductCategoryBaby        ProductCategory = "baby"
	ProductCategoryFood        ProductCategory = "food"
	ProductCategoryBags        ProductCategory = "bags"
	ProductCategoryClothing    ProductCategory = "clothing"
	ProductCategoryShoes       ProductCategory = "shoes"
	ProductCategoryElectronics ProductCategory = "electronics"
	ProductCategoryHousehold   ProductCategory = "household"
	ProductCategoryOther       ProductCategory = "other"
)

var validProductCategories = map[ProductCategory]bool{
	ProductCategorySupplements: true,
	ProductCategorySkincare:    true,
	ProductCategoryCosmetics:   true,
	ProductCategoryFragrance:   true,
	ProductCategoryBaby:        true,
	ProductCategoryFood:        true,
	ProductCategoryBags:        true,
	ProductCategoryClothing:    true,
	ProductCategoryShoes:       true,
	ProductCategoryElectronics: true,
	ProductCategoryHousehold:   true,
	ProductCategoryOther:       true,
}

func (c ProductCategory) IsValid() bool {
	return validProductCategories[c]
}

// CoerceProductCategory validates an untrusted category value against the
// closed set. Anything unrecognized becomes "other".
func CoerceProductCategory(value string) ProductCategory {
	c := ProductCategory(value)
	if c.IsValid() {
		return c
	}
	return ProductCategoryOther
}
