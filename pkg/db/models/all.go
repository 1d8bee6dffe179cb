package models

// All returns every model registered for schema migration, in dependency
// order.
func All() []any {
	return []any{
		&User{},
		&ShoppingGroup{},
		&ShoppingItem{},
		&ItemMetadata{},
		&ScanHistory{},
		&PriceHistory{},
		&Category{},
		&PendingWrite{},
	}
}
