package models

// All lists every persisted model, in FK-safe creation order. Used by the
// sqlite auto-migrate path in local and test runs.
func All() []any {
	return []any{
		&User{},
		&Subscription{},
		&Pack{},
		&Request{},
		&Generation{},
		&CartItem{},
		&OutboxEvent{},
	}
}
