package enums

import "fmt"

// PaymentMethod identifies which gateway produced a charge.
type PaymentMethod string

const (
	PaymentMethodYooKassa  PaymentMethod = "yookassa"
	PaymentMethodStars     PaymentMethod = "telegram_stars"
	PaymentMethodCryptomus PaymentMethod = "cryptomus"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodYooKassa,
	PaymentMethodStars,
	PaymentMethodCryptomus,
}

// String implements fmt.Stringer.
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is known.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
