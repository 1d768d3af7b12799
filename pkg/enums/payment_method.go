package enums

// PaymentMethod enumerates the accepted checkout payment methods.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodDebitCard  PaymentMethod = "debit_card"
	PaymentMethodPaypal     PaymentMethod = "paypal"
)

// Valid reports whether the method is one of the accepted values.
func (m PaymentMethod) Valid() bool {
	_, ok := ParsePaymentMethod(string(m))
	return ok
}

// ParsePaymentMethod validates a raw method string.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch PaymentMethod(raw) {
	case PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodPaypal:
		return PaymentMethod(raw), true
	default:
		return "", false
	}
}
