package domain

// StoreProfile is the merchant a storefront belongs to.
type StoreProfile struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Email       string `json:"email" yaml:"email"`
	Phone       string `json:"phone" yaml:"phone"`
	OrderPrefix string `json:"order_prefix" yaml:"order_prefix"`
}

// Contact returns the address owner notifications go to.
func (s StoreProfile) Contact() string {
	if s.Email != "" {
		return s.Email
	}
	return s.Phone
}
