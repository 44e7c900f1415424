package domain

// Driver is the trip owner's profile as needed by history and refunds.
type Driver struct {
	ID            string  `json:"-"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	WalletBalance float64 `json:"walletBalance"`
}
