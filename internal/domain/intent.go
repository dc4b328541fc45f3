package domain

// Intent is what the classification and vision collaborators produce from a message or a receipt.
// The ledger only consumes these fields.
type Intent struct {
	Direction   Direction `json:"direction"`
	Category    string    `json:"category"`
	Location    string    `json:"location"`
	Currency    string    `json:"currency"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`

	DestinationCurrency *string  `json:"destinationCurrency,omitempty"`
	DestinationAmount   *float64 `json:"destinationAmount,omitempty"`

	IsCreditPurchase  bool     `json:"isCreditPurchase,omitempty"`
	TotalCreditAmount *float64 `json:"totalCreditAmount,omitempty"`
	CreditLine        string   `json:"creditLine,omitempty"`

	IsInstallmentPayment bool    `json:"isInstallmentPayment,omitempty"`
	PaymentReference     *string `json:"paymentReference,omitempty"`

	// Date is an optional YYYY-MM-DD for back-dated entries (receipts).
	Date string `json:"date,omitempty"`
}
