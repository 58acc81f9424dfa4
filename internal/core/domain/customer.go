package domain

import (
	"github.com/shopspring/decimal"
)

// CustomerData is the registration snapshot needed to build notifications.
type CustomerData struct {
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Email         string          `json:"email"`
	FundingAmount decimal.Decimal `json:"funding_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TokenAmount   string          `json:"token_amount"`
	WalletAddress string          `json:"wallet_address"`
}

// Fee is the fixed fee folded into TotalAmount.
func (c CustomerData) Fee() decimal.Decimal {
	return c.TotalAmount.Sub(c.FundingAmount)
}

// FullName joins first and last name.
func (c CustomerData) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
