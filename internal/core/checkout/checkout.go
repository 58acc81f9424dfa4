// Package checkout validates registration input and computes payment amounts.
package checkout

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/vietddude/somicard/internal/core/domain"
)

// TokenDecimals is the precision of the token amount shown and notified.
const TokenDecimals = 4

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	txHashPattern  = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

// v is the package-level validator. Custom tags are registered in init.
var v = validator.New()

func init() {
	_ = v.RegisterValidation("email_simple", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("evm_address", func(fl validator.FieldLevel) bool {
		return addressPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("tx_hash", func(fl validator.FieldLevel) bool {
		return txHashPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// Form is the registration input.
type Form struct {
	FirstName     string  `json:"firstName"     validate:"notblank"`
	LastName      string  `json:"lastName"`
	Email         string  `json:"email"         validate:"email_simple"`
	FundingAmount float64 `json:"fundingAmount" validate:"gt=0"`
	WalletAddress string  `json:"walletAddress" validate:"evm_address"`
}

// BalanceForm is the balance-inquiry input.
type BalanceForm struct {
	WalletAddress string `json:"walletAddress" validate:"evm_address"`
	Email         string `json:"email"         validate:"omitempty,email_simple"`
}

var fieldMessages = map[string]string{
	"FirstName":     "first name is required",
	"Email":         "please enter a valid email address",
	"WalletAddress": "please enter a valid wallet address",
	"FundingAmount": "funding amount must be positive",
	"TxHash":        "please enter a valid transaction hash",
}

// Validate checks s using its validate tags. The returned error wraps
// domain.ErrValidation.
func Validate(s any) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		var msgs []string
		for _, fe := range ve {
			msg, ok := fieldMessages[fe.Field()]
			if !ok {
				msg = fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag())
			}
			msgs = append(msgs, msg)
		}
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
	}
	return nil
}

// ValidTxHash reports whether h looks like a 32-byte hex transaction hash.
func ValidTxHash(h string) bool {
	return txHashPattern.MatchString(h)
}

// Amounts is the computed payment for one registration.
type Amounts struct {
	Funding     decimal.Decimal `json:"fundingAmount"`
	Fee         decimal.Decimal `json:"insuranceFee"`
	Total       decimal.Decimal `json:"totalAmount"`
	Price       decimal.Decimal `json:"tokenPrice"`
	TokenAmount string          `json:"tokenAmount"`
}

// Calculator computes payment amounts within funding bounds.
type Calculator struct {
	Fee        decimal.Decimal
	MinFunding decimal.Decimal
	MaxFunding decimal.Decimal
}

// NewCalculator builds a calculator from USD values.
func NewCalculator(fee, minFunding, maxFunding float64) Calculator {
	return Calculator{
		Fee:        decimal.NewFromFloat(fee),
		MinFunding: decimal.NewFromFloat(minFunding),
		MaxFunding: decimal.NewFromFloat(maxFunding),
	}
}

// CheckFunding rejects amounts outside [MinFunding, MaxFunding].
func (c Calculator) CheckFunding(funding decimal.Decimal) error {
	if funding.LessThan(c.MinFunding) || funding.GreaterThan(c.MaxFunding) {
		return fmt.Errorf("%w: funding amount must be between $%s and $%s",
			domain.ErrValidation, c.MinFunding.String(), c.MaxFunding.String())
	}
	return nil
}

// Compute returns total = funding + fee and the token amount total/price.
func (c Calculator) Compute(funding decimal.Decimal, price float64) (Amounts, error) {
	if err := c.CheckFunding(funding); err != nil {
		return Amounts{}, err
	}
	if price <= 0 {
		return Amounts{}, fmt.Errorf("token price must be positive, got %v", price)
	}

	p := decimal.NewFromFloat(price)
	total := funding.Add(c.Fee)
	tokens := total.DivRound(p, TokenDecimals+2).Round(TokenDecimals)

	return Amounts{
		Funding:     funding,
		Fee:         c.Fee,
		Total:       total,
		Price:       p,
		TokenAmount: tokens.StringFixed(TokenDecimals),
	}, nil
}

// Customer builds the notification snapshot for a validated form.
func Customer(form Form, amounts Amounts) domain.CustomerData {
	return domain.CustomerData{
		FirstName:     strings.TrimSpace(form.FirstName),
		LastName:      strings.TrimSpace(form.LastName),
		Email:         strings.TrimSpace(form.Email),
		FundingAmount: amounts.Funding,
		TotalAmount:   amounts.Total,
		TokenAmount:   amounts.TokenAmount,
		WalletAddress: form.WalletAddress,
	}
}
