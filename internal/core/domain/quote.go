package domain

import "time"

// Quote is the latest USD price of the payment token.
type Quote struct {
	Price     float64   `json:"price"`
	Loading   bool      `json:"loading"`
	Err       string    `json:"error,omitempty"`
	Fallback  bool      `json:"fallback"`
	UpdatedAt time.Time `json:"updated_at"`
}
