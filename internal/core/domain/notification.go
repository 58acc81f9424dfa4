package domain

import (
	"time"
)

// Status is the lifecycle stage a NotificationRecord reports.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// MissingTxHash is used for failure records when no transaction hash exists.
const MissingTxHash = "N/A"

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusConfirmed, StatusFailed:
		return true
	}
	return false
}

// NotificationRecord describes one transaction event sent to the notification
// endpoint. Records are values: a status change is a new record.
type NotificationRecord struct {
	Customer        CustomerData `json:"customer"`
	TransactionHash string       `json:"transaction_hash"`
	Timestamp       time.Time    `json:"timestamp"`
	Status          Status       `json:"status"`
	ErrorMessage    string       `json:"error_message,omitempty"`
}

// NewNotificationRecord builds a record for the given status.
func NewNotificationRecord(
	customer CustomerData,
	txHash string,
	status Status,
	at time.Time,
) NotificationRecord {
	return NotificationRecord{
		Customer:        customer,
		TransactionHash: txHash,
		Timestamp:       at,
		Status:          status,
	}
}

// WithStatus returns a copy of r carrying status.
func (r NotificationRecord) WithStatus(status Status) NotificationRecord {
	r.Status = status
	return r
}

// BalanceRequest asks the fulfillment side for the card balance of a wallet.
type BalanceRequest struct {
	WalletAddress string    `json:"wallet_address"`
	Email         string    `json:"email,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
