package notify

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/vietddude/somicard/internal/core/domain"
)

const (
	metadataSource  = "somi_card_dapp"
	metadataVersion = "1.0.0"
	timeLayout      = "2006-01-02 15:04:05 MST"
)

// Meta carries the static values every message mentions.
type Meta struct {
	ChatID  string
	Network string
	ChainID domain.ChainID
}

// Format encodes notifications into a webhook request body.
type Format interface {
	Name() string
	EncodeTransaction(meta Meta, rec domain.NotificationRecord) ([]byte, error)
	EncodeBalance(meta Meta, req domain.BalanceRequest) ([]byte, error)
}

// FormatByName resolves a configured format name. Unknown names are an error.
func FormatByName(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "envelope":
		return EnvelopeFormat{}, nil
	case "telegram":
		return TelegramFormat{}, nil
	}
	return nil, fmt.Errorf("unknown notification format %q", name)
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// TelegramFormat sends only the sendMessage fields of the Bot API.
type TelegramFormat struct{}

func (TelegramFormat) Name() string { return "telegram" }

func (TelegramFormat) EncodeTransaction(meta Meta, rec domain.NotificationRecord) ([]byte, error) {
	return json.Marshal(telegramMessage{
		ChatID:    meta.ChatID,
		Text:      TransactionText(meta, rec),
		ParseMode: "HTML",
	})
}

func (TelegramFormat) EncodeBalance(meta Meta, req domain.BalanceRequest) ([]byte, error) {
	return json.Marshal(telegramMessage{
		ChatID:    meta.ChatID,
		Text:      BalanceText(meta, req),
		ParseMode: "HTML",
	})
}

type envelopeCustomer struct {
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Email         string `json:"email,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

type envelopeTransaction struct {
	FundingAmountUSD json.Number `json:"funding_amount_usd"`
	InsuranceFeeUSD  json.Number `json:"insurance_fee_usd"`
	TotalAmountUSD   json.Number `json:"total_amount_usd"`
	SomiAmount       string      `json:"somi_amount"`
	TransactionHash  string      `json:"transaction_hash"`
	WalletAddress    string      `json:"wallet_address"`
	Network          string      `json:"network"`
	ChainID          int64       `json:"chain_id"`
	Timestamp        string      `json:"timestamp"`
	ErrorMessage     string      `json:"error_message,omitempty"`
}

type envelopeMetadata struct {
	Source    string `json:"source"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp,omitempty"`
}

type envelope struct {
	ChatID      string               `json:"chat_id"`
	Text        string               `json:"text"`
	ParseMode   string               `json:"parse_mode"`
	EventType   string               `json:"event_type"`
	Status      domain.Status        `json:"status,omitempty"`
	Customer    envelopeCustomer     `json:"customer"`
	Transaction *envelopeTransaction `json:"transaction,omitempty"`
	Metadata    envelopeMetadata     `json:"metadata"`
}

// EnvelopeFormat sends the Telegram fields plus a structured copy of the
// record, so a backend can consume the same request a chat would display.
type EnvelopeFormat struct{}

func (EnvelopeFormat) Name() string { return "envelope" }

func (EnvelopeFormat) EncodeTransaction(meta Meta, rec domain.NotificationRecord) ([]byte, error) {
	c := rec.Customer
	return json.Marshal(envelope{
		ChatID:    meta.ChatID,
		Text:      TransactionText(meta, rec),
		ParseMode: "HTML",
		EventType: "card_transaction",
		Status:    rec.Status,
		Customer: envelopeCustomer{
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Email:     c.Email,
		},
		Transaction: &envelopeTransaction{
			FundingAmountUSD: json.Number(c.FundingAmount.String()),
			InsuranceFeeUSD:  json.Number(c.Fee().String()),
			TotalAmountUSD:   json.Number(c.TotalAmount.String()),
			SomiAmount:       c.TokenAmount,
			TransactionHash:  rec.TransactionHash,
			WalletAddress:    c.WalletAddress,
			Network:          meta.Network,
			ChainID:          int64(meta.ChainID),
			Timestamp:        rec.Timestamp.UTC().Format(time.RFC3339),
			ErrorMessage:     rec.ErrorMessage,
		},
		Metadata: envelopeMetadata{Source: metadataSource, Version: metadataVersion},
	})
}

func (EnvelopeFormat) EncodeBalance(meta Meta, req domain.BalanceRequest) ([]byte, error) {
	return json.Marshal(envelope{
		ChatID:    meta.ChatID,
		Text:      BalanceText(meta, req),
		ParseMode: "HTML",
		EventType: "balance_request",
		Customer: envelopeCustomer{
			Email:         req.Email,
			WalletAddress: req.WalletAddress,
		},
		Metadata: envelopeMetadata{
			Source:    metadataSource,
			Version:   metadataVersion,
			Timestamp: req.Timestamp.UTC().Format(time.RFC3339),
		},
	})
}

var statusEmoji = map[domain.Status]string{
	domain.StatusInitiated: "⏳",
	domain.StatusConfirmed: "✅",
	domain.StatusFailed:    "❌",
}

// TransactionText renders the HTML chat message for a transaction record.
// The fee is its own line item.
func TransactionText(meta Meta, rec domain.NotificationRecord) string {
	emoji, ok := statusEmoji[rec.Status]
	if !ok {
		emoji = "📋"
	}
	c := rec.Customer
	esc := html.EscapeString

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>SOMI Card Transaction</b>\n\n", emoji)
	fmt.Fprintf(&sb, "👤 <b>Customer:</b> %s\n", esc(c.FullName()))
	fmt.Fprintf(&sb, "📧 <b>Email:</b> %s\n", esc(c.Email))
	fmt.Fprintf(&sb, "💰 <b>Funding:</b> $%s\n", c.FundingAmount.String())
	fmt.Fprintf(&sb, "🛡 <b>Insurance fee:</b> $%s\n", c.Fee().String())
	fmt.Fprintf(&sb, "💵 <b>Total:</b> $%s\n", c.TotalAmount.String())
	fmt.Fprintf(&sb, "🪙 <b>%s:</b> %s\n", domain.TokenSymbol, esc(c.TokenAmount))
	fmt.Fprintf(&sb, "🔗 <b>TX:</b> <code>%s</code>\n", esc(rec.TransactionHash))
	fmt.Fprintf(&sb, "👛 <b>Wallet:</b> <code>%s</code>\n", esc(c.WalletAddress))
	fmt.Fprintf(&sb, "🌐 <b>Network:</b> %s (Chain ID: %d)\n", esc(meta.Network), meta.ChainID)
	fmt.Fprintf(&sb, "⏰ <b>Time:</b> %s\n", rec.Timestamp.UTC().Format(timeLayout))
	if rec.ErrorMessage != "" {
		fmt.Fprintf(&sb, "⚠️ <b>Error:</b> %s\n", esc(rec.ErrorMessage))
	}
	fmt.Fprintf(&sb, "📊 <b>Status:</b> %s", strings.ToUpper(string(rec.Status)))
	return sb.String()
}

// BalanceText renders the HTML chat message for a balance request.
func BalanceText(meta Meta, req domain.BalanceRequest) string {
	email := req.Email
	if email == "" {
		email = "Not provided"
	}

	var sb strings.Builder
	sb.WriteString("🔍 <b>Balance Request</b>\n\n")
	fmt.Fprintf(&sb, "👛 <b>Wallet:</b> <code>%s</code>\n", html.EscapeString(req.WalletAddress))
	fmt.Fprintf(&sb, "📧 <b>Email:</b> %s\n", html.EscapeString(email))
	fmt.Fprintf(&sb, "⏰ <b>Time:</b> %s\n", req.Timestamp.UTC().Format(timeLayout))
	fmt.Fprintf(&sb, "🌐 <b>Network:</b> %s (Chain ID: %d)", html.EscapeString(meta.Network), meta.ChainID)
	return sb.String()
}
