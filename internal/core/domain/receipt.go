package domain

// Receipt confirms that a transaction settled on chain.
type Receipt struct {
	TransactionHash string `json:"transaction_hash"`
	BlockNumber     uint64 `json:"block_number"`
	BlockHash       string `json:"block_hash"`
	Status          uint64 `json:"status"` // 1 success, 0 reverted
	GasUsed         uint64 `json:"gas_used"`
}

// Succeeded reports whether the receipt carries a success status.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// ReceiptState is one emission of the chain client for a watched hash.
type ReceiptState struct {
	Receipt      *Receipt
	IsConfirming bool
	IsSuccess    bool
	IsError      bool
	Err          error
}

// Terminal reports whether no further state change follows.
func (s ReceiptState) Terminal() bool {
	return s.IsSuccess || s.IsError
}
