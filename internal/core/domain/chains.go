package domain

// ChainID is the numeric EIP-155 chain identifier.
type ChainID int64

const (
	// ChainIDSomnia is the Somnia mainnet.
	ChainIDSomnia ChainID = 5031

	ChainNameSomnia = "Somnia"

	// TokenSymbol is the native token the card is paid with.
	TokenSymbol = "SOMI"
)

// ChainNames maps known chain ids to display names.
var ChainNames = map[ChainID]string{
	ChainIDSomnia: ChainNameSomnia,
}

// Name returns the display name of the chain, or "" if unknown.
func (c ChainID) Name() string {
	return ChainNames[c]
}
