// Package payment implements the 402 payment handshake: emitting payment
// requirements, verifying either a direct on-chain stablecoin transfer or
// a signed ERC-3009-style authorization settled by an external
// facilitator, and deduplicating/locking payments against eigen creation.
package payment

import "time"

// Scheme is an admissible payment proof mechanism.
type Scheme string

const (
	SchemeDirect            Scheme = "direct"
	SchemeSignedAuthorization Scheme = "signed_authorization"
)

// State is the CAS field on a Payment record.
type State string

const (
	StatePending  State = "pending"
	StateVerified State = "verified"
	StateConsumed State = "consumed"
	StateFailed   State = "failed"
)

// Requirements is the wire body returned with a 402.
type Requirements struct {
	Scheme        Scheme    `json:"scheme"`
	Chain         int64     `json:"chain"`
	Token         string    `json:"token"`
	Amount        string    `json:"amount"` // decimal minor units
	Recipient     string    `json:"recipient"`
	ValidAfter    time.Time `json:"validAfter"`
	ValidBefore   time.Time `json:"validBefore"`
}

// Payment is the durable record of one payment proof, keyed by a content-
// addressed id so a repeated proof resolves to the same row. State is a
// CAS field: a payment is used at most once.
type Payment struct {
	ID            string
	Payer         string
	Recipient     string
	AmountMinor   string
	ChainID       int64
	Scheme        Scheme
	State         State
	LinkedEigenID string
	TxHash        string // direct scheme
	Nonce         string // signed-authorization scheme
	CreatedAt     time.Time
	VerifiedAt    time.Time
}

// Package is a priced (USD amount, ETH-volume cap, duration) tuple that,
// once paid for, funds an eigen, per the GLOSSARY's "Package" term.
type Package struct {
	ID              string
	USDAmountMinor  string // decimal stablecoin minor units, e.g. "1000000" = 1 USDC at 6 decimals
	VolumeTargetWei string // ETH-equivalent volume cap funded by this package
	DurationHours   int
}

// Packages is the static (operator-configured) catalog of purchasable
// volume packages.
var Packages = map[string]Package{
	"micro": {ID: "micro", USDAmountMinor: "1000000", VolumeTargetWei: "50000000000000000", DurationHours: 24},
	"lite":  {ID: "lite", USDAmountMinor: "5000000", VolumeTargetWei: "300000000000000000", DurationHours: 24 * 3},
	"core":  {ID: "core", USDAmountMinor: "20000000", VolumeTargetWei: "1500000000000000000", DurationHours: 24 * 7},
	"pro":   {ID: "pro", USDAmountMinor: "75000000", VolumeTargetWei: "6000000000000000000", DurationHours: 24 * 14},
}
