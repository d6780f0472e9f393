package model

import "time"

// TxStatus is the settlement outcome of a transaction.
type TxStatus string

const (
	StatusSuccessful TxStatus = "SUCCESSFUL"
	StatusFail       TxStatus = "FAIL"
)

// TimestampLayout is the UTC layout of TransactionRecord.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// TransactionRecord is one settled (or failed) transaction in the append-only
// transaction log. All amounts are pre-rendered strings with their unit.
type TransactionRecord struct {
	Timestamp     string   `json:"TIMESTAMP"`
	Position      string   `json:"TXN_INITIATED_FROM"`
	Status        TxStatus `json:"TXN_STATUS"`
	TokenName     string   `json:"TOKEN_NAME"`
	TokenAddress  string   `json:"TOKEN_ADDRESS"`
	Price         string   `json:"TOKEN_PRICE"`
	Slippage      string   `json:"TXN_SLIPPAGE"`
	Amount        string   `json:"PAY/RECEIVED_AMOUNT"`
	Quantity      string   `json:"TOKEN_QUANTITY"`
	Profit        string   `json:"PROFIT"`
	ProfitPercent string   `json:"PROFIT_PERCENTAGE"`
	Path          string   `json:"TXN_PATH"`
	GasCost       string   `json:"GAS_PRICE"`
	TxHash        string   `json:"TXN_HASH"`
}

// NewTransactionRecord returns a record with the neutral defaults used for
// fields a transaction kind does not fill in.
func NewTransactionRecord(at time.Time, position string, status TxStatus) TransactionRecord {
	if position == "" {
		position = "/"
	}
	return TransactionRecord{
		Timestamp:     at.UTC().Format(TimestampLayout),
		Position:      position,
		Status:        status,
		Price:         "0",
		Slippage:      "0",
		Amount:        "0",
		Quantity:      "0",
		Profit:        "0",
		ProfitPercent: "0",
		Path:          "/",
	}
}
