package solana

// Transaction is a confirmed transaction as seen by tip ingestion.
type Transaction struct {
	Slot        uint64
	Signature   string
	BlockTime   int64 // Unix seconds, 0 if unknown
	Err         interface{}
	LogMessages []string
	AccountKeys []string
}

// Failed reports whether the transaction was executed with an error.
func (t *Transaction) Failed() bool {
	return t.Err != nil
}

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}
