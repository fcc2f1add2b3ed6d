package billing

// PaymentIntent is the result of starting a purchase.
type PaymentIntent struct {
	TransactionID string `json:"transactionId"`
	Order         *Order `json:"order"`
}

// VerifyResult describes a confirmed purchase. AlreadyProcessed is set when the
// credits had been applied before, in which case NewBalance is not reported.
type VerifyResult struct {
	TransactionID    string `json:"transactionId"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
	NewBalance       int64  `json:"newBalance"`
}
