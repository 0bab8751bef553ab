package entity

import "time"

// LogMessage is a service log record stored in the payment_log collection.
type LogMessage struct {
	Time      time.Time `json:"time" bson:"time"`
	Level     string    `json:"level" bson:"level"`
	Module    string    `json:"module" bson:"module"`
	Text      string    `json:"text" bson:"text"`
	ErrorText string    `json:"error,omitempty" bson:"error,omitempty"`
}

func (l *LogMessage) DataType() string {
	return "log"
}

// PaymentRecord is the durable trace of one capture attempt, written when the
// relay observes a terminal gateway outcome. The checkout flow itself keeps no
// durable state; these records exist for support and reconciliation.
type PaymentRecord struct {
	OrderID           string    `json:"order_id" bson:"order_id"`
	TransactionID     string    `json:"transaction_id" bson:"transaction_id"`
	AuthTransactionID string    `json:"auth_transaction_id,omitempty" bson:"auth_transaction_id,omitempty"`
	SessionID         string    `json:"session_id" bson:"session_id"`
	Amount            string    `json:"amount" bson:"amount"`
	Currency          string    `json:"currency" bson:"currency"`
	Result            string    `json:"result" bson:"result"`
	Status            string    `json:"status,omitempty" bson:"status,omitempty"`
	GatewayCode       string    `json:"gateway_code,omitempty" bson:"gateway_code,omitempty"`
	Success           bool      `json:"success" bson:"success"`
	Time              time.Time `json:"time" bson:"time"`
}
