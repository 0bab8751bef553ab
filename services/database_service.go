package services

import (
	"context"

	"tutorpay/entity"
)

type Database interface {
	WriteLogMessage(data Data) error

	SavePaymentRecord(ctx context.Context, record *entity.PaymentRecord) error
	GetPaymentRecords(ctx context.Context, orderID string) ([]entity.PaymentRecord, error)
}

type Data interface {
	DataType() string
}
