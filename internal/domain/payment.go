package domain

import "time"

type Channel string

const (
	ChannelMobileMoney Channel = "mobile_money"
	ChannelBank        Channel = "bank"
	ChannelCard        Channel = "card"
	ChannelCash        Channel = "cash"
)

// Payment is money received from a customer. Amount is in minor units of
// Currency. Reference and CustomerID are not always known at ingestion.
type Payment struct {
	ID         string    `json:"id" validate:"required"`
	TenantID   string    `json:"tenant_id" validate:"required"`
	Amount     int64     `json:"amount" validate:"gte=0"`
	Currency   string    `json:"currency" validate:"required,len=3"`
	Reference  string    `json:"reference,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Channel    Channel   `json:"channel,omitempty" validate:"omitempty,oneof=mobile_money bank card cash"`
}
