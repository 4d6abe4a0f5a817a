package payloads

import "github.com/google/uuid"

// GiftPurchasedEvent follows a confirmed payment; the buyer gets a receipt message.
type GiftPurchasedEvent struct {
	InvoiceID       string    `json:"invoice_id"`
	PurchasedGiftID uuid.UUID `json:"purchased_gift_id"`
	GiftID          uuid.UUID `json:"gift_id"`
	GiftName        string    `json:"gift_name"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	BuyerTelegramID int64     `json:"buyer_telegram_id"`
}

// GiftReceivedEvent follows a claimed transfer; the original buyer is told
// who received the gift and leaderboard ranks are recomputed.
type GiftReceivedEvent struct {
	TransferID          uuid.UUID `json:"transfer_id"`
	PurchasedGiftID     uuid.UUID `json:"purchased_gift_id"`
	GiftName            string    `json:"gift_name"`
	SenderID            uuid.UUID `json:"sender_id"`
	BuyerTelegramID     int64     `json:"buyer_telegram_id"`
	ReceiverID          uuid.UUID `json:"receiver_id"`
	ReceiverDisplayName string    `json:"receiver_display_name"`
}
