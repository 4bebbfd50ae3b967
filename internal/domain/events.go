package domain

import "time"

// OfferMessage is the wire payload pushed to a farmer when their turn comes.
type OfferMessage struct {
	OrderID        string    `json:"order_id"`
	FarmerID       string    `json:"farmer_id"`
	City           string    `json:"city"`
	MaterialType   string    `json:"material_type"`
	Cost           float64   `json:"cost"`
	EstimatedTime  string    `json:"estimated_time"`
	NumberOfPrints int       `json:"number_of_prints"`
	Description    string    `json:"description"`
	Instructions   string    `json:"instructions"`
	CreatorName    string    `json:"creator_name"`
	SentAt         time.Time `json:"sent_at"`
}

// OfferResponseMessage is a farmer's accept/decline decision as it arrives
// from the transport layer.
type OfferResponseMessage struct {
	OrderID  string `json:"order_id"`
	FarmerID string `json:"farmer_id"`
	Accepted bool   `json:"accepted"`
}

// SessionEventMessage is broadcast on every session state change so display
// layers can follow dispatch progress live instead of polling.
type SessionEventMessage struct {
	OrderID      string        `json:"order_id"`
	Status       SessionStatus `json:"status"`
	FarmerID     string        `json:"farmer_id,omitempty"`
	CurrentIndex int           `json:"current_index"`
	At           time.Time     `json:"at"`
}

// NewOfferMessage builds the offer payload for one (order, farmer) pairing.
func NewOfferMessage(order OrderDescriptor, farmerID string) OfferMessage {
	return OfferMessage{
		OrderID:        order.OrderID,
		FarmerID:       farmerID,
		City:           order.City,
		MaterialType:   order.MaterialType,
		Cost:           order.Cost,
		EstimatedTime:  order.EstimatedTime,
		NumberOfPrints: order.NumberOfPrints,
		Description:    order.Description,
		Instructions:   order.Instructions,
		CreatorName:    order.CreatorName,
		SentAt:         time.Now().UTC(),
	}
}
