package models

import "time"

// Product types
const (
	ProductTypePhysical = "physical-good"
	ProductTypeService  = "service"
)

// Product is a catalog item: either a physical good with countable stock
// or a trainer-provided service gated on an approved provider.
type Product struct {
	ID               int64     `db:"id" json:"id"`
	ProductType      string    `db:"product_type" json:"product_type"`
	Name             string    `db:"name" json:"name"`
	ShortDescription string    `db:"short_description" json:"short_description"`
	LongDescription  string    `db:"long_description" json:"long_description,omitempty"`
	Price            int64     `db:"price" json:"price"`
	CategoryID       int64     `db:"category_id" json:"category_id"`
	ProducerID       *int64    `db:"producer_id" json:"producer_id,omitempty"`
	StockAvailable   int       `db:"stock_available" json:"stock_available"`
	StockReserved    int       `db:"stock_reserved" json:"stock_reserved"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// IsService reports whether the product is a trainer-provided service.
func (p *Product) IsService() bool {
	return p.ProductType == ProductTypeService
}

// AvailableStock returns the sellable quantity for a physical good:
// authoritative stock minus in-flight cart holds, never negative.
// Services carry no stock constraint; callers gate them on an approved
// trainer instead.
func (p *Product) AvailableStock() int {
	if avail := p.StockAvailable - p.StockReserved; avail > 0 {
		return avail
	}
	return 0
}

// Category groups products; top-level categories have a nil parent.
type Category struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description,omitempty"`
	ParentID    *int64 `db:"parent_id" json:"parent_id,omitempty"`
}

// Producer is the manufacturer of a physical good.
type Producer struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// TrainerService links a trainer to a service product. A service is
// purchasable only while at least one approved link exists.
type TrainerService struct {
	ID          int64  `db:"id" json:"id"`
	TrainerID   int64  `db:"trainer_id" json:"trainer_id"`
	ServiceID   int64  `db:"service_id" json:"service_id"`
	Description string `db:"description" json:"description"`
	IsApproved  bool   `db:"is_approved" json:"is_approved"`
}

// Address is a shipping or billing address. UserID is nil for guest
// checkout addresses.
type Address struct {
	ID           int64     `db:"id" json:"id"`
	UserID       *int64    `db:"user_id" json:"user_id,omitempty"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Street       string    `db:"street" json:"street"`
	StreetNumber string    `db:"street_number" json:"street_number"`
	City         string    `db:"city" json:"city"`
	PostalCode   string    `db:"postal_code" json:"postal_code"`
	Country      string    `db:"country" json:"country"`
	Email        string    `db:"email" json:"email"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Order states
const (
	OrderStatePending   = "PENDING"
	OrderStateShipping  = "SHIPPING"
	OrderStateCompleted = "COMPLETED"
	OrderStateCancelled = "CANCELLED"
)

// Order is the durable record of a completed checkout. Exactly one of
// CustomerID and GuestEmail identifies the purchaser.
type Order struct {
	ID                int64     `db:"id" json:"id"`
	CustomerID        *int64    `db:"customer_id" json:"customer_id,omitempty"`
	GuestEmail        *string   `db:"guest_email" json:"guest_email,omitempty"`
	State             string    `db:"state" json:"state"`
	TotalPrice        int64     `db:"total_price" json:"total_price"`
	BillingAddressID  int64     `db:"billing_address_id" json:"billing_address_id"`
	ShippingAddressID int64     `db:"shipping_address_id" json:"shipping_address_id"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// OrderProduct is an immutable order line. PricePerItem snapshots the unit
// price at purchase time so later catalog price changes never touch history.
type OrderProduct struct {
	ID           int64  `db:"id" json:"id"`
	OrderID      int64  `db:"order_id" json:"order_id"`
	ProductID    int64  `db:"product_id" json:"product_id"`
	Quantity     int    `db:"quantity" json:"quantity"`
	PricePerItem int64  `db:"price_per_item" json:"price_per_item"`
	Note         string `db:"note" json:"note,omitempty"`
}

// ProcessedEvent records consumed event ids for worker idempotency.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
