package domain

import "time"

// SnapshotItem is the sanitized projection of a line item stored on behalf of an account.
type SnapshotItem struct {
	ID       string  `json:"id" bson:"id"`
	Name     string  `json:"name" bson:"name"`
	Price    float64 `json:"price" bson:"price"`
	Image    string  `json:"image" bson:"image"`
	Quantity int     `json:"quantity" bson:"quantity"`
}

type Snapshot []SnapshotItem

// RemoteCart is the per-account document kept by the remote store.
type RemoteCart struct {
	ID        string    `bson:"_id,omitempty" json:"-"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Items     Snapshot  `bson:"items" json:"cart"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (c Cart) Snapshot() Snapshot {
	snap := make(Snapshot, 0, len(c.Items))
	for _, item := range c.Items {
		snap = append(snap, SnapshotItem{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Image:    item.Image,
			Quantity: item.Quantity,
		})
	}
	return snap
}

// ItemsFromSnapshot rebuilds fixed-price line items from a remote snapshot.
// The snapshot carries no customization, so the product id is the cart key.
// Entries without a positive price are marked unpriced.
func ItemsFromSnapshot(snap Snapshot) []CartItem {
	items := make([]CartItem, 0, len(snap))
	for _, s := range snap {
		item := NewCartItem(Product{
			ID:     s.ID,
			Name:   s.Name,
			Price:  s.Price,
			Images: []string{s.Image},
		})
		item.Quantity = s.Quantity
		item.Unpriced = s.Price <= 0
		items = append(items, item)
	}
	return items
}
