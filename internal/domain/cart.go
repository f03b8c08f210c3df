package domain

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	PlaceholderName  = "Untitled piece"
	PlaceholderImage = "/images/placeholder.png"
)

type PriceType string

const (
	PriceFixed  PriceType = "fixed"
	PriceWeight PriceType = "weight"
)

// Normalize maps unknown or empty price types to fixed.
func (p PriceType) Normalize() PriceType {
	if p == PriceWeight {
		return PriceWeight
	}
	return PriceFixed
}

type Customization struct {
	Engraving    string `json:"engraving,omitempty"`
	Size         string `json:"size,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

func (c *Customization) IsZero() bool {
	return c == nil || (c.Engraving == "" && c.Size == "" && c.Instructions == "")
}

type Product struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Price         float64        `json:"price"`
	PriceType     PriceType      `json:"priceType"`
	Weight        float64        `json:"weight"`
	Material      string         `json:"material"`
	Images        []string       `json:"images"`
	Customization *Customization `json:"customization,omitempty"`
}

type CartItem struct {
	Key           string         `json:"key"`
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Price         float64        `json:"price"`
	PriceType     PriceType      `json:"priceType"`
	Weight        float64        `json:"weight,omitempty"`
	Material      string         `json:"material,omitempty"`
	Image         string         `json:"image"`
	Quantity      int            `json:"quantity"`
	Customization *Customization `json:"customization,omitempty"`
	// Unpriced marks a line restored without any known price. Totals report it
	// as price pending.
	Unpriced bool `json:"unpriced,omitempty"`
}

type Cart struct {
	Items     []CartItem `json:"items"`
	PromoCode string     `json:"promoCode"`
	Discount  float64    `json:"discount"`
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount sums quantities over all lines.
func (c Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// FixedTotal sums price*quantity over fixed-price lines. Weight-priced lines need
// current rates and are left to the pricing calculator.
func (c Cart) FixedTotal() float64 {
	var total float64
	for _, item := range c.Items {
		if item.PriceType.Normalize() == PriceFixed {
			total += item.Price * float64(item.Quantity)
		}
	}
	return total
}

// CartKey identifies a line item. Two additions of the same product with different
// customization end up on different lines.
func CartKey(productID string, c *Customization) string {
	if c.IsZero() {
		return productID
	}
	normalized := strings.Join([]string{
		strings.TrimSpace(c.Engraving),
		strings.ToLower(strings.TrimSpace(c.Size)),
		strings.TrimSpace(c.Instructions),
	}, "\x1f")
	return productID + "#" + strconv.FormatUint(xxhash.Sum64String(normalized), 16)
}

// NewCartItem normalizes a product into a line item with quantity 1.
func NewCartItem(p Product) CartItem {
	item := CartItem{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		PriceType: p.PriceType.Normalize(),
		Weight:    p.Weight,
		Material:  strings.ToLower(strings.TrimSpace(p.Material)),
		Image:     PlaceholderImage,
		Quantity:  1,
	}
	if strings.TrimSpace(item.Name) == "" {
		item.Name = PlaceholderName
	}
	if len(p.Images) > 0 && p.Images[0] != "" {
		item.Image = p.Images[0]
	}
	if !p.Customization.IsZero() {
		c := *p.Customization
		item.Customization = &c
	}
	item.Key = CartKey(p.ID, item.Customization)
	return item
}
