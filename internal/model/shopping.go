package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListColor string

const (
	ListColorDefault ListColor = "default"
	ListColorRed     ListColor = "red"
	ListColorOrange  ListColor = "orange"
	ListColorYellow  ListColor = "yellow"
	ListColorGreen   ListColor = "green"
	ListColorBlue    ListColor = "blue"
	ListColorPurple  ListColor = "purple"
	ListColorGray    ListColor = "gray"
)

// ParseListColor returns the color for s, falling back to ListColorDefault.
func ParseListColor(s string) ListColor {
	switch c := ListColor(s); c {
	case ListColorRed, ListColorOrange, ListColorYellow, ListColorGreen,
		ListColorBlue, ListColorPurple, ListColorGray:
		return c
	default:
		return ListColorDefault
	}
}

type ShoppingList struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Note      *string   `json:"note,omitempty"`
	SortOrder int       `json:"sort_order"`
	Color     ListColor `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ItemStatus string

const (
	ItemStatusInactive  ItemStatus = "inactive"
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusPurchased ItemStatus = "purchased"
)

// Valid reports whether s is one of the known statuses.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusInactive, ItemStatusPending, ItemStatusPurchased:
		return true
	}
	return false
}

// Rank is the section order of a status when items are listed:
// pending first, then purchased, then inactive.
func (s ItemStatus) Rank() int {
	switch s {
	case ItemStatusPending:
		return 0
	case ItemStatusPurchased:
		return 1
	default:
		return 2
	}
}

type ShoppingItem struct {
	ID        string           `json:"id"`
	ListID    *string          `json:"list_id"`
	Name      string           `json:"name"`
	Note      string           `json:"note"`
	Status    ItemStatus       `json:"status"`
	Quantity  *decimal.Decimal `json:"quantity,omitempty"`
	Unit      *ItemUnit        `json:"unit,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	SortOrder int              `json:"sort_order"`
	ImageIDs  []string         `json:"image_ids"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	DeletedAt *time.Time       `json:"deleted_at,omitempty"`
}

// TotalPrice returns quantity times unit price, or nil unless both are set.
func (i *ShoppingItem) TotalPrice() *decimal.Decimal {
	if i.Quantity == nil || i.UnitPrice == nil {
		return nil
	}
	total := i.Quantity.Mul(*i.UnitPrice)
	return &total
}

// Deleted reports whether the item sits in the trash.
func (i *ShoppingItem) Deleted() bool {
	return i.ListID == nil
}
