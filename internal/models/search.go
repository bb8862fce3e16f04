package models

import (
	"fmt"
	"strings"
)

// ResultKind tags the variant of a SearchResult.
type ResultKind int

const (
	KindPerson ResultKind = iota + 1
	KindTable
	KindOrder
	KindAccessMedium
)

// String returns the wire name of the kind.
func (k ResultKind) String() string {
	switch k {
	case KindPerson:
		return "person"
	case KindTable:
		return "table"
	case KindOrder:
		return "order"
	case KindAccessMedium:
		return "access-medium"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// ParseResultKind converts a wire name into a ResultKind.
func ParseResultKind(raw string) (ResultKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "person":
		return KindPerson, nil
	case "table":
		return KindTable, nil
	case "order":
		return KindOrder, nil
	case "access-medium":
		return KindAccessMedium, nil
	default:
		return 0, fmt.Errorf("unknown result kind %q", raw)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ResultKind) MarshalText() ([]byte, error) {
	if k < KindPerson || k > KindAccessMedium {
		return nil, fmt.Errorf("invalid result kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ResultKind) UnmarshalText(text []byte) error {
	parsed, err := ParseResultKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SearchResult is one hit of a free-text search. Exactly one of the payload
// pointers matches Kind; the others are nil.
type SearchResult struct {
	Kind     ResultKind `json:"kind"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Subtitle string     `json:"subtitle,omitempty"`
	Status   string     `json:"status,omitempty"`

	Person       *PersonHit       `json:"person,omitempty"`
	Table        *TableHit        `json:"table,omitempty"`
	Order        *OrderHit        `json:"order,omitempty"`
	AccessMedium *AccessMediumHit `json:"accessMedium,omitempty"`
}

// PersonHit carries the person-specific fields of a result.
type PersonHit struct {
	OpenOrders int `json:"openOrders"`
}

// TableHit carries the table-specific fields of a result.
type TableHit struct {
	TableID       string `json:"tableId"`
	ActiveOrderID string `json:"activeOrderId,omitempty"`
}

// OrderHit carries the order-specific fields of a result.
type OrderHit struct {
	Total float64 `json:"total"`
}

// AccessMediumHit carries the fields of a wristband/card result.
type AccessMediumHit struct {
	Balance float64 `json:"balance"`
}

// Validate checks that the payload matches the declared kind.
func (r *SearchResult) Validate() error {
	var ok bool
	switch r.Kind {
	case KindPerson:
		ok = r.Person != nil
	case KindTable:
		ok = r.Table != nil
	case KindOrder:
		ok = r.Order != nil
	case KindAccessMedium:
		ok = r.AccessMedium != nil
	default:
		return fmt.Errorf("search result %q: invalid kind %d", r.ID, int(r.Kind))
	}
	if !ok {
		return fmt.Errorf("search result %q: missing %s payload", r.ID, r.Kind)
	}
	return nil
}

// TableID returns the table a table-kind result points at, or "".
func (r *SearchResult) TableID() string {
	if r.Kind != KindTable || r.Table == nil {
		return ""
	}
	return r.Table.TableID
}
