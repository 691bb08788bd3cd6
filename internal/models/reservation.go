package models

import (
	"net/url"
	"strings"
	"time"
)

type Reservation struct {
	ID        string     `json:"id"`
	QueueNo   int        `json:"queueNo"`
	Name      string     `json:"name"`
	MobileNo  string     `json:"mobileNo"`
	Pax       int        `json:"pax"`
	Status    string     `json:"status"`
	QueueID   string     `json:"queueId"`
	StoreID   string     `json:"storeId"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	CalledAt  *time.Time `json:"calledAt"`
}

// Scope returns the numbering partition the reservation belongs to.
func (r Reservation) Scope() Scope {
	return Scope{StoreID: r.StoreID, QueueID: r.QueueID}
}

// Scope identifies a numbering partition. Table reservations are numbered per
// queue, walk-ins per store.
type Scope struct {
	StoreID string
	QueueID string
}

// StoreScope is the walk-in partition of a store.
func StoreScope(storeID string) Scope {
	return Scope{StoreID: storeID}
}

// QueueScope is a table queue partition. Queue ids are only unique within a store.
func QueueScope(storeID, queueID string) Scope {
	return Scope{StoreID: storeID, QueueID: queueID}
}

// ID is the persisted partition key, "queue:<store>/<queue>" or "store:<store>".
// Components are path-escaped so no two scopes share a key.
func (s Scope) ID() string {
	if s.QueueID != "" {
		return "queue:" + url.PathEscape(s.StoreID) + "/" + url.PathEscape(s.QueueID)
	}
	return "store:" + url.PathEscape(s.StoreID)
}

// Normalize trims both ids.
func (s Scope) Normalize() Scope {
	return Scope{StoreID: strings.TrimSpace(s.StoreID), QueueID: strings.TrimSpace(s.QueueID)}
}
