// Package types provides value types shared by the loyalty packages:
// entity timestamps, minor-unit money and overflow-checked token amounts.
package types

import "time"

// Entity carries the creation and last-modification timestamps of a
// persisted record. Timestamps come from the engine clock, not the store.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates an Entity stamped with the current UTC time.
func NewEntity() Entity {
	return NewEntityAt(time.Now())
}

// NewEntityAt creates an Entity stamped with at, normalized to UTC.
func NewEntityAt(at time.Time) Entity {
	at = at.UTC()
	return Entity{
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Touch sets UpdatedAt to at. CreatedAt never changes.
func (e *Entity) Touch(at time.Time) {
	e.UpdatedAt = at.UTC()
}
