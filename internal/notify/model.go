package notify

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeOrderUpdate   Type = "order_update"
	TypeDroneAlert    Type = "drone_alert"
	TypeSystem        Type = "system"
	TypeDeliveryEvent Type = "delivery_event"
)

type Notification struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	UserID            uuid.UUID  `db:"user_id" json:"user_id"`
	Type              Type       `db:"notification_type" json:"type"`
	Title             string     `db:"title" json:"title"`
	Message           string     `db:"message" json:"message"`
	IsRead            bool       `db:"is_read" json:"is_read"`
	RelatedObjectID   *uuid.UUID `db:"related_object_id" json:"related_object_id,omitempty"`
	RelatedObjectType string     `db:"related_object_type" json:"related_object_type,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	ReadAt            *time.Time `db:"read_at" json:"read_at,omitempty"`
}

func New(userID uuid.UUID, t Type, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      t,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

func (n *Notification) WithRelated(objectType string, objectID uuid.UUID) *Notification {
	n.RelatedObjectType = objectType
	n.RelatedObjectID = &objectID
	return n
}
