package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Event is a transactional outbox row. Rows are written in the same database
// transaction as the state they describe; a downstream relay publishes them
// and stamps published_at.
type Event struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	TenantID      snowflake.ID `gorm:"not null;index"`
	EventType     string       `gorm:"not null"`
	AggregateType string       `gorm:"not null"`
	AggregateID   string       `gorm:"not null"`
	Payload       []byte       `gorm:"type:jsonb;not null"`
	PublishedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Event) TableName() string { return "outbox_events" }

type Outbox struct {
	genID *snowflake.Node
}

func NewOutbox(genID *snowflake.Node) *Outbox {
	return &Outbox{genID: genID}
}

// Enqueue appends an event inside the caller's transaction.
func (o *Outbox) Enqueue(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, eventType, aggregateType, aggregateID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (
			id, tenant_id, event_type, aggregate_type, aggregate_id, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.genID.Generate(),
		tenantID,
		eventType,
		aggregateType,
		aggregateID,
		body,
		time.Now().UTC(),
	).Error
}

var Module = fx.Module("events",
	fx.Provide(NewOutbox),
)
