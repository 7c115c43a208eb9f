// Package queue carries tenant change events over RabbitMQ: the console
// publishes one after every successful tenant mutation, and the consumer
// appends them to an event log.
package queue

import (
	"time"

	"github.com/iliyamo/ems-console/internal/model"
	"github.com/iliyamo/ems-console/internal/tenant"
)

// TenantChangedKey is the routing key, and the queue name, of tenant events.
const TenantChangedKey = "tenant.changed"

// TenantChangedEvent is published when a tenant was created, updated,
// deleted or deactivated through the console.  It carries enough for
// downstream consumers to log or notify without calling the EMS API.
type TenantChangedEvent struct {
	Action     string `json:"action"`
	TenantID   int64  `json:"tenant_id"`
	TenantName string `json:"tenant_name,omitempty"`
	ActorID    string `json:"actor_id"`
	ActorEmail string `json:"actor_email"`
	OccurredAt string `json:"occurred_at"`
}

// NewTenantChangedEvent builds the event for a mutation made by actor.
func NewTenantChangedEvent(actor model.Identity, m tenant.Mutation) TenantChangedEvent {
	return TenantChangedEvent{
		Action:     m.Op,
		TenantID:   m.TenantID,
		TenantName: m.Name,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		OccurredAt: m.At.UTC().Format(time.RFC3339),
	}
}
