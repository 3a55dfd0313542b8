package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/store"
)

// Sender delivers a payload to a single connection. Implemented by the
// transport layer; a returned error means the connection is gone or
// unreachable.
type Sender interface {
	Send(ctx context.Context, connectionID string, payload []byte) error
}

// DeliveryStatus is the per-member outcome of one broadcast.
type DeliveryStatus string

const (
	// StatusDelivered means the send was accepted by the transport.
	StatusDelivered DeliveryStatus = "delivered"
	// StatusFailedPruned means the send failed and the member was removed
	// from the registry.
	StatusFailedPruned DeliveryStatus = "failed-pruned"
)

// Delivery records the outcome of a single member send.
type Delivery struct {
	ConnectionID string
	Status       DeliveryStatus
	Err          error
}

// Report aggregates the outcome of a broadcast. The broadcast itself succeeds
// once every send was attempted, regardless of individual failures.
type Report struct {
	RoomID     string
	Deliveries []Delivery
}

// Delivered counts members that received the message.
func (r *Report) Delivered() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Status == StatusDelivered {
			n++
		}
	}
	return n
}

// Pruned counts members removed from the registry during this broadcast.
func (r *Report) Pruned() int {
	return len(r.Deliveries) - r.Delivered()
}

// Dispatcher fans a persisted message out to every member of its room.
type Dispatcher struct {
	registry store.ConnectionStore
	sender   Sender
	log      *zerolog.Logger
}

// NewDispatcher builds a dispatcher over the given presence registry and
// transport sender.
func NewDispatcher(registry store.ConnectionStore, sender Sender, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, sender: sender, log: logger}
}

// Broadcast sends msg to every current member of its room, concurrently and
// independently. A failed member send prunes that member from the registry
// and is recorded in the report; it never fails the broadcast or gates
// delivery to live peers. There is no retry within a broadcast.
func (d *Dispatcher) Broadcast(ctx context.Context, msg Message) (*Report, error) {
	members, err := d.registry.ListMembers(ctx, msg.RoomID)
	if err != nil {
		return nil, chatError(ErrCodeStoreUnavailable, "list room members: "+err.Error())
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, chatError(ErrCodeBadRequest, "encode message: "+err.Error())
	}

	report := &Report{
		RoomID:     msg.RoomID,
		Deliveries: make([]Delivery, len(members)),
	}

	var wg sync.WaitGroup
	for i, connID := range members {
		wg.Add(1)
		go func(i int, connID string) {
			defer wg.Done()
			report.Deliveries[i] = d.sendOne(ctx, connID, payload)
		}(i, connID)
	}
	wg.Wait()

	d.log.Debug().
		Str("room", msg.RoomID).
		Int("delivered", report.Delivered()).
		Int("pruned", report.Pruned()).
		Msg("broadcast complete")

	return report, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, connID string, payload []byte) Delivery {
	if err := d.sender.Send(ctx, connID, payload); err != nil {
		d.log.Warn().Err(err).Str("conn_id", connID).Msg("send failed, pruning connection")
		if rmErr := d.registry.RemoveConnection(ctx, connID); rmErr != nil {
			d.log.Warn().Err(rmErr).Str("conn_id", connID).Msg("failed to prune connection")
		}
		return Delivery{ConnectionID: connID, Status: StatusFailedPruned, Err: err}
	}
	return Delivery{ConnectionID: connID, Status: StatusDelivered}
}
