package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ChannelPrefix is prepended to the table name to form the redis channel.
const ChannelPrefix = "changes:"

// Publisher is implemented by anything that can emit change events.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// Feed publishes change events on redis and relays every instance's events
// into the local hub. Without redis it dispatches straight to the hub.
type Feed struct {
	rdb *redis.Client
	hub *Hub
}

func NewFeed(rdb *redis.Client, hub *Hub) *Feed {
	return &Feed{rdb: rdb, hub: hub}
}

func (f *Feed) Publish(ctx context.Context, ev ChangeEvent) error {
	if f.rdb == nil {
		f.hub.Dispatch(ev)
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	return f.rdb.Publish(ctx, ChannelPrefix+ev.Table, payload).Err()
}

// Run subscribes to every change channel and feeds the hub until ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	if f.rdb == nil {
		<-ctx.Done()
		return nil
	}

	ps := f.rdb.PSubscribe(ctx, ChannelPrefix+"*")
	defer ps.Close()

	// wait for the subscription to be confirmed before relaying
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe change feed: %w", err)
	}
	log.Printf("[Feed] relaying %s* to websocket hub", ChannelPrefix)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[Feed] bad payload on %s: %v", msg.Channel, err)
				continue
			}
			if ev.Table == "" {
				ev.Table = strings.TrimPrefix(msg.Channel, ChannelPrefix)
			}
			if !f.hub.Dispatch(ev) {
				return nil
			}
		}
	}
}

// Emit builds and publishes an event, logging failures. Writes never fail
// because the change feed is unavailable.
func Emit(ctx context.Context, p Publisher, table string, typ ChangeType, id string, record any, audience ...uuid.UUID) {
	if p == nil {
		return
	}
	ev, err := NewEvent(table, typ, id, record, audience...)
	if err != nil {
		log.Printf("[Feed] build %s event for %s: %v", typ, table, err)
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Printf("[Feed] publish %s event for %s: %v", typ, table, err)
	}
}
