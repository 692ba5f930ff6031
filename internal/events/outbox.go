package events

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/perkforge/couponvault/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event is a notification to publish through the outbox.
type Event struct {
	Type      EventType
	Payload   map[string]any
	DedupeKey string
}

// Sink receives dispatched events. A failing sink is retried and eventually
// dropped; it can never affect committed ledger state.
type Sink func(ctx context.Context, event CouponEvent) error

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Holder *config.DispatchConfigHolder `optional:"true"`
}

type Outbox struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	holder *config.DispatchConfigHolder

	mu    sync.RWMutex
	sinks []Sink
}

func NewOutbox(p Params) *Outbox {
	return &Outbox{
		db:     p.DB,
		log:    p.Log.Named("events.outbox"),
		genID:  p.GenID,
		holder: p.Holder,
	}
}

// Subscribe registers a sink for dispatched events.
func (o *Outbox) Subscribe(sink Sink) {
	if sink == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinks = append(o.sinks, sink)
}

// PublishTx writes the event row inside the caller's transaction. The dedupe
// key makes the write idempotent: replaying the same logical transition does
// not produce a second row.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errors.New("outbox publish requires a transaction")
	}
	eventType := strings.TrimSpace(string(event.Type))
	if eventType == "" {
		return errors.New("outbox event type is required")
	}

	payload := datatypes.JSONMap{}
	for k, v := range event.Payload {
		payload[k] = v
	}

	var dedupeKey *string
	if key := strings.TrimSpace(event.DedupeKey); key != "" {
		dedupeKey = &key
	}

	return tx.WithContext(ctx).Exec(
		`INSERT INTO coupon_events (id, event_type, payload, dedupe_key, published, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		o.genID.Generate(),
		eventType,
		payload,
		dedupeKey,
		false,
		0,
		time.Now().UTC(),
	).Error
}

// Run drains unpublished events until the context is cancelled.
func (o *Outbox) Run(ctx context.Context) {
	for {
		cfg := o.dispatchConfig()

		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.PollInterval):
		}

		if _, err := o.DispatchOnce(ctx); err != nil {
			o.log.Warn("outbox dispatch failed", zap.Error(err))
		}
	}
}

// DispatchOnce delivers one batch of unpublished events to every sink.
// It returns the number of events marked published.
func (o *Outbox) DispatchOnce(ctx context.Context) (int, error) {
	cfg := o.dispatchConfig()

	var pending []CouponEvent
	err := o.db.WithContext(ctx).
		Where("published = ?", false).
		Order("id").
		Limit(cfg.BatchSize).
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range pending {
		if err := o.deliver(ctx, event); err != nil {
			attempts := event.Attempts + 1
			if attempts >= cfg.MaxAttempts {
				o.log.Warn("dropping event after repeated delivery failures",
					zap.String("event_type", event.EventType),
					zap.Int("attempts", attempts),
					zap.Error(err),
				)
				if err := o.markPublished(ctx, event.ID, attempts); err != nil {
					return published, err
				}
				continue
			}
			if err := o.db.WithContext(ctx).Exec(
				`UPDATE coupon_events SET attempts = ? WHERE id = ?`,
				attempts,
				event.ID,
			).Error; err != nil {
				return published, err
			}
			continue
		}

		if err := o.markPublished(ctx, event.ID, event.Attempts); err != nil {
			return published, err
		}
		published++
	}

	return published, nil
}

func (o *Outbox) deliver(ctx context.Context, event CouponEvent) error {
	o.mu.RLock()
	sinks := make([]Sink, len(o.sinks))
	copy(sinks, o.sinks)
	o.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (o *Outbox) markPublished(ctx context.Context, id snowflake.ID, attempts int) error {
	now := time.Now().UTC()
	return o.db.WithContext(ctx).Exec(
		`UPDATE coupon_events SET published = ?, attempts = ?, published_at = ? WHERE id = ?`,
		true,
		attempts,
		now,
		id,
	).Error
}

func (o *Outbox) dispatchConfig() config.DispatchConfig {
	if o.holder == nil {
		return config.DefaultDispatchConfig()
	}
	return o.holder.Current()
}
