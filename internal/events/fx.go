package events

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(NewOutbox),
	fx.Invoke(runDispatcher),
)

func runDispatcher(lc fx.Lifecycle, outbox *Outbox) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go outbox.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
