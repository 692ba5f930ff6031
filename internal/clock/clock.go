package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies wall-clock time to the ledger. The ledger never reads
// time.Now directly so that expiry behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by the host wall clock.
func NewSystemClock() Clock { return systemClock{} }

// Module wires the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
