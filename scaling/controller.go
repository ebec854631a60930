package scaling

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Action performs (or refuses) a recommended scaling step. Returning false leaves the controller state untouched.
type Action func() bool

type Option func(*Controller)

func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) {
		ctrl.clock = c
	}
}

func WithScaleUpAction(action Action) Option {
	return func(ctrl *Controller) {
		ctrl.scaleUp = action
	}
}

func WithScaleDownAction(action Action) Option {
	return func(ctrl *Controller) {
		ctrl.scaleDown = action
	}
}

// State is a point-in-time view of the controller counters.
type State struct {
	BusyCycles    int64
	IdleCycles    int64
	LastEventTime time.Time
}

// Controller turns a noisy stream of per-cycle samples into debounced scale decisions.
// Consecutive busy (or idle) samples are counted; once a limit is reached an action is
// attempted, and accepted actions are separated by at least CoolDown.
//
// The controller only decides. Provisioning capacity or shutting a worker down is done by
// the installed actions: scale-up is accepted by default, scale-down is refused unless an
// action is installed with WithScaleDownAction.
type Controller struct {
	cfg   Config
	clock clock.Clock

	busyCycles atomic.Int64
	idleCycles atomic.Int64

	// mu serializes Observe; the cooldown check and reset must not interleave.
	mu            sync.Mutex
	lastEventTime time.Time

	scaleUp   Action
	scaleDown Action
}

func NewController(cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		clock:     clock.New(),
		scaleUp:   func() bool { return true },
		scaleDown: func() bool { return false },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) isBusy(count int64) bool {
	return count > 0 && count >= c.cfg.BusyLevel
}

// Observe records one cycle sample and returns the resulting decision.
func (c *Controller) Observe(count int64) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isBusy(count) {
		c.idleCycles.Store(0)
		if c.busyCycles.Add(1) >= c.cfg.BusyLimit {
			return c.attempt(ScaleUp, c.scaleUp)
		}
		return NoAction
	}

	c.busyCycles.Store(0)
	if c.idleCycles.Add(1) >= c.cfg.IdleLimit {
		return c.attempt(ScaleDown, c.scaleDown)
	}
	return NoAction
}

// attempt must be called with mu held.
func (c *Controller) attempt(decision Decision, action Action) Decision {
	now := c.clock.Now()
	if !c.lastEventTime.IsZero() && now.Sub(c.lastEventTime) <= c.cfg.CoolDown {
		return NoAction
	}

	if action == nil || !action() {
		return NoAction
	}

	c.busyCycles.Store(0)
	c.idleCycles.Store(0)
	c.lastEventTime = now
	return decision
}

func (c *Controller) BusyCycles() int64 {
	return c.busyCycles.Load()
}

func (c *Controller) IdleCycles() int64 {
	return c.idleCycles.Load()
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		BusyCycles:    c.busyCycles.Load(),
		IdleCycles:    c.idleCycles.Load(),
		LastEventTime: c.lastEventTime,
	}
}
