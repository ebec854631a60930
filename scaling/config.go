package scaling

import (
	"errors"
	"time"
)

const (
	DefaultBusyLevel = 5
	DefaultBusyLimit = 5
	DefaultIdleLimit = 3
	DefaultCoolDown  = 20 * time.Second
)

const ErrNegativeThreshold = ScalingError("ErrNegativeThreshold")

type ScalingError string

func (e ScalingError) Error() string {
	return string(e)
}

type Config struct {
	// BusyLevel is the sample count from which a cycle counts as busy.
	BusyLevel int64 `yaml:"busy_level"`
	// BusyLimit is the number of consecutive busy cycles before scaling up.
	BusyLimit int64 `yaml:"busy_limit"`
	// IdleLimit is the number of consecutive idle cycles before scaling down.
	IdleLimit int64 `yaml:"idle_limit"`
	// CoolDown is the minimum time between two accepted scaling actions.
	CoolDown time.Duration `yaml:"cool_down"`
}

func DefaultConfig() Config {
	return Config{
		BusyLevel: DefaultBusyLevel,
		BusyLimit: DefaultBusyLimit,
		IdleLimit: DefaultIdleLimit,
		CoolDown:  DefaultCoolDown,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.BusyLevel < 0 {
		errs = append(errs, errors.Join(ErrNegativeThreshold, errors.New("busy_level")))
	}
	if c.BusyLimit < 0 {
		errs = append(errs, errors.Join(ErrNegativeThreshold, errors.New("busy_limit")))
	}
	if c.IdleLimit < 0 {
		errs = append(errs, errors.Join(ErrNegativeThreshold, errors.New("idle_limit")))
	}
	if c.CoolDown < 0 {
		errs = append(errs, errors.Join(ErrNegativeThreshold, errors.New("cool_down")))
	}
	return errors.Join(errs...)
}
