package modules

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

const DefaultRefreshSpec = "@every 5m"

// Refresher re-hydrates every live feed, returning how many were refreshed.
type Refresher interface {
	RefreshAll() int
}

type RefreshSchedulerConfig struct {
	Name string
	// Cron spec, with optional seconds field.
	Spec string
}

// RefreshScheduler periodically refreshes all live sessions. Notifications
// are best effort, the sweep bounds how long a missed one stays invisible.
type RefreshScheduler struct {
	Config RefreshSchedulerConfig

	refresher Refresher
}

func NewRefreshScheduler(config RefreshSchedulerConfig, refresher Refresher) *RefreshScheduler {
	if config.Spec == "" {
		config.Spec = DefaultRefreshSpec
	}
	return &RefreshScheduler{Config: config, refresher: refresher}
}

func (s *RefreshScheduler) RunModule(ctx context.Context) error {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := c.AddFunc(s.Config.Spec, s.sweep); err != nil {
		return errors.Wrapf(err, "invalid refresh spec %q", s.Config.Spec)
	}
	c.Start()
	Logger.Log.Infof("%s: refreshing live feeds on %q", s.Name(), s.Config.Spec)

	<-ctx.Done()
	// Wait for a running sweep.
	<-c.Stop().Done()
	return nil
}

func (s *RefreshScheduler) sweep() {
	n := s.refresher.RefreshAll()
	Logger.Log.Debugf("%s: refreshed %d feeds", s.Name(), n)
}

func (s *RefreshScheduler) Name() string {
	return s.Config.Name
}
