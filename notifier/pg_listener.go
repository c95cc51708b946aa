package notifier

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Luismorlan/familyfeed/feed"
	"github.com/Luismorlan/familyfeed/model"
	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

// DefaultPgChannel is the LISTEN/NOTIFY channel. The payload is a family id,
// an empty payload means a reaction changed.
const DefaultPgChannel = "family_feed_changed"

type PgListenerConfig struct {
	Name    string
	DSN     string
	Channel string
	// Reconnect backoff bounds of the underlying pq.Listener.
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	// Ping the connection this often to notice a dead one.
	PingInterval time.Duration
}

// PgListener relays postgres notifications into the local hub, so triggers
// or other writers of the store of record can announce changes.
type PgListener struct {
	Config PgListenerConfig

	hub *Hub
}

func NewPgListener(config PgListenerConfig, hub *Hub) *PgListener {
	if config.Channel == "" {
		config.Channel = DefaultPgChannel
	}
	if config.MinReconnectInterval <= 0 {
		config.MinReconnectInterval = 10 * time.Second
	}
	if config.MaxReconnectInterval <= 0 {
		config.MaxReconnectInterval = time.Minute
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 90 * time.Second
	}
	return &PgListener{Config: config, hub: hub}
}

// signalOf converts a notification. A nil notification is what pq delivers
// after a reconnect: anything may have been missed, so it becomes a
// broadcast.
func signalOf(n *pq.Notification) *model.Signal {
	if n == nil {
		return model.NewFamilySignal("")
	}
	return model.NewFamilySignal(n.Extra)
}

func (l *PgListener) RunModule(ctx context.Context) error {
	listener := pq.NewListener(l.Config.DSN, l.Config.MinReconnectInterval, l.Config.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				Logger.Log.Errorf("%s: listener event %d: %s", l.Name(), ev, err)
			}
		})
	defer listener.Close()

	if err := listener.Listen(l.Config.Channel); err != nil {
		return errors.Wrapf(err, "listen on %s", l.Config.Channel)
	}
	Logger.Log.Infof("%s: listening on postgres channel %s", l.Name(), l.Config.Channel)

	ticker := time.NewTicker(l.Config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			l.hub.Publish(signalOf(n))
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					Logger.Log.Warnf("%s: ping failed: %s", l.Name(), err)
				}
			}()
		}
	}
}

func (l *PgListener) Name() string {
	return l.Config.Name
}

// PgNotifier announces changes with NOTIFY, reaching every PgListener on the
// same database.
type PgNotifier struct {
	DB      *gorm.DB
	Channel string
}

var _ feed.ChangePublisher = (*PgNotifier)(nil)

func NewPgNotifier(db *gorm.DB) *PgNotifier {
	return &PgNotifier{DB: db, Channel: DefaultPgChannel}
}

func (p *PgNotifier) NotifyFamilyChanged(ctx context.Context, familyID string) error {
	err := p.DB.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", p.Channel, familyID).Error
	return errors.Wrapf(err, "notify %s", p.Channel)
}
