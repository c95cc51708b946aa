package modules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/slack-go/slack"

	"github.com/Luismorlan/familyfeed/engine"
	"github.com/Luismorlan/familyfeed/feed"
	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

const (
	DDOG_HYDRATION_COUNTER        = "familyfeed.hydration.count"
	DDOG_EVICTION_COUNTER         = "familyfeed.eviction.count"
	DDOG_EVICTION_FAILURE_COUNTER = "familyfeed.eviction.failure.count"
	DDOG_OVER_CAPACITY_COUNTER    = "familyfeed.over_capacity.count"
	DDOG_FEED_SIZE_GAUGE          = "familyfeed.feed.size"
)

const (
	// Capacity alerts waiting for the webhook. Extra ones are dropped.
	alertQueueSize = 16
	alertTimeout   = 10 * time.Second
)

// StatsdClient is the part of *statsd.Client the reporter uses.
type StatsdClient interface {
	Incr(name string, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
}

var _ StatsdClient = (*statsd.Client)(nil)

type ReporterConfig struct {
	Name string
	// Incoming webhook for capacity alerts, empty disables them.
	SlackWebhookUrl string
	// A family is alerted on at most once per cooldown.
	AlertCooldown time.Duration
}

// Reporter listens to hydration reports on the event bus and forwards them to
// Datadog. When favorites alone exceed a family's limit nothing can be
// evicted, an operator is told on Slack.
type Reporter struct {
	Config ReporterConfig

	Statsd StatsdClient

	EventBus *gochannel.GoChannel

	alerts chan feed.HydrationReport

	mu          sync.Mutex
	lastAlerted map[string]time.Time
	now         func() time.Time
}

func NewReporter(config ReporterConfig, statsd StatsdClient, e *gochannel.GoChannel) *Reporter {
	if config.AlertCooldown <= 0 {
		config.AlertCooldown = 6 * time.Hour
	}
	return &Reporter{
		Config:      config,
		Statsd:      statsd,
		EventBus:    e,
		alerts:      make(chan feed.HydrationReport, alertQueueSize),
		lastAlerted: make(map[string]time.Time),
		now:         time.Now,
	}
}

// ReportHydrationMetrics sends one report to Datadog.
func ReportHydrationMetrics(report feed.HydrationReport, statsd StatsdClient) {
	tags := []string{"family:" + report.FamilyID, fmt.Sprintf("failed:%t", report.Failed), fmt.Sprintf("stale:%t", report.Stale)}
	errs := []error{
		statsd.Incr(DDOG_HYDRATION_COUNTER, tags, 1),
		statsd.Count(DDOG_EVICTION_COUNTER, int64(report.Evicted), tags, 1),
		statsd.Count(DDOG_EVICTION_FAILURE_COUNTER, int64(report.EvictionFailures), tags, 1),
	}
	if !report.Failed && !report.Stale {
		errs = append(errs, statsd.Gauge(DDOG_FEED_SIZE_GAUGE, float64(report.Retained), tags, 1))
	}
	if report.OverCapacity {
		errs = append(errs, statsd.Incr(DDOG_OVER_CAPACITY_COUNTER, tags, 1))
	}
	for _, err := range errs {
		if err != nil {
			Logger.Log.Infoln("cannot report hydration metrics: ", err)
			return
		}
	}
}

func (r *Reporter) shouldAlert(familyID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if last, ok := r.lastAlerted[familyID]; ok && now.Sub(last) < r.Config.AlertCooldown {
		return false
	}
	r.lastAlerted[familyID] = now
	return true
}

// queueAlert hands an over-capacity report to the alert sender without
// waiting, slow webhooks never hold up metrics.
func (r *Reporter) queueAlert(report feed.HydrationReport) {
	if r.Config.SlackWebhookUrl == "" || !r.shouldAlert(report.FamilyID) {
		return
	}
	select {
	case r.alerts <- report:
	default:
		Logger.Log.Warnf("%s: alert queue is full, drop capacity alert for family %s", r.Name(), report.FamilyID)
	}
}

func (r *Reporter) sendAlerts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case report := <-r.alerts:
			r.alertOverCapacity(ctx, report)
		}
	}
}

func (r *Reporter) alertOverCapacity(ctx context.Context, report feed.HydrationReport) {
	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()

	text := fmt.Sprintf(":warning: family `%s` has more favorites than its slideshow limit of %d, %d posts are kept",
		report.FamilyID, report.Limit, report.Retained)
	msg := &slack.WebhookMessage{
		Text: text,
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", text, false, false), nil, nil),
			slack.NewContextBlock("",
				slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("retained *%d* · limit *%d*", report.Retained, report.Limit), false, false)),
		}},
	}
	if err := slack.PostWebhookContext(ctx, r.Config.SlackWebhookUrl, msg); err != nil {
		Logger.Log.Errorf("fail to send capacity alert for family %s: %s", report.FamilyID, err)
	}
}

func (r *Reporter) ProcessHydrationReports(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages, err := r.EventBus.Subscribe(ctx, engine.TopicHydrationReport)
	if err != nil {
		return err
	}
	go r.sendAlerts(ctx)

	for msg := range messages {
		msg.Ack()

		report, err := DecodeHydrationReport(msg.Payload)
		if err != nil {
			Logger.Log.Errorf("%s: %s", r.Name(), err)
			continue
		}

		if r.Statsd != nil {
			ReportHydrationMetrics(report, r.Statsd)
		}
		if report.OverCapacity {
			r.queueAlert(report)
		}
	}

	return nil
}

func (r *Reporter) RunModule(ctx context.Context) error {
	return r.ProcessHydrationReports(ctx)
}

func (r *Reporter) Name() string {
	return r.Config.Name
}
