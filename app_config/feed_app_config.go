package app_config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

// FeedAppConfig is the behavior config of the api server. Connection info
// and secrets come from env, see utils/dotenv.
type FeedAppConfig struct {
	// Address the http server listens on.
	LISTEN_ADDR string `yaml:"LISTEN_ADDR"`
	// Slideshow limit of families without a settings row.
	DEFAULT_SLIDESHOW_PHOTO_LIMIT int `yaml:"DEFAULT_SLIDESHOW_PHOTO_LIMIT"`
	// IANA zone defining calendar days for posting streaks.
	TIMEZONE string `yaml:"TIMEZONE"`
	// Cron spec of the sweep refreshing every live session.
	REFRESH_SPEC string `yaml:"REFRESH_SPEC"`
	// Change notification relays. Without any of them only changes made
	// through this process are seen before the next sweep.
	ENABLE_REDIS_RELAY bool `yaml:"ENABLE_REDIS_RELAY"`
	ENABLE_PG_LISTENER bool `yaml:"ENABLE_PG_LISTENER"`
	ENABLE_SQS_SOURCE  bool `yaml:"ENABLE_SQS_SOURCE"`
	// Long polling timeout of the SQS source, at most 20.
	SQS_WAIT_SECOND int64 `yaml:"SQS_WAIT_SECOND"`
	// Sessions without a request for this long are closed.
	SESSION_IDLE_TIMEOUT_SECOND int64 `yaml:"SESSION_IDLE_TIMEOUT_SECOND"`
	// Minimum time between two capacity alerts of the same family.
	SLACK_ALERT_COOLDOWN_SECOND int64 `yaml:"SLACK_ALERT_COOLDOWN_SECOND"`
}

func DefaultFeedAppConfig() FeedAppConfig {
	return FeedAppConfig{
		LISTEN_ADDR:                   ":8080",
		DEFAULT_SLIDESHOW_PHOTO_LIMIT: 30,
		TIMEZONE:                      "UTC",
		REFRESH_SPEC:                  "@every 5m",
		SQS_WAIT_SECOND:               20,
		SESSION_IDLE_TIMEOUT_SECOND:   30 * 60,
		SLACK_ALERT_COOLDOWN_SECOND:   6 * 60 * 60,
	}
}

// LoadFeedAppConfig reads the yaml at path on top of the defaults.
func LoadFeedAppConfig(path string) (FeedAppConfig, error) {
	c := DefaultFeedAppConfig()
	yamlFile, err := ioutil.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, "read app config")
	}
	if err := yaml.Unmarshal(yamlFile, &c); err != nil {
		return c, errors.Wrap(err, "unmarshal app config")
	}
	if _, err := c.Location(); err != nil {
		return c, err
	}
	if c.SQS_WAIT_SECOND < 0 || c.SQS_WAIT_SECOND > 20 {
		return c, errors.Errorf("SQS_WAIT_SECOND should be >= 0 and <= 20, got %d", c.SQS_WAIT_SECOND)
	}
	return c, nil
}

// ParseFeedAppConfig is LoadFeedAppConfig for main, exiting on failure.
func ParseFeedAppConfig(path string) FeedAppConfig {
	c, err := LoadFeedAppConfig(path)
	if err != nil {
		Logger.Log.Fatal("fail to load app config: ", err)
	}
	return c
}

func (c FeedAppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TIMEZONE)
	return loc, errors.Wrapf(err, "invalid TIMEZONE %q", c.TIMEZONE)
}

func (c FeedAppConfig) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SESSION_IDLE_TIMEOUT_SECOND) * time.Second
}

func (c FeedAppConfig) SlackAlertCooldown() time.Duration {
	return time.Duration(c.SLACK_ALERT_COOLDOWN_SECOND) * time.Second
}
