package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/Luismorlan/familyfeed/app_config"
	"github.com/Luismorlan/familyfeed/backend"
	"github.com/Luismorlan/familyfeed/engine"
	"github.com/Luismorlan/familyfeed/engine/modules"
	"github.com/Luismorlan/familyfeed/feed"
	"github.com/Luismorlan/familyfeed/notifier"
	"github.com/Luismorlan/familyfeed/server"
	"github.com/Luismorlan/familyfeed/server/middlewares"
	"github.com/Luismorlan/familyfeed/utils"
	"github.com/Luismorlan/familyfeed/utils/dotenv"
	. "github.com/Luismorlan/familyfeed/utils/flag"
	. "github.com/Luismorlan/familyfeed/utils/log"
)

var AppConfigPath = flag.String("app_config_path", "cmd/server/config.yaml", "path to the yaml app config")

func NewDogStatsdClient() *statsd.Client {
	addr := os.Getenv("DD_AGENT_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8125"
	}
	statsd, err := statsd.New(addr)
	if err != nil {
		panic(err)
	}
	return statsd
}

// relayModules wires the enabled notification relays into hub and returns
// them with the publisher gateways should announce changes with.
func relayModules(ctx context.Context, cfg app_config.FeedAppConfig, hub *notifier.Hub) ([]engine.Module, feed.ChangePublisher) {
	var (
		ms        []engine.Module
		publisher feed.ChangePublisher = hub
	)

	if cfg.ENABLE_REDIS_RELAY {
		client, err := utils.GetRedisClient(ctx)
		if err != nil {
			Log.Fatal("fail to connect to redis: ", err)
		}
		relay := notifier.NewRedisRelay(notifier.RedisRelayConfig{Name: "redis_relay"}, client, hub)
		// Going through redis reaches this process too.
		publisher = relay
		ms = append(ms, relay)
	}

	if cfg.ENABLE_PG_LISTENER {
		ms = append(ms, notifier.NewPgListener(notifier.PgListenerConfig{
			Name: "pg_listener",
			DSN:  utils.EnvDSN(),
		}, hub))
	}

	if cfg.ENABLE_SQS_SOURCE {
		reader, err := notifier.NewSQSMessageQueueReader(os.Getenv("SQS_QUEUE_NAME"), cfg.SQS_WAIT_SECOND)
		if err != nil {
			Log.Fatal("fail to initialize SQS reader: ", err)
		}
		ms = append(ms, notifier.NewSQSSource(notifier.SQSSourceConfig{Name: "sqs_source"}, reader, hub))
	}

	return ms, publisher
}

func authMiddleware(ctx context.Context) gin.HandlerFunc {
	if ByPassAuth {
		Log.Warn("auth is bypassed, trusting the ", middlewares.DevUserHeader, " header")
		return middlewares.DevUser()
	}
	client, err := middlewares.NewCognitoClient(ctx)
	if err != nil {
		// Abort directly if the Cognito isn't setup successfully, which is crucial
		// for server side authorization.
		Log.Fatal("fail to setup Cognito client: ", err)
	}
	return middlewares.JWT(client)
}

func main() {
	flag.Parse()
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
	// Flags and env are known now.
	InitLogger()

	appConfig := app_config.ParseFeedAppConfig(*AppConfigPath)
	location, _ := appConfig.Location()

	tracer.Start(tracer.WithService(ServiceName), tracer.WithEnv(dotenv.Env()))
	defer tracer.Stop()

	db, err := utils.GetDBConnection()
	if err != nil {
		Log.Fatal("fail to connect to database: ", err)
	}
	gormBackend := backend.NewGormBackend(db)

	eventbus := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            100,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewStdLogger(false, false),
	)
	ctx, cancel := context.WithCancel(context.Background())

	hub := notifier.NewHub()
	relays, publisher := relayModules(ctx, appConfig, hub)

	sessions := server.NewSessionRegistry(ctx, server.SessionRegistryConfig{
		DefaultLimit: appConfig.DEFAULT_SLIDESHOW_PHOTO_LIMIT,
		Location:     location,
		IdleTimeout:  appConfig.SessionIdleTimeout(),
	}, gormBackend, hub, modules.NewHydrationPublisher(eventbus), publisher)

	// Initialize all engine modules here.
	engineModules := append([]engine.Module{
		// Reporter turns hydration reports into Datadog metrics and capacity
		// alerts on Slack.
		modules.NewReporter(modules.ReporterConfig{
			Name:            "reporter",
			SlackWebhookUrl: os.Getenv("SLACK_WEBHOOK_URL"),
			AlertCooldown:   appConfig.SlackAlertCooldown(),
		}, NewDogStatsdClient(), eventbus),
		// Refresh scheduler re-hydrates live sessions, healing lost
		// notifications, and closes idle ones.
		modules.NewRefreshScheduler(modules.RefreshSchedulerConfig{
			Name: "refresh_scheduler",
			Spec: appConfig.REFRESH_SPEC,
		}, sessions),
	}, relays...)

	e := engine.NewEngine(engineModules, ctx, cancel, eventbus)
	go e.Run()

	// Default With the Logger and Recovery middleware already attached
	router := gin.Default()
	router.Use(cors.Default())
	router.Use(gintrace.Middleware(ServiceName))
	server.AddRoutes(
		router,
		server.NewServer(sessions, publisher, location),
		authMiddleware(ctx),
		middlewares.WebhookSecret(os.Getenv("WEBHOOK_SECRET")),
	)

	srv := &http.Server{Addr: appConfig.LISTEN_ADDR, Handler: router}
	go func() {
		Log.Info("api server starts up on ", appConfig.LISTEN_ADDR)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Log.Fatal("api server stopped: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		Log.Error("fail to shutdown api server gracefully: ", err)
	}
	sessions.Close()
	e.Shutdown()
	Log.Info("api server shutdown")
}
