package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/feedmaster/feedmaster/aggregator"
	"github.com/feedmaster/feedmaster/app_config"
	"github.com/feedmaster/feedmaster/appview"
	"github.com/feedmaster/feedmaster/ingestion"
	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/polling"
	"github.com/feedmaster/feedmaster/store"
	"github.com/feedmaster/feedmaster/utils"
	"github.com/feedmaster/feedmaster/utils/dotenv"
	"github.com/feedmaster/feedmaster/utils/log"
	"github.com/feedmaster/feedmaster/worker"
)

var (
	AppConfigPath *string
	AppConfig     app_config.WorkerAppConfig
)

// init() will always be called on before the execution of main function.
func init() {
	AppConfigPath = flag.String("app_config_path", "cmd/ingester/config.yaml", "path to ingester app config")
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
}

func main() {
	flag.Parse()
	AppConfig = app_config.ParseWorkerAppConfig(*AppConfigPath)

	db, err := utils.GetDBConnection()
	if err != nil {
		log.Log.Fatal("fail to connect database : ", err)
	}
	utils.DatabaseSetupAndMigration(db)

	redis, err := utils.GetRedisClient()
	if err != nil {
		log.Log.Fatal("fail to connect redis : ", err)
	}

	posts := store.NewPostStore(db, AppConfig.QUERY_BATCH_SIZE)
	stats := store.NewUserStatStore(db)
	users := store.NewUserStore(db)

	pool := ingestion.NewPool(func(feed model.Feed) ingestion.Runner {
		return ingestion.NewListener(feed, posts, stats, redis, AppConfig)
	})

	client := appview.NewClient(
		&http.Client{Timeout: 30 * time.Second}, AppConfig.APPVIEW_BASE_URL)

	ctx, cancel := context.WithCancel(context.Background())
	eventbus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))

	modules := []worker.Module{
		ingestion.NewReconciler(
			ingestion.ReconcilerConfig{
				Name:         "reconciler",
				PollInterval: time.Duration(AppConfig.FEED_RECONCILE_SECOND) * time.Second,
			},
			pool,
			func(ctx context.Context) ([]model.Feed, error) {
				return store.ActiveFeeds(ctx, db)
			},
		),
		// Create events carry no counters, this module backfills them from
		// the appview until the schedule retires each post.
		polling.NewEngagementModule(
			polling.EngagementConfig{
				Name:         "engagement_poller",
				PollInterval: time.Duration(AppConfig.ENGAGEMENT_POLL_SECOND) * time.Second,
				BatchLimit:   AppConfig.ENGAGEMENT_POLL_BATCH_LIMIT,
			},
			posts, client, polling.DefaultSchedule(),
			aggregator.WeightsFromConfig(AppConfig),
		),
		// Replaces placeholder author rows with resolved handles and avatars.
		polling.NewProfileModule(
			polling.ProfileConfig{
				Name:         "profile_resolver",
				PollInterval: time.Duration(AppConfig.PROFILE_REFRESH_SECOND) * time.Second,
				StaleAfter:   time.Duration(AppConfig.PROFILE_STALE_AFTER_SECOND) * time.Second,
				BatchLimit:   AppConfig.PROFILE_BATCH_LIMIT,
			},
			users, client,
		),
	}

	engine := worker.NewEngine(modules, ctx, cancel, eventbus)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Log.Infof("received signal %s, shutting down", sig)
		engine.Shutdown()
	}()

	// blocking call.
	engine.Run()

	log.Log.Infoln("engine stopped execution.")
}
