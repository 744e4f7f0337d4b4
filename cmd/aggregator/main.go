package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/feedmaster/feedmaster/aggregator"
	"github.com/feedmaster/feedmaster/app_config"
	"github.com/feedmaster/feedmaster/model"
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

func init() {
	AppConfigPath = flag.String("app_config_path", "cmd/aggregator/config.yaml", "path to aggregator app config")
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
}

// loadCollaboratorData reads the optional geo mapping and news domain list.
// Either being absent just disables its metric families.
func loadCollaboratorData() (aggregator.GeoMap, map[string]bool) {
	var geo aggregator.GeoMap
	if AppConfig.GEO_HASHTAG_MAPPING_PATH != "" {
		loaded, err := aggregator.LoadGeoMap(AppConfig.GEO_HASHTAG_MAPPING_PATH)
		if err != nil {
			log.Log.Fatal("fail to load geo hashtag mapping : ", err)
		}
		geo = loaded
	}

	var newsDomains map[string]bool
	if AppConfig.NEWS_DOMAINS_PATH != "" {
		loaded, err := aggregator.LoadNewsDomains(AppConfig.NEWS_DOMAINS_PATH)
		if err != nil {
			log.Log.Fatal("fail to load news domain list : ", err)
		}
		newsDomains = loaded
	}
	return geo, newsDomains
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
	snapshots := store.NewAggregateStore(db, redis,
		time.Duration(AppConfig.SNAPSHOT_CACHE_TTL_SECOND)*time.Second)

	geo, newsDomains := loadCollaboratorData()
	engine := aggregator.NewEngine(posts, snapshots, geo, newsDomains,
		aggregator.WeightsFromConfig(AppConfig), AppConfig.TOP_K)

	ctx, cancel := context.WithCancel(context.Background())
	eventbus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	tracker := aggregator.NewTracker(3 * time.Duration(AppConfig.JOB_TIMEOUT_SECOND) * time.Second)

	feeds := func(ctx context.Context) ([]model.Feed, error) {
		return store.ActiveFeeds(ctx, db)
	}

	modules := []worker.Module{
		// Scheduler fans due (feed, window) pairs out onto the EventBus.
		aggregator.NewScheduler(
			aggregator.SchedulerConfig{
				Name:         "scheduler",
				BaseInterval: time.Duration(AppConfig.AGGREGATION_CADENCE_SECOND) * time.Second,
			},
			eventbus, feeds, tracker,
		),
		// Runner consumes jobs off the EventBus and evaluates them.
		aggregator.NewRunner(
			aggregator.RunnerConfig{
				Name:       "runner",
				JobTimeout: time.Duration(AppConfig.JOB_TIMEOUT_SECOND) * time.Second,
			},
			eventbus, engine, tracker,
		),
	}

	workerEngine := worker.NewEngine(modules, ctx, cancel, eventbus)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Log.Infof("received signal %s, shutting down", sig)
		workerEngine.Shutdown()
	}()

	// blocking call.
	workerEngine.Run()

	log.Log.Infoln("engine stopped execution.")
}
