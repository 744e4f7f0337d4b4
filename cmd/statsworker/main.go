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

	"github.com/feedmaster/feedmaster/achievement"
	"github.com/feedmaster/feedmaster/aggregator"
	"github.com/feedmaster/feedmaster/app_config"
	"github.com/feedmaster/feedmaster/model"
	"github.com/feedmaster/feedmaster/statsworker"
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
	AppConfigPath = flag.String("app_config_path", "cmd/statsworker/config.yaml", "path to stats worker app config")
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

	posts := store.NewPostStore(db, AppConfig.QUERY_BATCH_SIZE)
	stats := store.NewUserStatStore(db)
	registry := store.NewAchievementStore(db)

	awarder := achievement.NewEngine(registry, stats)

	ctx, cancel := context.WithCancel(context.Background())
	eventbus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))

	modules := []worker.Module{
		statsworker.NewModule(
			statsworker.Config{
				Name:              "stats_worker",
				RecomputeInterval: time.Duration(AppConfig.STATS_RECOMPUTE_SECOND) * time.Second,
				RarityInterval:    time.Duration(AppConfig.RARITY_REFRESH_SECOND) * time.Second,
			},
			posts, stats, awarder,
			func(ctx context.Context) ([]model.Feed, error) {
				return store.ActiveFeeds(ctx, db)
			},
			aggregator.WeightsFromConfig(AppConfig),
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
