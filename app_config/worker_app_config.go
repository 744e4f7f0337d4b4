package app_config

import (
	"io/ioutil"
	"log"

	"gopkg.in/yaml.v2"
)

// This is the worker config shared by the ingester and the aggregation
// workers.
type WorkerAppConfig struct {
	// Number of ranked entries kept per aggregation snapshot.
	TOP_K int `yaml:"TOP_K"`
	// Base aggregation cadence in seconds, before feed tier scaling.
	AGGREGATION_CADENCE_SECOND int64 `yaml:"AGGREGATION_CADENCE_SECOND"`
	// Hard deadline for a single (feed, window) aggregation job.
	JOB_TIMEOUT_SECOND int64 `yaml:"JOB_TIMEOUT_SECOND"`
	// Number of posts fetched per page when scanning a feed window.
	QUERY_BATCH_SIZE int `yaml:"QUERY_BATCH_SIZE"`
	// Maximum storage retries for a single incoming post before it is dropped.
	MAX_STORAGE_RETRY int `yaml:"MAX_STORAGE_RETRY"`
	// Ceiling for listener reconnect backoff in seconds.
	MAX_RECONNECT_BACKOFF_SECOND int64 `yaml:"MAX_RECONNECT_BACKOFF_SECOND"`
	// Consecutive failed connection attempts before a listener reports
	// degraded. It keeps retrying either way.
	DEGRADED_ATTEMPT_BUDGET int `yaml:"DEGRADED_ATTEMPT_BUDGET"`
	// Engagement score weights.
	LIKE_WEIGHT   int64 `yaml:"LIKE_WEIGHT"`
	REPOST_WEIGHT int64 `yaml:"REPOST_WEIGHT"`
	REPLY_WEIGHT  int64 `yaml:"REPLY_WEIGHT"`
	QUOTE_WEIGHT  int64 `yaml:"QUOTE_WEIGHT"`
	// TTL for cached aggregate snapshots in Redis.
	SNAPSHOT_CACHE_TTL_SECOND int64 `yaml:"SNAPSHOT_CACHE_TTL_SECOND"`
	// Cadence of the full user stats recompute plus award pass.
	STATS_RECOMPUTE_SECOND int64 `yaml:"STATS_RECOMPUTE_SECOND"`
	// Cadence of the achievement rarity refresh, typically much longer than
	// the stats recompute.
	RARITY_REFRESH_SECOND int64 `yaml:"RARITY_REFRESH_SECOND"`
	// Cadence of the listener pool reconciling against the feed registry.
	FEED_RECONCILE_SECOND int64 `yaml:"FEED_RECONCILE_SECOND"`
	// Base URL of the appview used for engagement polling and profile
	// resolution.
	APPVIEW_BASE_URL string `yaml:"APPVIEW_BASE_URL"`
	// Cadence of the engagement polling worker's due-post scan.
	ENGAGEMENT_POLL_SECOND int64 `yaml:"ENGAGEMENT_POLL_SECOND"`
	// Most posts refreshed per engagement polling cycle.
	ENGAGEMENT_POLL_BATCH_LIMIT int `yaml:"ENGAGEMENT_POLL_BATCH_LIMIT"`
	// Cadence of the profile resolver's stale-user scan.
	PROFILE_REFRESH_SECOND int64 `yaml:"PROFILE_REFRESH_SECOND"`
	// A resolved profile older than this is resolved again.
	PROFILE_STALE_AFTER_SECOND int64 `yaml:"PROFILE_STALE_AFTER_SECOND"`
	// Most profiles resolved per cycle.
	PROFILE_BATCH_LIMIT int `yaml:"PROFILE_BATCH_LIMIT"`
	// Path to the geo hashtag mapping file. Empty disables the geo families.
	GEO_HASHTAG_MAPPING_PATH string `yaml:"GEO_HASHTAG_MAPPING_PATH"`
	// Path to the news domain list. Empty disables the news card family.
	NEWS_DOMAINS_PATH string `yaml:"NEWS_DOMAINS_PATH"`
}

func DefaultWorkerAppConfig() WorkerAppConfig {
	return WorkerAppConfig{
		TOP_K:                        50,
		AGGREGATION_CADENCE_SECOND:   300,
		JOB_TIMEOUT_SECOND:           120,
		QUERY_BATCH_SIZE:             500,
		MAX_STORAGE_RETRY:            3,
		MAX_RECONNECT_BACKOFF_SECOND: 60,
		DEGRADED_ATTEMPT_BUDGET:      10,
		LIKE_WEIGHT:                  1,
		REPOST_WEIGHT:                2,
		REPLY_WEIGHT:                 3,
		QUOTE_WEIGHT:                 2,
		SNAPSHOT_CACHE_TTL_SECOND:    600,
		STATS_RECOMPUTE_SECOND:       900,
		RARITY_REFRESH_SECOND:        86400,
		FEED_RECONCILE_SECOND:        30,
		APPVIEW_BASE_URL:             "https://public.api.bsky.app",
		ENGAGEMENT_POLL_SECOND:       30,
		ENGAGEMENT_POLL_BATCH_LIMIT:  200,
		PROFILE_REFRESH_SECOND:       300,
		PROFILE_STALE_AFTER_SECOND:   86400,
		PROFILE_BATCH_LIMIT:          100,
	}
}

func ParseWorkerAppConfig(path string) WorkerAppConfig {
	c := DefaultWorkerAppConfig()
	yamlFile, err := ioutil.ReadFile(path)
	if err != nil {
		log.Fatal("yamlFile. get err: ", err.Error())
	}
	err = yaml.Unmarshal(yamlFile, &c)
	if err != nil {
		log.Fatal("Unmarshal: ", err)
	}
	return c
}
