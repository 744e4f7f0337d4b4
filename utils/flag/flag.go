/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic
	For service dependent flags please define in their respective package
*/

package flag

import (
	"flag"
)

const (
	Ingester    = "ingester"
	Aggregator  = "aggregator"
	StatsWorker = "stats_worker"
)

var (
	IsDevelopment bool
	ServiceName   string
)

// init only registers. Each binary calls flag.Parse() in its main, after
// every package had a chance to register its own flags.
func init() {
	flag.BoolVar(&IsDevelopment, "dev", true, "set to true if the current run is for development. default value is true")
	flag.StringVar(&ServiceName, "service", Ingester, "'ingester', 'aggregator' or 'stats_worker'")
}
