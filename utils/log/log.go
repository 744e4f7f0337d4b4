package log

import (
	"os"

	"github.com/feedmaster/feedmaster/utils/dotenv"
	"github.com/feedmaster/feedmaster/utils/flag"
	"github.com/sirupsen/logrus"
)

// global accessible logger
var (
	logger *logrus.Logger
	Log    *logrus.Entry
)

// This init function is only for testing cases, where the entry point is not
// main function. Unit test will fail with nil pointer dereference if we don't
// init here.
func init() {
	InitLogger()
}

func InitLogger() {
	logger = logrus.New()

	if os.Getenv("FEEDMASTER_ENV") == dotenv.ProdEnv {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	// Send log to stderr, leaving stdout to the data path
	logger.SetOutput(os.Stderr)

	Log = logger.WithFields(
		logrus.Fields{"service": flag.ServiceName, "is_development": os.Getenv("FEEDMASTER_ENV") != dotenv.ProdEnv},
	)
}
