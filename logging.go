package main

import (
	log "github.com/sirupsen/logrus"
)

// initLogging maps the CLI verbosity onto logrus. Silent mode keeps only
// errors; each -verbose step reveals one more level.
func initLogging(verbose int, silent bool) {
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
	})
	switch {
	case silent:
		log.SetLevel(log.ErrorLevel)
	case verbose <= 0:
		log.SetLevel(log.WarnLevel)
	case verbose == 1:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.DebugLevel)
	}
}
