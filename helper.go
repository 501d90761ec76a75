package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

func setLogLevel(l string) error {
	switch l {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "fatal":
		log.SetLevel(log.FatalLevel)
	default:
		log.SetLevel(log.InfoLevel)
		return fmt.Errorf("unknown log level %q", l)
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}

// telemetryPath makes sure the metrics path is absolute.
func telemetryPath(p string) string {
	if p == "" {
		log.Warnln("web.telemetry-path is empty, correcting to `/metrics`")
		return "/metrics"
	}
	if p[0] != '/' {
		return "/" + p
	}
	return p
}
