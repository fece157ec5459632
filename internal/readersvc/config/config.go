package config

import (
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

type Config struct {
	StationDataFile string
	HistoryDir      string
	Devices         []string
	DumpDir         string
	PollInterval    time.Duration
	SenseTimeout    time.Duration
	Port            string
}

func Load() Config {
	return Config{
		StationDataFile: getEnv("STATION_DATA_FILE", ".data/station.csv"),
		HistoryDir:      getEnv("FELICA_HISTORY_RECORD_PATH", ".history"),
		Devices:         splitList(getEnv("FELICA_DEVICES", "dump")),
		DumpDir:         getEnv("FELICA_DUMP_PATH", ".dumps"),
		PollInterval:    getDuration("POLL_INTERVAL", 5*time.Second),
		SenseTimeout:    getDuration("SENSE_TIMEOUT", 30*time.Second),
		Port:            getEnv("READER_SERVICE_PORT", "9101"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warnf("invalid %s value %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
