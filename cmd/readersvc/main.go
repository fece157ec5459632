package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	config "github.com/zesik/felicatool/configs"
	"github.com/zesik/felicatool/internal/felica/history"
	"github.com/zesik/felicatool/internal/felica/record"
	"github.com/zesik/felicatool/internal/felica/station"
	"github.com/zesik/felicatool/internal/nats"
	"github.com/zesik/felicatool/internal/readersvc/broker"
	"github.com/zesik/felicatool/internal/readersvc/card"
	readercfg "github.com/zesik/felicatool/internal/readersvc/config"
	"github.com/zesik/felicatool/internal/readersvc/metrics"
	"github.com/zesik/felicatool/internal/readersvc/reader"
)

const SERVICE_NAME = "reader"

func init() {
	config.Logging(SERVICE_NAME + "_service")
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	cfg := readercfg.Load()
	instanceId := config.CreateUniqueInstance(SERVICE_NAME)

	stations, err := station.Load(cfg.StationDataFile)
	if err != nil {
		log.Fatalf("unable to load station data: %s", err)
	}
	log.Infof("%d stations loaded from %s", stations.Len(), cfg.StationDataFile)

	reconciler := history.NewReconciler(history.NewStore(cfg.HistoryDir), record.NewDecoder(stations))

	n, err := nats.Connect(SERVICE_NAME + "_" + instanceId)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	defer n.Conn.Close()
	log.Infof("NATS connection established successfully %s", n.Url)

	metrics.Init()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service metrics at port %s", SERVICE_NAME, server.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rd := reader.New(
		broker.NewBroker(n.Conn, nats.Subject),
		reconciler,
		card.DumpOpener(cfg.DumpDir),
		reader.Options{
			Devices:      cfg.Devices,
			PollInterval: cfg.PollInterval,
			SenseTimeout: cfg.SenseTimeout,
		},
	)
	if err := rd.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("reader stopped: %s", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
