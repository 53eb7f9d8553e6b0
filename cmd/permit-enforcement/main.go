package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"permit-enforcement/internal/alert"
	"permit-enforcement/internal/config"
	"permit-enforcement/internal/db"
	"permit-enforcement/internal/domain/permit"
	apphttp "permit-enforcement/internal/http"
	"permit-enforcement/internal/logger"
	"permit-enforcement/internal/ocr"
	"permit-enforcement/internal/repository"
	"permit-enforcement/internal/service"
	"permit-enforcement/internal/source"
	"permit-enforcement/internal/utils"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("service stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, closeRegistry, err := openRegistry(cfg, log)
	if err != nil {
		return err
	}
	defer closeRegistry()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	extractor, err := newExtractor(cfg, awsCfg)
	if err != nil {
		return err
	}

	dispatcher, hub := newDispatcher(cfg, awsCfg, log)
	if hub != nil {
		defer hub.Close()
	}

	normalizer := utils.PlateNormalizer{FoldCase: cfg.Plates.FoldCase}
	detectionService := service.NewDetectionService(extractor, normalizer, registry, dispatcher, cfg.Pipeline.Concurrency, log)
	permitService := service.NewPermitService(registry, normalizer, cfg.Permits.Location(), log)

	var alertStream http.Handler
	if hub != nil {
		alertStream = hub
	}
	handler := apphttp.NewHandler(detectionService, permitService, alertStream, cfg.HTTP.MaxImageBytes, log)
	router := apphttp.NewRouter(handler, cfg.HTTP.AllowedOrigins, cfg.Auth.JWTSecret, log)

	var wg sync.WaitGroup
	if cfg.Source.SQSQueueURL != "" {
		consumer := source.NewSQSConsumer(sqs.NewFromConfig(awsCfg), s3.NewFromConfig(awsCfg), cfg.Source.SQSQueueURL, detectionService, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}
	if cfg.Source.WatchDir != "" {
		watcher, err := source.NewDirWatcher(cfg.Source.WatchDir, detectionService, log)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			watcher.Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serveErr:
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to close")
	}

	wg.Wait()
	log.Info().Msg("shutdown complete")
	return nil
}

func openRegistry(cfg *config.Config, log zerolog.Logger) (permit.Registry, func(), error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("using in-memory storage, permits and detections are lost on exit")
		return repository.NewMemoryRegistry(nil), func() {}, nil
	}

	gdb, err := db.Open(cfg.Storage.DSN(), log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := db.Close(gdb); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}
	return repository.NewPermitRepository(gdb), closeFn, nil
}

func newExtractor(cfg *config.Config, awsCfg aws.Config) (ocr.Extractor, error) {
	switch cfg.OCR.Provider {
	case "azure":
		return ocr.NewAzureExtractor(cfg.OCR.Azure.Endpoint, cfg.OCR.Azure.Key, cfg.OCR.Azure.Timeout), nil
	case "rekognition":
		return ocr.NewRekognitionExtractor(rekognition.NewFromConfig(awsCfg)), nil
	case "tesseract":
		return ocr.NewTesseractExtractor(cfg.OCR.Tesseract.Languages...), nil
	default:
		return nil, fmt.Errorf("unsupported ocr provider %q", cfg.OCR.Provider)
	}
}

// newDispatcher builds the fan-out over the configured alert channels. The hub
// is returned separately so it can be mounted on the router.
func newDispatcher(cfg *config.Config, awsCfg aws.Config, log zerolog.Logger) (alert.Dispatcher, *alert.Hub) {
	var (
		multi alert.Multi
		hub   *alert.Hub
	)
	for _, ch := range cfg.Alert.Channels {
		switch ch {
		case "log":
			multi = append(multi, alert.NewLogDispatcher(log))
		case "email":
			multi = append(multi, alert.NewEmailDispatcher(sesv2.NewFromConfig(awsCfg), cfg.Alert.Sender, cfg.Alert.Recipients, log))
		case "iot":
			client := iotdataplane.NewFromConfig(awsCfg, func(o *iotdataplane.Options) {
				if endpoint := cfg.Alert.IoTEndpoint; endpoint != "" {
					if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
						endpoint = "https://" + endpoint
					}
					o.BaseEndpoint = aws.String(endpoint)
				}
			})
			multi = append(multi, alert.NewIoTDispatcher(client, cfg.Alert.IoTTopic))
		case "websocket":
			hub = alert.NewHub(cfg.HTTP.AllowedOrigins, log)
			multi = append(multi, hub)
		}
	}
	log.Info().Strs("channels", cfg.Alert.Channels).Msg("alert channels configured")
	return multi, hub
}
