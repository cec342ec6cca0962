package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/appforge/app-builder-api/attachments"
	"github.com/appforge/app-builder-api/config"
	"github.com/appforge/app-builder-api/generation"
	"github.com/appforge/app-builder-api/handlers"
	"github.com/appforge/app-builder-api/jobs"
	"github.com/appforge/app-builder-api/metrics"
	"github.com/appforge/app-builder-api/publish"
	"github.com/appforge/app-builder-api/retry"

	"github.com/Noah-Huppert/golog"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v62/github"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
)

// shutdownTimeout bounds how long in flight HTTP requests may take once a signal
// is received
const shutdownTimeout = 10 * time.Second

// runsDrainTimeout bounds how long started pipeline runs may take once the HTTP
// server has stopped
const runsDrainTimeout = 2 * time.Minute

func main() {
	// {{{1 Context
	ctx, ctxCancel := context.WithCancel(context.Background())

	// signals holds signals received by process
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signals

		ctxCancel()
	}()

	// {{{1 Logger
	logger := golog.NewStdLogger("app-builder")

	// {{{1 Configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("failed to load configuration: %s", err.Error())
	}

	cfgStr, err := cfg.String()
	if err != nil {
		logger.Fatalf("failed to convert configuration to string: %s", err.Error())
	}
	logger.Debugf("loaded configuration: %s", cfgStr)

	if cfg.DevMode() {
		logger.Warn("APP_SECRET is not set, running in dev mode: every submission " +
			"is accepted without checking its secret")
	}

	// {{{1 Metrics
	metricsInstance := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// {{{1 GitHub
	ghHTTPClient, err := newGitHubHTTPClient(context.Background(), cfg)
	if err != nil {
		logger.Fatalf("failed to create GitHub HTTP client: %s", err.Error())
	}

	gh := github.NewClient(ghHTTPClient)
	if len(cfg.GhAPIURL) > 0 {
		gh, err = gh.WithEnterpriseURLs(cfg.GhAPIURL, cfg.GhAPIURL)
		if err != nil {
			logger.Fatalf("failed to set GitHub API URL: %s", err.Error())
		}
	}

	// {{{1 Pipeline
	retryPolicy := retry.Policy{
		MaxAttempts: retry.DefaultMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}

	generator := generation.Generator{
		Primary: generation.NewOpenAIProvider(cfg.AipipeAPIKey, cfg.AipipeBaseURL,
			cfg.AipipeModel, cfg.OutboundTimeout),
		Fallback: generation.NewHuggingFaceProvider(cfg.HuggingfaceAPIKey,
			cfg.HuggingfaceBaseURL, cfg.HuggingfaceModel, cfg.OutboundTimeout),
		Retry:  retryPolicy,
		Logger: logger.GetChild("generation"),
	}

	if !generator.Configured() {
		logger.Warn("no generation API key is set, every pipeline run will fail " +
			"until APP_AIPIPE_API_KEY or APP_HUGGINGFACE_API_KEY is set")
	}

	pipeline := jobs.PipelineJob{
		Logger:  logger.GetChild("pipeline"),
		Metrics: metricsInstance,
		Attachments: attachments.Store{
			Dir:    cfg.UploadDir,
			Logger: logger.GetChild("attachments"),
		},
		Generator: generator,
		Publisher: publish.Publisher{
			GH:          gh,
			Logger:      logger.GetChild("publish"),
			Owner:       cfg.GhOwner,
			OwnerIsOrg:  cfg.GhOwnerIsOrg,
			Branch:      cfg.GhBranch,
			Retry:       retryPolicy,
			CallTimeout: cfg.OutboundTimeout,
		},
		Notifier: jobs.NewCallbackNotifier(logger.GetChild("callback"), retryPolicy,
			cfg.OutboundTimeout),
		Owner:      cfg.GhOwner,
		RepoPrefix: cfg.RepoPrefix,
	}

	// {{{1 Job runner
	jobRunner := &jobs.JobRunner{
		Ctx:           ctx,
		Logger:        logger.GetChild("job-runner"),
		Metrics:       metricsInstance,
		MaxConcurrent: cfg.MaxConcurrentRuns,
	}
	jobRunner.Init()
	jobRunner.Register(jobs.JobTypePipeline, pipeline)

	go jobRunner.Run()

	// {{{1 Router
	baseHandler := handlers.BaseHandler{
		Ctx:     ctx,
		Logger:  logger.GetChild("handlers"),
		Cfg:     cfg,
		Metrics: metricsInstance,
	}

	router := mux.NewRouter()

	router.Handle("/", handlers.InfoHandler{
		BaseHandler: baseHandler.GetChild("info"),
	}).Methods("GET")

	router.Handle("/health", handlers.HealthHandler{
		BaseHandler: baseHandler.GetChild("health"),
	}).Methods("GET")

	router.Handle("/api/generate", handlers.GenerateHandler{
		BaseHandler: baseHandler.GetChild("generate"),
		JobRunner:   jobRunner,
	}).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// {{{1 Start HTTP server
	server := http.Server{
		Addr: cfg.HTTPAddr,
		Handler: handlers.PanicHandler{
			BaseHandler: baseHandler,
			Handler: handlers.MetricsHandler{
				BaseHandler: baseHandler,
				Handler: handlers.ReqLoggerHandler{
					BaseHandler: baseHandler,
					Handler: handlers.CORSHandler{
						BaseHandler: baseHandler,
						Handler:     router,
					},
				},
			},
		},
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("failed to serve: %s", err.Error())
		}
	}()

	logger.Infof("started server on %s", cfg.HTTPAddr)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("failed to shutdown server: %s", err.Error())
	}

	logger.Info("waiting for pipeline runs to finish")
	if !jobRunner.Wait(runsDrainTimeout) {
		logger.Error("pipeline runs did not finish in time, exiting anyway")
	}

	logger.Info("done")
}

// newGitHubHTTPClient returns an HTTP client which authenticates as a GitHub App
// installation if its credentials are configured, otherwise with the GitHub token
func newGitHubHTTPClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	if cfg.GhAppAuth() {
		transport, err := ghinstallation.NewKeyFromFile(http.DefaultTransport,
			cfg.GhAppID, cfg.GhInstallationID, cfg.GhPrivateKeyPath)
		if err != nil {
			return nil, err
		}

		if len(cfg.GhAPIURL) > 0 {
			transport.BaseURL = strings.TrimSuffix(cfg.GhAPIURL, "/")
		}

		return &http.Client{
			Transport: transport,
			Timeout:   cfg.OutboundTimeout,
		}, nil
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.GhToken,
	}))
	client.Timeout = cfg.OutboundTimeout

	return client, nil
}
