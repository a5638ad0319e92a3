// =============================================================================
// servingd entry point
// =============================================================================
// On-demand model serving controller: creation API wiring, garbage
// collection loop, health check and Prometheus metrics.
//
// Usage:
//
//	servingd serve                        # start the controller
//	servingd serve --config config.yaml   # with a config file
//	servingd version                      # show version information
//	servingd health                       # probe a running controller
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/modelflow-ai/modelflow/catalog"
	"github.com/modelflow-ai/modelflow/config"
	"github.com/modelflow-ai/modelflow/internal/database"
	"github.com/modelflow-ai/modelflow/internal/metrics"
	"github.com/modelflow-ai/modelflow/internal/telemetry"
	"github.com/modelflow-ai/modelflow/kube"
	"github.com/modelflow-ai/modelflow/serving"
	"github.com/modelflow-ai/modelflow/token"
	"github.com/modelflow-ai/modelflow/types"
)

// =============================================================================
// Version information (injected at build time)
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// serve command
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting servingd",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}

	ledger := serving.NewLedger(db)
	if err := ledger.Migrate(); err != nil {
		logger.Fatal("Ledger migration failed", zap.Error(err))
	}
	resolver := catalog.NewResolver(db)
	if err := resolver.Migrate(); err != nil {
		logger.Fatal("Catalog migration failed", zap.Error(err))
	}

	clientset, err := buildClientset(cfg.Kubernetes)
	if err != nil {
		logger.Fatal("Failed to build Kubernetes client", zap.Error(err))
	}
	kubeClient := kube.NewClient(clientset, cfg.Kubernetes.Namespace, logger)

	issuer, err := token.NewIssuer(cfg.Token)
	if err != nil {
		logger.Fatal("Failed to create token issuer", zap.Error(err))
	}

	collector := metrics.NewCollector("modelflow", logger)
	deployer := serving.NewDeployer(kubeClient, issuer, cfg, collector, logger)
	svc := serving.NewService(ledger, resolver, deployer, collector, logger)
	reconciler := serving.NewReconciler(kubeClient, ledger, svc.Mutex(), cfg.Serving, collector, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/serving", createHandler(svc, logger))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Metrics listener started", zap.Int("port", cfg.Server.MetricsPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		reconciler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		reconciler.Stop()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Shutdown with error", zap.Error(err))
	}
	if otelProviders != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
		cancel()
	}
	logger.Info("servingd stopped")
}

// createHandler exposes instance creation over HTTP. Concurrent
// requests for the same key all land on the same instance.
func createHandler(svc *serving.Service, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		Project        string `json:"project"`
		ModelVersion   string `json:"model_version"`
		RuntimeVersion string `json:"runtime_version"`
		ResourcePool   string `json:"resource_pool"`
		OwnerID        int64  `json:"owner_id"`
	}
	type response struct {
		InstanceID int64  `json:"instance_id"`
		BaseURI    string `json:"base_uri"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}

		res, err := svc.Create(r.Context(), serving.CreateRequest{
			Project:        req.Project,
			ModelVersion:   req.ModelVersion,
			RuntimeVersion: req.RuntimeVersion,
			ResourcePool:   req.ResourcePool,
			OwnerID:        req.OwnerID,
		})
		if err != nil {
			logger.Error("serving creation failed", zap.Error(err))
			status := http.StatusInternalServerError
			if types.IsCode(err, types.ErrNotFound) || types.IsCode(err, types.ErrInvalidReference) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response{InstanceID: res.InstanceID, BaseURI: res.URI})
	}
}

// buildClientset connects to the cluster: in-cluster config when no
// kubeconfig path is set, the given kubeconfig otherwise.
func buildClientset(cfg config.KubernetesConfig) (kubernetes.Interface, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if cfg.Kubeconfig == "" {
		restCfg, err = rest.InClusterConfig()
	} else {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("build rest config: %w", err)
	}
	return kubernetes.NewForConfig(restCfg)
}

// =============================================================================
// health command
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:9091", "Controller address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// version and help
// =============================================================================

func printVersion() {
	fmt.Printf("servingd %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`servingd - on-demand model serving controller

Usage:
  servingd <command> [options]

Commands:
  serve     Start the serving controller
  version   Show version information
  health    Check controller health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Examples:
  servingd serve
  servingd serve --config /etc/servingd/config.yaml
  servingd health --addr http://localhost:9091
  servingd version`)
}

// =============================================================================
// Logger initialization
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
