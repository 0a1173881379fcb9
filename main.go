package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v2"

	"rvhrisk/clinical"
	rvhhttp "rvhrisk/http"
	"rvhrisk/ml"
	"rvhrisk/monitoring"
)

type Config struct {
	Http struct {
		Port               int      `yaml:"port"`
		AllowedOrigins     []string `yaml:"allowed_origins"`
		TimeoutSeconds     int      `yaml:"timeout_seconds"`
		RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	} `yaml:"http"`
	Model struct {
		Path string `yaml:"path"`
	} `yaml:"model"`
	UI struct {
		DefaultLanguage string `yaml:"default_language"`
	} `yaml:"ui"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Build logger
	logger, err := buildLogger(config)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	rvhhttp.SetDefaultLanguage(config.UI.DefaultLanguage)

	// 3. Load the model artifact once. A failed load is not fatal: the form
	// stays reachable and every assessment is refused until a restart.
	loader := ml.NewLoader(config.Model.Path)
	if model, err := loader.Load(); err != nil {
		logger.Error("model artifact unavailable, assessments disabled until restart",
			zap.String("path", config.Model.Path),
			zap.Error(err))
	} else {
		logger.Info("model artifact loaded",
			zap.String("model", model.Name()),
			zap.Int("version", model.ModelVersion()),
			zap.Int("features", model.NumFeatures()),
			zap.Int("trees", model.NumTrees()))
		checkFeatureOrder(logger, model)
	}

	// 4. Watch the artifact for on-disk changes
	watcher := startWatcher(config.Model.Path, logger)

	// 5. Start preview hub and periodic status broadcast
	metrics := monitoring.NewServiceMetrics()
	hub := monitoring.NewPreviewHub(logger)
	if err := hub.Start(); err != nil {
		logger.Fatal("failed to start preview hub", zap.Error(err))
	}
	statusStop := startStatusBroadcast(hub, loader, metrics)

	// 6. Start HTTP server
	handler, err := rvhhttp.NewHandler(loader, metrics, hub, logger)
	if err != nil {
		logger.Fatal("failed to build handler", zap.Error(err))
	}
	server := rvhhttp.NewServer(serverConfig(config), handler, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 7. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	close(statusStop)
	if watcher != nil {
		watcher.Stop()
	}
	if err := hub.Stop(); err != nil {
		logger.Warn("stopping preview hub", zap.Error(err))
	}
	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("exiting")
}

// loadConfig reads config.yaml. A missing file yields the built-in defaults
// so the service runs out of the box; a malformed file is fatal.
func loadConfig(path string) (*Config, error) {
	config := defaultAppConfig()

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}
	return config, nil
}

func defaultAppConfig() *Config {
	config := &Config{}
	config.Http.Port = 8080
	config.Http.AllowedOrigins = []string{"*"}
	config.Http.TimeoutSeconds = 30
	config.Http.RateLimitPerMinute = 120
	config.Model.Path = "models/rvh_gbt.json"
	config.UI.DefaultLanguage = "en"
	config.Log.Level = "info"
	config.Log.MaxSizeMB = 50
	config.Log.MaxBackups = 5
	config.Log.MaxAgeDays = 30
	return config
}

func serverConfig(config *Config) rvhhttp.ServerConfig {
	sc := rvhhttp.DefaultServerConfig()
	if config.Http.Port > 0 {
		sc.Port = config.Http.Port
	}
	if len(config.Http.AllowedOrigins) > 0 {
		sc.AllowedOrigins = config.Http.AllowedOrigins
	}
	if config.Http.TimeoutSeconds > 0 {
		sc.Timeout = time.Duration(config.Http.TimeoutSeconds) * time.Second
	}
	if config.Http.RateLimitPerMinute > 0 {
		sc.RateLimitPerMinute = config.Http.RateLimitPerMinute
	}
	return sc
}

// buildLogger builds a production zap logger. When log.file is set the
// output goes through a lumberjack rotating sink instead of stderr.
func buildLogger(config *Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(config.Log.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	if config.Log.File == "" {
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(level)
		return zapConfig.Build()
	}

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   config.Log.File,
		MaxSize:    config.Log.MaxSizeMB,
		MaxBackups: config.Log.MaxBackups,
		MaxAge:     config.Log.MaxAgeDays,
		Compress:   config.Log.Compress,
	})
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zap.AddCaller()), nil
}

// checkFeatureOrder warns when the artifact's training columns differ from
// the collector's field order. The vector is assembled by position, so a
// mismatch means every downstream probability is garbage.
func checkFeatureOrder(logger *zap.Logger, model *ml.Ensemble) {
	want := clinical.FieldOrder()
	got := model.FeatureNames()
	if len(got) != len(want) {
		logger.Warn("model feature count differs from collector fields",
			zap.Int("model_features", len(got)),
			zap.Int("collector_fields", len(want)))
		return
	}
	for i := range want {
		if got[i] != want[i] {
			logger.Warn("model feature order differs from collector order",
				zap.Int("column", i),
				zap.String("model_feature", got[i]),
				zap.String("collector_field", want[i]))
		}
	}
}

func startWatcher(path string, logger *zap.Logger) *ml.ArtifactWatcher {
	watcher, err := ml.NewArtifactWatcher(path, logger)
	if err != nil {
		logger.Warn("artifact watcher unavailable", zap.Error(err))
		return nil
	}
	if err := watcher.Start(); err != nil {
		logger.Warn("artifact watcher failed to start", zap.Error(err))
		return nil
	}
	return watcher
}

// startStatusBroadcast pushes model availability and uptime to preview
// clients every 30 seconds. Returns a channel that stops the ticker.
func startStatusBroadcast(hub *monitoring.PreviewHub, loader *ml.Loader, metrics *monitoring.ServiceMetrics) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				status := monitoring.StatusMessage{
					ModelAvailable: loader.Available(),
					Uptime:         metrics.GetUptime().String(),
					Timestamp:      time.Now(),
				}
				if m := loader.Model(); m != nil {
					status.ModelName = m.Name()
				}
				hub.BroadcastStatus(status)
			case <-stop:
				return
			}
		}
	}()
	return stop
}
