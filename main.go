package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"glosskit/controlplane"
	"glosskit/core"
	playbackevents "glosskit/events/playback"
	"glosskit/factories"
	"glosskit/gloss"
	"glosskit/handlers/transport"
	"glosskit/protocol"
	"glosskit/transports/websocket"
)

const version = "1.0.0"

func main() {
	var (
		connectURL     string
		settingsPath   string
		dictionaryPath string
		port           int
	)
	flag.StringVar(&connectURL, "connect", "", "WebSocket URL of the operator control plane (e.g. ws://ui:8888/ws/agent)")
	flag.StringVar(&settingsPath, "settings", getEnv("SETTINGS_PATH", "./settings.json"), "path to settings.json")
	flag.StringVar(&dictionaryPath, "dictionary", "", "word-to-gloss JSON file, overrides dictionary_path")
	flag.IntVar(&port, "port", 0, "session server port, overrides server.port")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().Warn("no .env.local file found or failed to load", "error", err)
	}
	core.SetLogger(newLogger(os.Getenv("LOG_FORMAT"), core.ParseLevel(os.Getenv("LOG_LEVEL"))))
	logger := core.GetLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	settings := loadSettings(settingsPath)
	if dictionaryPath != "" {
		settings.DictionaryPath = dictionaryPath
	}
	if port > 0 {
		settings.Server.Port = port
	}
	apiKeys := loadAPIKeys()
	settings.InjectAPIKeys(apiKeys)

	resolver, err := buildResolver(ctx, settings, logger)
	if err != nil {
		logger.Error("failed to load dictionary", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cancel, connectURL, settings, apiKeys, resolver); err != nil {
		logger.Error("agent stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

// run serves extension sessions until ctx is cancelled. With a control
// plane URL the agent also reports to the operator UI and exits when that
// connection drops.
func run(
	ctx context.Context,
	cancel context.CancelFunc,
	connectURL string,
	settings factories.SettingsConfig,
	apiKeys factories.APIKeys,
	resolver *gloss.Resolver,
) error {
	logger := core.GetLogger().With(map[string]any{"component": "worker"})

	provider := websocket.NewWebSocketTransportProvider(settings.Server, logger)
	builder := &factories.SessionBuilder{
		Settings: settings,
		Resolver: resolver,
		APIKeys:  apiKeys,
		Logger:   logger,
	}
	pipeline := factories.NewPipeline(builder.Build, factories.PipelineConfig{
		Timeout: time.Duration(settings.SessionTimeoutSeconds) * time.Second,
	}, logger)

	if connectURL != "" {
		client, err := connectControlPlane(ctx, cancel, connectURL, provider, builder, pipeline)
		if err != nil {
			return err
		}
		defer client.Close()
	}

	return pipeline.Serve(provider, ctx)
}

func connectControlPlane(
	ctx context.Context,
	cancel context.CancelFunc,
	connectURL string,
	provider *websocket.WebSocketTransportProvider,
	builder *factories.SessionBuilder,
	pipeline *factories.Pipeline,
) (*controlplane.Client, error) {
	logger := core.GetLogger().With(map[string]any{"component": "connected"})

	agentID := os.Getenv("AGENT_ID")
	hostname, _ := os.Hostname()
	if agentID == "" {
		agentID = hostname
	}

	header := http.Header{}
	if token := os.Getenv("CONTROL_PLANE_TOKEN"); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	tracker := controlplane.NewSessionTracker()
	client := controlplane.NewClient(controlplane.ClientConfig{
		ConnectURL:   connectURL,
		AgentID:      agentID,
		Version:      version,
		ListenAddr:   fmt.Sprintf(":%d", builder.CurrentSettings().Server.Port),
		Capabilities: []string{"gloss", "fingerspell", "demo", "stt"},
		Metadata:     map[string]string{"hostname": hostname},
		Header:       header,
		Sessions:     tracker,
		DictionarySize: func() int {
			return builder.Resolver.Dictionary().Len()
		},
		Logger: logger,
	})

	client.OnShutdown = func(reason string, grace time.Duration) {
		logger.Info("shutdown requested by control plane", "reason", reason, "grace", grace)
		if grace <= 0 {
			cancel()
			return
		}
		tracker.Drain()
		go func() {
			drainCtx, stop := context.WithTimeout(ctx, grace)
			defer stop()
			if err := tracker.WaitIdle(drainCtx); err != nil {
				logger.Warn("grace period over, closing remaining sessions", "active", tracker.Len())
			}
			cancel()
		}()
	}
	client.OnRestartPipeline = func(reason string) {
		closed := provider.CloseAll(reason)
		logger.Info("restarted sessions", "closed", closed, "reason", reason)
	}
	client.OnSetSpeed = func(speed float64) {
		settings := builder.CurrentSettings()
		settings.Session.Playback.DefaultSpeed = core.NormalizeSpeed(speed)
		builder.UpdateSettings(settings)
		logger.Info("default speed updated", "speed", settings.Session.Playback.DefaultSpeed)
	}
	client.OnConfigUpdate = func(raw json.RawMessage, keys map[string]string) error {
		current := builder.CurrentSettings()
		settings := current
		if len(raw) > 0 {
			parsed, err := factories.SettingsConfigFromJSON(raw)
			if err != nil {
				return err
			}
			settings = parsed
			// The listener is already bound.
			settings.Server = current.Server
		}
		apiKeys := builder.APIKeys
		if v := keys["DEEPGRAM_API_KEY"]; v != "" {
			apiKeys.Deepgram = v
		}
		if v := keys["OPENAI_API_KEY"]; v != "" {
			apiKeys.OpenAI = v
		}
		settings.InjectAPIKeys(apiKeys)
		builder.UpdateSettings(settings)
		logger.Info("settings updated by control plane; new sessions use them")
		return nil
	}

	tracker.OnChange = client.SendStatus
	pipeline.OnSessionStart = func(ctx context.Context, svc transport.ITransportService) {
		tracker.Start(core.SessionIDFromContext(ctx), svc.RemoteAddr())
	}
	pipeline.OnSessionEnd = func(ctx context.Context) {
		tracker.Finish(core.SessionIDFromContext(ctx))
	}
	builder.OnOutput = func(sessionID string, event core.IExternalOutputEvent) {
		status, ok := event.(*playbackevents.StatusEvent)
		if !ok {
			return
		}
		tracker.SetState(sessionID, status.State)
		if data, err := sonic.Marshal(protocol.SessionStatusPayload{
			State:   status.State,
			Code:    status.Code,
			Message: status.Message,
		}); err == nil {
			client.SendEvent(sessionID, status.GetId(), data)
		}
	}
	provider.SessionLogWriter = func(sessionID string) core.LogWriter {
		return controlplane.NewWSLogWriter(client, sessionID, core.LevelInfo)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("control plane: %w", err)
	}
	go func() {
		client.Wait()
		if ctx.Err() == nil {
			logger.Info("control plane connection lost, shutting down")
			cancel()
		}
	}()
	return client, nil
}

func buildResolver(ctx context.Context, settings factories.SettingsConfig, logger *core.Logger) (*gloss.Resolver, error) {
	if settings.DictionaryPath == "" {
		return gloss.NewResolver(nil, settings.MinFingerspellLength), nil
	}
	dict, err := gloss.LoadDictionaryFile(settings.DictionaryPath)
	if err != nil {
		return nil, err
	}
	resolver := gloss.NewResolver(dict, settings.MinFingerspellLength)
	if err := gloss.WatchDictionary(ctx, settings.DictionaryPath, logger, resolver.SetDictionary); err != nil {
		logger.Warn("dictionary hot reload disabled", "error", err)
	}
	logger.Info("dictionary loaded", "path", settings.DictionaryPath, "entries", dict.Len())
	return resolver, nil
}

// newLogger writes JSON lines for log collectors and a console format
// otherwise.
func newLogger(format string, level core.Level) *core.Logger {
	if format == "json" {
		return core.NewZerologLogger(zerolog.New(os.Stderr).With().Timestamp().Logger(), level)
	}
	return core.NewWriterLogger(os.Stderr, level)
}

// loadSettings reads SETTINGS_JSON_B64 when set, otherwise the settings
// file. Any failure falls back to defaults.
func loadSettings(path string) factories.SettingsConfig {
	logger := core.GetLogger()
	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			logger.Error("failed to decode SETTINGS_JSON_B64", "error", err)
			return factories.DefaultSettingsConfig()
		}
		settings, err := factories.SettingsConfigFromJSON(data)
		if err != nil {
			logger.Error("failed to parse SETTINGS_JSON_B64", "error", err)
			return factories.DefaultSettingsConfig()
		}
		logger.Info("loaded settings from SETTINGS_JSON_B64")
		return settings
	}
	settings, err := factories.SettingsConfigFromFile(path)
	if err != nil {
		logger.Warn("failed to load settings, using defaults", "path", path, "error", err)
		return factories.DefaultSettingsConfig()
	}
	if v := getEnvAsInt("SESSION_TIMEOUT_SECONDS", 0); v > 0 {
		settings.SessionTimeoutSeconds = v
	}
	return settings
}

func loadAPIKeys() factories.APIKeys {
	return factories.APIKeys{
		Deepgram: getEnv("DEEPGRAM_API_KEY", ""),
		OpenAI:   getEnv("OPENAI_API_KEY", ""),
	}
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a default fallback
func getEnvAsInt(key string, defaultValue int) int {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultValue
	}
	return val
}
