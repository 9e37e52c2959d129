package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/wayfarerhq/wayfarer/server/adapters/llm"
	"github.com/wayfarerhq/wayfarer/server/adapters/mongo"
	"github.com/wayfarerhq/wayfarer/server/adapters/stt"
	"github.com/wayfarerhq/wayfarer/server/adapters/tts"
	"github.com/wayfarerhq/wayfarer/server/domain/repositories"
	"github.com/wayfarerhq/wayfarer/server/internal/api"
	"github.com/wayfarerhq/wayfarer/server/internal/auth"
	"github.com/wayfarerhq/wayfarer/server/internal/config"
	"github.com/wayfarerhq/wayfarer/server/internal/websocket"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load(logger)

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	ctx := context.Background()

	// Reply generation
	generator, err := llm.NewGeminiGenerator(ctx, llm.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize reply generator", zap.Error(err))
	}

	// Transcript persistence is optional: without MongoDB every session is
	// local-only and vanishes with its connection.
	var store repositories.TranscriptStore
	var mongoClient *mongo.Client
	if cfg.MongoURI != "" {
		mongoClient, err = mongo.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		store = mongo.NewTranscriptStore(mongoClient.Database, logger)
	} else {
		logger.Warn("MONGODB_URI not set, transcripts will not be persisted")
	}

	// Voice capture degrades to a notice when credentials are absent.
	capture := stt.NewGoogleSpeechCapture()

	// Speech synthesis is optional as well.
	var synth repositories.SpeechSynthesizer
	if cfg.ElevenLabsAPIKey != "" {
		synthesizer, err := tts.NewElevenLabsSynthesizer(tts.ElevenLabsConfig{
			APIKey: cfg.ElevenLabsAPIKey,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize speech synthesizer", zap.Error(err))
		}
		synth = synthesizer
	} else {
		logger.Warn("ELEVENLABS_API_KEY not set, reply playback disabled")
	}

	authenticator := auth.NewAuthenticator(cfg.JWTSecret)

	// Initialize WebSocket hub
	hub := websocket.NewHub(generator, store, capture, synth, cfg.CaptureLocale, logger)
	go hub.Run()

	// Initialize API routes
	api.InitRoutes(e, hub, authenticator, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Concierge server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	if mongoClient != nil {
		if err := mongoClient.Close(shutdownCtx); err != nil {
			logger.Error("Failed to close MongoDB connection", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
