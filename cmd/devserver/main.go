package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"line-relay/handler"
	"line-relay/internal/app"
	"line-relay/internal/config"
	"line-relay/internal/dispatch"
	"line-relay/internal/integrations/paramstore"
	"line-relay/internal/logger"
)

const maxBodyBytes = 1 << 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot := logger.New(false, true)
	if err := godotenv.Load(); err != nil {
		boot.Warn("no .env file loaded, using process environment", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal("invalid configuration", zap.Error(err))
	}
	log := logger.New(cfg.Debug, true)
	defer func() { _ = log.Sync() }()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal("failed to load AWS config", zap.Error(err))
	}

	secrets := envSecrets(cfg.ParamPrefix)
	rt, err := app.Build(ctx, cfg, awsCfg, secrets, log)
	if err != nil {
		log.Fatal("failed to build relay", zap.Error(err))
	}
	defer func() { _ = rt.Close() }()

	worker, err := handler.NewWorker(rt.Relay, log)
	if err != nil {
		log.Fatal("failed to create worker", zap.Error(err))
	}

	var (
		dispatcher dispatch.Dispatcher
		local      *dispatch.LocalQueue
	)
	switch cfg.Dispatch.Mode {
	case config.DispatchLocal:
		local, err = dispatch.NewLocalQueue(worker.Run, cfg.Dispatch.Workers, cfg.Dispatch.Backlog, log)
		if err != nil {
			log.Fatal("failed to create local queue", zap.Error(err))
		}
		dispatcher = local
	case config.DispatchSQS:
		dispatcher, err = dispatch.NewSQSQueue(awssqs.NewFromConfig(awsCfg), cfg.Dispatch.QueueURL)
		if err != nil {
			log.Fatal("failed to create queue", zap.Error(err))
		}
	}

	h, err := handler.NewHandler(rt.Verifier, rt.Relay, dispatcher, log)
	if err != nil {
		log.Fatal("failed to create handler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              envOr("ADDR", ":8080"),
		Handler:           newRouter(h, log),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info("devserver listening", zap.String("addr", srv.Addr), zap.String("dispatch", cfg.Dispatch.Mode))
	if err := runServer(ctx, srv); err != nil {
		log.Error("server error", zap.Error(err))
	}

	if local != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := local.Close(drainCtx); err != nil {
			log.Warn("local queue did not drain", zap.Error(err))
		}
	}
}

// envSecrets exposes the LINE and OpenAI credentials from the environment
// under the same parameter names SSM uses.
func envSecrets(prefix string) paramstore.Static {
	return paramstore.Static{
		prefix + paramstore.ChannelSecret:      os.Getenv("LINE_CHANNEL_SECRET"),
		prefix + paramstore.ChannelAccessToken: os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		prefix + paramstore.OpenAIToken:        os.Getenv("OPENAI_API_KEY"),
	}
}

func newRouter(h *handler.Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/callback", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		headers := make(map[string]string, len(req.Header)+1)
		for k := range req.Header {
			headers[k] = req.Header.Get(k)
		}
		headers["X-Correlation-Id"] = middleware.GetReqID(req.Context())

		resp, err := h.Handle(req.Context(), events.APIGatewayProxyRequest{
			HTTPMethod: req.Method,
			Path:       req.URL.Path,
			Headers:    headers,
			Body:       string(body),
		})
		if err != nil {
			log.Error("webhook handler failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write([]byte(resp.Body))
	})
	return r
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
