package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"mtquotesAPI/handlers"
	"mtquotesAPI/internal/config"
	"mtquotesAPI/internal/workers"
	"mtquotesAPI/middleware"
	"mtquotesAPI/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mtquotes-api",
		Short:        "Subscription and billing backend for the quotes app",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newSweepCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily renewal sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cfg, !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run the daily sweep in this process")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one renewal sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.renewalService.Sweep(ctx)
			out, _ := json.Marshal(report)
			log.Printf("Sweep report: %s", out)
			return err
		},
	}
}

func serve(cfg config.Config, runScheduler bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	app, err := newApplication(initCtx, cfg, true)
	cancel()
	if err != nil {
		return err
	}
	defer app.Close()

	middleware.InitPrometheus(prometheus.DefaultRegisterer)
	services.RegisterMetrics(prometheus.DefaultRegisterer)

	var schedulerDone <-chan struct{}
	if runScheduler {
		schedulerDone = workers.StartDailyWorker(ctx, "renewal-sweep", cfg.SweepHour, cfg.SweepLocation(), func(ctx context.Context) {
			if _, err := app.renewalService.Sweep(ctx); err != nil {
				log.Printf("Sweep failed: %v", err)
			}
		})
	}

	limiter := middleware.NewRateLimiter(rate.Limit(5), 30)
	stopCleanup := make(chan struct{})
	go limiter.CleanupVisitors(stopCleanup)
	defer close(stopCleanup)

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(app, limiter),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Println("Got shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if schedulerDone != nil {
		<-schedulerDone
	}

	log.Println("Server shutdown complete")
	return nil
}

func newRouter(app *application, limiter *middleware.RateLimiter) http.Handler {
	subscriptionHandler := handlers.NewSubscriptionHandler(app.subscriptionService)
	paymentHandler := handlers.NewPaymentHandler(app.paymentService)
	adminHandler := handlers.NewAdminHandler(app.subscriptionService)
	webhookHandler := handlers.NewWebhookHandler(app.paymentService, app.cfg.WebhookAPIKey, app.cfg.StripeWebhookSecret)

	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.Use(limiter.Middleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(app.cfg.MetricsUser, app.cfg.MetricsPass)(promhttp.Handler()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := app.store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "store unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "mtquotes-api"}`))
	}).Methods("GET")

	r.HandleFunc("/webhooks/payment", webhookHandler.HandlePaymentWebhook).Methods("POST")
	r.HandleFunc("/webhooks/stripe", webhookHandler.HandleStripeWebhook).Methods("POST")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := r.PathPrefix("/api/v1").Subrouter()
	protected.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	protected.Use(middleware.AuthMiddleware(app.verifier))

	protected.HandleFunc("/subscription", subscriptionHandler.GetSubscription).Methods("GET")
	protected.HandleFunc("/subscription/cancel", subscriptionHandler.CancelSubscription).Methods("POST")
	protected.HandleFunc("/payments", paymentHandler.CreatePayment).Methods("POST")
	protected.HandleFunc("/payments/verify", paymentHandler.VerifyPayment).Methods("POST")
	protected.HandleFunc("/admin/points", adminHandler.CreditPoints).Methods("POST")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "x-api-key", "Stripe-Signature"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
	)
	return corsHandler(r)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	w.Write([]byte(`{"error": "method not allowed"}`))
}
