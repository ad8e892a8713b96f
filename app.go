package main

import (
	"context"
	"fmt"
	"log"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"mtquotesAPI/internal/config"
	"mtquotesAPI/internal/firebaseapp"
	"mtquotesAPI/internal/notification"
	"mtquotesAPI/internal/store"
	"mtquotesAPI/internal/workers"
	"mtquotesAPI/middleware"
	"mtquotesAPI/services"
)

// application holds the wired dependencies shared by the serve and sweep
// commands.
type application struct {
	cfg         config.Config
	store       store.Store
	redisClient *redis.Client
	firebaseApp *firebase.App

	notificationService *services.NotificationService
	paymentService      *services.PaymentService
	subscriptionService *services.SubscriptionService
	renewalService      *services.RenewalService
	verifier            middleware.TokenVerifier
}

func newApplication(ctx context.Context, cfg config.Config, withAuth bool) (*application, error) {
	a := &application{cfg: cfg}

	needFirebase := cfg.StoreBackend == "firestore" || (withAuth && cfg.AuthProvider == "firebase")
	fbApp, err := firebaseapp.New(ctx, cfg.FirebaseProjectID, cfg.FirebaseServiceAccountJSON, cfg.FirebaseCredentialsFile)
	if err != nil {
		if needFirebase {
			return nil, err
		}
		log.Printf("Warning: Firebase not configured, push notifications disabled: %v", err)
	}
	a.firebaseApp = fbApp

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	locker, err := a.openLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.notificationService = services.NewNotificationService()
	if a.firebaseApp != nil {
		fcmService, err := notification.NewFCMService(ctx, a.firebaseApp)
		if err != nil {
			log.Printf("Warning: Could not initialize FCM: %v", err)
		} else {
			a.notificationService.SetPushProvider(fcmService)
			log.Println("FCM Push Provider initialized successfully")
		}
	}

	a.paymentService = services.NewPaymentService(a.store, a.notificationService, cfg.TrialPeriod(), cfg.TrialAmount)
	a.subscriptionService = services.NewSubscriptionService(a.store, a.notificationService)
	a.renewalService = services.NewRenewalService(a.store, locker, a.notificationService, cfg.SweepPageSize, cfg.SweepLockTTL)

	if withAuth {
		if err := a.openVerifier(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *application) openStore(ctx context.Context) error {
	switch a.cfg.StoreBackend {
	case "memory":
		log.Println("Store: using in-memory backend")
		a.store = store.NewMemoryStore()

	case "firestore":
		client, err := a.firebaseApp.Firestore(ctx)
		if err != nil {
			return fmt.Errorf("failed to create firestore client: %w", err)
		}
		a.store = store.NewFirestoreStore(client)
		log.Println("Store: connected to Firestore")

	case "postgres":
		if err := store.Migrate(ctx, a.cfg.DatabaseURL); err != nil {
			return err
		}

		poolConfig, err := pgxpool.ParseConfig(a.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to parse database URL: %w", err)
		}
		poolConfig.MaxConns = 25
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute
		poolConfig.HealthCheckPeriod = time.Minute

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}
		a.store = store.NewPostgresStore(pool)
		log.Println("Store: connected to Postgres")

	default:
		return fmt.Errorf("unknown store backend %q", a.cfg.StoreBackend)
	}
	return nil
}

func (a *application) openLocker(ctx context.Context) (workers.Locker, error) {
	if a.cfg.RedisURL == "" {
		log.Println("Sweep lease: REDIS_URL not set, using in-process lock")
		return workers.NewLocalLocker(), nil
	}
	client, err := workers.NewRedisClient(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.redisClient = client
	log.Println("Sweep lease: using Redis")
	return workers.NewRedisLocker(client), nil
}

func (a *application) openVerifier(ctx context.Context) error {
	switch a.cfg.AuthProvider {
	case "clerk":
		a.verifier = middleware.NewClerkVerifier(a.cfg.ClerkSecretKey)
		log.Println("Clerk initialized successfully")
	default:
		authClient, err := a.firebaseApp.Auth(ctx)
		if err != nil {
			return fmt.Errorf("failed to create firebase auth client: %w", err)
		}
		a.verifier = middleware.NewFirebaseVerifier(authClient)
		log.Println("Firebase Auth initialized successfully")
	}
	return nil
}

func (a *application) Close() {
	if a.notificationService != nil {
		a.notificationService.Stop()
	}
	if a.redisClient != nil {
		a.redisClient.Close()
	}
	if a.store != nil {
		log.Println("Closing store...")
		if err := a.store.Close(); err != nil {
			log.Printf("Store close error: %v", err)
		}
	}
}
