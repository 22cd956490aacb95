package main

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"

	"burndown/internal/domain/budget"
	"burndown/internal/domain/ledger"
	"burndown/internal/domain/plaidsync"
	"burndown/internal/infrastructure/crypto"
	"burndown/internal/infrastructure/firebase"
	"burndown/internal/infrastructure/gcs"
	"burndown/internal/infrastructure/plaid"
	"burndown/internal/infrastructure/postgres"
	httphandlers "burndown/internal/interfaces/http"
	"burndown/internal/shared/auth"
	"burndown/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB        *postgres.DB
	Firestore *firestore.Client
	Storage   *storage.Client

	// Handlers
	PlaidHandler  *httphandlers.PlaidHandler
	HealthHandler *httphandlers.HealthHandler

	// Auth
	JWT *auth.JWT

	// Scheduler
	SyncService    *plaidsync.Service
	ConnectionRepo *postgres.ConnectionRepository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	deps.DB = db
	log.Println("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		deps.Close()
		return nil, err
	}

	connectionRepo := postgres.NewConnectionRepository(db, encryptor)

	budgetStore, err := deps.budgetStore(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}

	documentStore, err := deps.documentStore(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}

	meter := budget.NewMeter(budgetStore, budget.Config{
		MonthlyBudget: cfg.Budget.MonthlyBudget,
		CostPerCall:   cfg.Budget.CostPerCall,
		Cooldown:      cfg.Budget.SyncCooldown,
	})
	log.Printf("Plaid budget: %d calls/month (strict=%t, cooldown=%s enforced=%t)",
		meter.Limit(), cfg.Budget.Strict, cfg.Budget.SyncCooldown, cfg.Budget.EnforceCooldown)

	client := plaid.NewGuardedClient(plaid.NewClient(plaid.Config{
		BaseURL:      cfg.Plaid.BaseURL(),
		ClientID:     cfg.Plaid.ClientID,
		Secret:       cfg.Plaid.Secret,
		ClientName:   cfg.Plaid.ClientName,
		Products:     cfg.Plaid.Products,
		CountryCodes: cfg.Plaid.CountryCodes,
	}), meter, cfg.Budget.Strict)

	syncService := plaidsync.NewService(client, connectionRepo, documentStore, meter, plaidsync.Options{
		PageSize:        cfg.Plaid.PageSize,
		EnforceCooldown: cfg.Budget.EnforceCooldown,
	})

	deps.PlaidHandler = httphandlers.NewPlaidHandler(syncService)
	deps.HealthHandler = httphandlers.NewHealthHandler(db)
	deps.JWT = auth.NewJWT(cfg.JWT.Secret)
	deps.SyncService = syncService
	deps.ConnectionRepo = connectionRepo

	return deps, nil
}

func (d *Dependencies) budgetStore(ctx context.Context, cfg *config.Config) (budget.Store, error) {
	if cfg.Budget.Backend != "firestore" {
		return postgres.NewBudgetStore(d.DB), nil
	}

	client, err := firebase.NewFirestoreClient(ctx, cfg.Firebase.CredentialsFile, cfg.Firebase.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("budget store: %w", err)
	}
	d.Firestore = client
	log.Println("Budget counters stored in Firestore")
	return firebase.NewBudgetStore(client), nil
}

func (d *Dependencies) documentStore(ctx context.Context, cfg *config.Config) (ledger.Store, error) {
	if cfg.Storage.DocumentBackend != "gcs" {
		return postgres.NewDocumentStore(d.DB), nil
	}

	client, err := gcs.NewClient(ctx, cfg.Firebase.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}
	d.Storage = client
	log.Printf("Household documents stored in gs://%s/%s", cfg.Storage.GCSBucket, cfg.Storage.GCSPrefix)
	return gcs.NewDocumentStore(client, cfg.Storage.GCSBucket, cfg.Storage.GCSPrefix), nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Firestore != nil {
		if err := d.Firestore.Close(); err != nil {
			log.Printf("Error closing Firestore client: %v", err)
		}
	}
	if d.Storage != nil {
		if err := d.Storage.Close(); err != nil {
			log.Printf("Error closing storage client: %v", err)
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
