package main

import (
	"context"
	"fmt"

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
	"burndown/internal/shared/config"
)

// runtime is the wired sync service plus the handles that must be closed.
type runtime struct {
	service *plaidsync.Service
	meter   *budget.Meter

	db        *postgres.DB
	firestore *firestore.Client
	storage   *storage.Client
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	rt.db = db

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		rt.close()
		return nil, err
	}

	var budgetStore budget.Store = postgres.NewBudgetStore(db)
	if cfg.Budget.Backend == "firestore" {
		rt.firestore, err = firebase.NewFirestoreClient(ctx, cfg.Firebase.CredentialsFile, cfg.Firebase.ProjectID)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("budget store: %w", err)
		}
		budgetStore = firebase.NewBudgetStore(rt.firestore)
	}

	var documents ledger.Store = postgres.NewDocumentStore(db)
	if cfg.Storage.DocumentBackend == "gcs" {
		rt.storage, err = gcs.NewClient(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("document store: %w", err)
		}
		documents = gcs.NewDocumentStore(rt.storage, cfg.Storage.GCSBucket, cfg.Storage.GCSPrefix)
	}

	rt.meter = budget.NewMeter(budgetStore, budget.Config{
		MonthlyBudget: cfg.Budget.MonthlyBudget,
		CostPerCall:   cfg.Budget.CostPerCall,
		Cooldown:      cfg.Budget.SyncCooldown,
	})

	client := plaid.NewGuardedClient(plaid.NewClient(plaid.Config{
		BaseURL:      cfg.Plaid.BaseURL(),
		ClientID:     cfg.Plaid.ClientID,
		Secret:       cfg.Plaid.Secret,
		ClientName:   cfg.Plaid.ClientName,
		Products:     cfg.Plaid.Products,
		CountryCodes: cfg.Plaid.CountryCodes,
	}), rt.meter, cfg.Budget.Strict)

	rt.service = plaidsync.NewService(client, postgres.NewConnectionRepository(db, encryptor), documents, rt.meter, plaidsync.Options{
		PageSize:        cfg.Plaid.PageSize,
		EnforceCooldown: cfg.Budget.EnforceCooldown,
	})

	return rt, nil
}

func (rt *runtime) close() {
	if rt.firestore != nil {
		rt.firestore.Close()
	}
	if rt.storage != nil {
		rt.storage.Close()
	}
	if rt.db != nil {
		rt.db.Close()
	}
}
