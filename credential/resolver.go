// Package credential implements the Credential Resolver (C1): mapping an
// API key to a project, then resolving either the project's own (BYOK)
// provider credential or the shared free-model pool credential.
package credential

import (
	"context"

	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/types"
)

// Result is the outcome of a successful Resolve call.
type Result struct {
	Secret       string
	Source       types.CredentialSource
	IsFreeModel  bool
	CredentialID uint // 0 when Source is SourcePool (no row to touch)
}

// lastUsedUpdate is queued on a buffered channel and drained by a
// background goroutine, so the request path never blocks on the store's
// last_used_at write (spec §4.1: "updated asynchronously").
type lastUsedUpdate struct {
	credentialID uint
}

// Resolver implements C1. It never logs or returns plaintext secrets
// except via Result.Secret to its direct caller.
type Resolver struct {
	apiKeys          APIKeyStore
	creds            CredentialStore
	masterSecret     string
	poolKeys         map[types.Provider]string
	freeModels       map[string]bool
	logger           *zap.Logger
	lastUsedCh       chan lastUsedUpdate
}

// Config configures a Resolver.
type Config struct {
	MasterSecret string
	PoolKeys     map[types.Provider]string
	FreeModels   []string // exact model identifiers eligible for pool use
}

// NewResolver creates a Resolver and starts its background last_used_at
// drain loop, which runs until Close closes the update channel (matching
// the teacher's `go pm.healthCheckLoop()` fire-and-forget background
// pattern).
func NewResolver(apiKeys APIKeyStore, creds CredentialStore, cfg Config, logger *zap.Logger) *Resolver {
	freeModels := make(map[string]bool, len(cfg.FreeModels))
	for _, m := range cfg.FreeModels {
		freeModels[m] = true
	}

	r := &Resolver{
		apiKeys:      apiKeys,
		creds:        creds,
		masterSecret: cfg.MasterSecret,
		poolKeys:     cfg.PoolKeys,
		freeModels:   freeModels,
		logger:       logger.With(zap.String("component", "credential_resolver")),
		lastUsedCh:   make(chan lastUsedUpdate, 256),
	}
	go r.drainLastUsed()
	return r
}

// Resolve implements spec §4.1's algorithm: validate the api key, prefer
// an active BYOK credential for provider, else fall back to the pool if
// model is free-tier, else fail PaidModelRequiresBYOK.
func (r *Resolver) Resolve(ctx context.Context, apiKey, provider, model string) (*Result, string, *types.Error) {
	projectID, err := r.apiKeys.ResolveProjectID(ctx, apiKey)
	if err != nil || projectID == "" {
		return nil, "", types.NewError(types.ErrUnauthorized, "invalid API key")
	}

	cred, err := r.creds.ActiveCredential(ctx, projectID, types.Provider(provider))
	if err != nil {
		return nil, projectID, types.NewError(types.ErrInternalError, "credential lookup failed").WithCause(err)
	}

	if cred != nil {
		secret, ok := Decrypt(r.masterSecret, cred.EncryptedSecret, cred.IV)
		if ok {
			r.enqueueTouch(cred.ID)
			return &Result{
				Secret:       secret,
				Source:       types.SourceBYOK,
				IsFreeModel:  r.freeModels[model],
				CredentialID: cred.ID,
			}, projectID, nil
		}
		r.logger.Warn("credential decryption failed, falling through to pool",
			zap.String("project", projectID), zap.String("provider", provider))
	}

	if r.freeModels[model] {
		poolSecret, ok := r.poolKeys[types.Provider(provider)]
		if !ok || poolSecret == "" {
			return nil, projectID, types.NewError(types.ErrPaidModelRequiresBYOK,
				"no pool credential configured for provider "+provider)
		}
		return &Result{
			Secret:      poolSecret,
			Source:      types.SourcePool,
			IsFreeModel: true,
		}, projectID, nil
	}

	return nil, projectID, types.NewError(types.ErrPaidModelRequiresBYOK,
		"BYOK Required: The model \""+model+"\" is a paid model; configure a provider credential or use a free-tier model")
}

func (r *Resolver) enqueueTouch(credentialID uint) {
	select {
	case r.lastUsedCh <- lastUsedUpdate{credentialID: credentialID}:
	default:
		r.logger.Warn("last_used_at queue full, dropping update", zap.Uint("credential_id", credentialID))
	}
}

func (r *Resolver) drainLastUsed() {
	for update := range r.lastUsedCh {
		if err := r.creds.TouchLastUsed(context.Background(), update.credentialID); err != nil {
			r.logger.Warn("failed to update last_used_at", zap.Uint("credential_id", update.credentialID), zap.Error(err))
		}
	}
}

// Close stops accepting last_used_at updates and lets the drain goroutine
// exit once the channel empties.
func (r *Resolver) Close() {
	close(r.lastUsedCh)
}
