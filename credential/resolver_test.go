package credential

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/types"
)

type fakeAPIKeyStore struct {
	keys map[string]string
}

func (f *fakeAPIKeyStore) ResolveProjectID(_ context.Context, apiKey string) (string, error) {
	return f.keys[apiKey], nil
}

type fakeCredentialStore struct {
	mu         sync.Mutex
	creds      map[string]*types.ProviderCredential // key: project:provider
	touchCount map[uint]int
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{
		creds:      make(map[string]*types.ProviderCredential),
		touchCount: make(map[uint]int),
	}
}

func (f *fakeCredentialStore) ActiveCredential(_ context.Context, project string, provider types.Provider) (*types.ProviderCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds[project+":"+string(provider)], nil
}

func (f *fakeCredentialStore) TouchLastUsed(_ context.Context, credentialID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touchCount[credentialID]++
	return nil
}

func (f *fakeCredentialStore) touches(id uint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touchCount[id]
}

const testMasterSecret = "a-32-byte-long-master-secret!!!"

func TestResolve_BYOK_Success(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{keys: map[string]string{"sk-proj-1": "proj-1"}}
	creds := newFakeCredentialStore()

	ciphertext, iv, err := Encrypt(testMasterSecret, "upstream-secret-value")
	require.NoError(t, err)
	creds.creds["proj-1:openai"] = &types.ProviderCredential{
		ID: 7, Project: "proj-1", Provider: types.ProviderOpenAI,
		EncryptedSecret: ciphertext, IV: iv, Active: true,
	}

	r := NewResolver(apiKeys, creds, Config{MasterSecret: testMasterSecret}, zap.NewNop())
	defer r.Close()

	result, project, errResp := r.Resolve(context.Background(), "sk-proj-1", "openai", "gpt-4o")
	require.Nil(t, errResp)
	assert.Equal(t, "proj-1", project)
	assert.Equal(t, "upstream-secret-value", result.Secret)
	assert.Equal(t, types.SourceBYOK, result.Source)

	// last_used_at touch happens asynchronously.
	assert.Eventually(t, func() bool { return creds.touches(7) == 1 }, time.Second, 5*time.Millisecond)
}

func TestResolve_FreeModelPoolFallback(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{keys: map[string]string{"sk-proj-2": "proj-2"}}
	creds := newFakeCredentialStore()

	r := NewResolver(apiKeys, creds, Config{
		MasterSecret: testMasterSecret,
		PoolKeys:     map[types.Provider]string{types.ProviderOpenRouter: "pool-secret"},
		FreeModels:   []string{"mistralai/mistral-7b-instruct:free"},
	}, zap.NewNop())
	defer r.Close()

	result, _, errResp := r.Resolve(context.Background(), "sk-proj-2", "openrouter", "mistralai/mistral-7b-instruct:free")
	require.Nil(t, errResp)
	assert.Equal(t, "pool-secret", result.Secret)
	assert.Equal(t, types.SourcePool, result.Source)
	assert.True(t, result.IsFreeModel)
}

func TestResolve_PaidModelWithoutCredentialFails(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{keys: map[string]string{"sk-proj-3": "proj-3"}}
	creds := newFakeCredentialStore()

	r := NewResolver(apiKeys, creds, Config{MasterSecret: testMasterSecret}, zap.NewNop())
	defer r.Close()

	result, _, errResp := r.Resolve(context.Background(), "sk-proj-3", "openai", "gpt-4o")
	require.NotNil(t, errResp)
	assert.Equal(t, types.ErrPaidModelRequiresBYOK, errResp.Code)
	assert.Nil(t, result)
}

func TestResolve_InvalidAPIKeyFails(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{keys: map[string]string{}}
	creds := newFakeCredentialStore()

	r := NewResolver(apiKeys, creds, Config{MasterSecret: testMasterSecret}, zap.NewNop())
	defer r.Close()

	_, _, errResp := r.Resolve(context.Background(), "sk-unknown", "openai", "gpt-4o")
	require.NotNil(t, errResp)
	assert.Equal(t, types.ErrUnauthorized, errResp.Code)
}

func TestResolve_DecryptFailureFallsThroughToPool(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{keys: map[string]string{"sk-proj-4": "proj-4"}}
	creds := newFakeCredentialStore()

	// Encrypted under a different master secret than the resolver uses.
	ciphertext, iv, err := Encrypt("a-different-master-secret-here!", "upstream-secret")
	require.NoError(t, err)
	creds.creds["proj-4:openrouter"] = &types.ProviderCredential{
		ID: 9, Project: "proj-4", Provider: types.ProviderOpenRouter,
		EncryptedSecret: ciphertext, IV: iv, Active: true,
	}

	r := NewResolver(apiKeys, creds, Config{
		MasterSecret: testMasterSecret,
		PoolKeys:     map[types.Provider]string{types.ProviderOpenRouter: "pool-secret"},
		FreeModels:   []string{"mistralai/mistral-7b-instruct:free"},
	}, zap.NewNop())
	defer r.Close()

	result, _, errResp := r.Resolve(context.Background(), "sk-proj-4", "openrouter", "mistralai/mistral-7b-instruct:free")
	require.Nil(t, errResp)
	assert.Equal(t, types.SourcePool, result.Source)
}
