package trustgate

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func fastTestConfig() Config {
	cfg := defaultConfig()
	cfg.Token.SigningKey = testSigningKey
	// Minimum argon2 costs keep the suite fast.
	cfg.Password = PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	return cfg
}

func newTestGate(t *testing.T, mutate func(*Config)) (*Gate, *mockStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := fastTestConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := newMockStore()
	gate, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(store).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(gate.Close)

	return gate, store
}

func seedPrincipal(t *testing.T, gate *Gate, store *mockStore, username, pass string, roles ...Role) PrincipalRecord {
	t.Helper()

	hash, err := gate.hasher.Hash(pass)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if len(roles) == 0 {
		roles = []Role{RoleUser}
	}
	principal, err := store.Create(context.Background(), CreatePrincipalInput{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Roles:        roles,
		Status:       StatusActive,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return principal
}

// mockStore is an in-memory CredentialStore for tests.
type mockStore struct {
	mu      sync.Mutex
	nextID  int
	byID    map[string]PrincipalRecord
	byName  map[string]string
	byEmail map[string]string
	codes   map[string][]RecoveryCodeRecord
}

func newMockStore() *mockStore {
	return &mockStore{
		nextID:  1,
		byID:    map[string]PrincipalRecord{},
		byName:  map[string]string{},
		byEmail: map[string]string{},
		codes:   map[string][]RecoveryCodeRecord{},
	}
}

func (s *mockStore) get(id string) (PrincipalRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	return p, ok
}

func (s *mockStore) FindByUsername(_ context.Context, username string) (PrincipalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[username]
	if !ok {
		return PrincipalRecord{}, ErrPrincipalNotFound
	}
	return s.byID[id], nil
}

func (s *mockStore) FindByID(_ context.Context, id string) (PrincipalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return PrincipalRecord{}, ErrPrincipalNotFound
	}
	return p, nil
}

func (s *mockStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byName[username]
	return ok, nil
}

func (s *mockStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *mockStore) Create(_ context.Context, input CreatePrincipalInput) (PrincipalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byName[input.Username]; taken {
		return PrincipalRecord{}, ErrPrincipalExists
	}
	if _, taken := s.byEmail[input.Email]; taken {
		return PrincipalRecord{}, ErrPrincipalExists
	}

	p := PrincipalRecord{
		ID:               strconv.Itoa(s.nextID),
		Username:         input.Username,
		Email:            input.Email,
		PasswordHash:     input.PasswordHash,
		Roles:            input.Roles,
		Status:           input.Status,
		AccountExpiresAt: input.AccountExpiresAt,
	}
	s.nextID++
	s.byID[p.ID] = p
	s.byName[p.Username] = p.ID
	s.byEmail[p.Email] = p.ID
	return p, nil
}

func (s *mockStore) Save(_ context.Context, id string, update PrincipalUpdate) (PrincipalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return PrincipalRecord{}, ErrPrincipalNotFound
	}

	if update.Status != nil {
		p.Status = *update.Status
	}
	if update.StatusReason != nil {
		p.StatusReason = *update.StatusReason
	}
	if update.FailedAttempts != nil {
		p.FailedAttempts = *update.FailedAttempts
	}
	if update.LastFailedAt != nil {
		p.LastFailedAt = *update.LastFailedAt
	}
	if update.ClearLastFailedAt {
		p.LastFailedAt = time.Time{}
	}
	if update.AccountExpiresAt != nil {
		p.AccountExpiresAt = *update.AccountExpiresAt
	}
	if update.PasswordHash != nil {
		p.PasswordHash = *update.PasswordHash
	}
	if update.MFAEnabled != nil {
		p.MFAEnabled = *update.MFAEnabled
	}
	if update.MFASecret != nil {
		p.MFASecret = update.MFASecret
	}
	if update.ClearMFASecret {
		p.MFASecret = nil
	}

	s.byID[id] = p
	return p, nil
}

func (s *mockStore) GetRecoveryCodes(_ context.Context, id string) ([]RecoveryCodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecoveryCodeRecord(nil), s.codes[id]...), nil
}

func (s *mockStore) ReplaceRecoveryCodes(_ context.Context, id string, codes []RecoveryCodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[id] = append([]RecoveryCodeRecord(nil), codes...)
	return nil
}

func (s *mockStore) ConsumeRecoveryCode(_ context.Context, id string, codeHash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.codes[id]
	for i, c := range codes {
		if c.Hash == codeHash {
			s.codes[id] = append(codes[:i], codes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
