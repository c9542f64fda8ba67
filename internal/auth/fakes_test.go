// AngelaMos | 2026
// fakes_test.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/petlove/backoffice-api/internal/config"
	"github.com/petlove/backoffice-api/internal/core"
	"github.com/petlove/backoffice-api/internal/notify"
	"github.com/petlove/backoffice-api/internal/signedtoken"
)

const testSigningKey = "test-signing-key-with-at-least-32-bytes!"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		SigningKey:         testSigningKey,
		Issuer:             "petlove-backoffice",
		Audience:           "petlove-backoffice-api",
		AccessTokenExpire:  60 * time.Minute,
		RefreshTokenExpire: 168 * time.Hour,
	}
}

type memRefreshRepo struct {
	mu        sync.Mutex
	tokens    map[string]*RefreshToken
	createErr error
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{tokens: make(map[string]*RefreshToken)}
}

func (m *memRefreshRepo) Create(_ context.Context, token *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.tokens[token.TokenHash]; exists {
		return core.ErrDuplicateKey
	}
	stored := *token
	m.tokens[token.TokenHash] = &stored
	return nil
}

func (m *memRefreshRepo) FindByHash(_ context.Context, hash string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[hash]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	found := *t
	return &found, nil
}

func (m *memRefreshRepo) Rotate(
	_ context.Context,
	oldHash string,
	next *RefreshToken,
	now time.Time,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.tokens[oldHash]
	if !ok || !current.IsActive(now) {
		return fmt.Errorf("mark refresh token used: %w", core.ErrTokenInactive)
	}
	if _, exists := m.tokens[next.TokenHash]; exists {
		return core.ErrDuplicateKey
	}

	current.Used = true
	current.UsedAt = &now
	replacedBy := next.TokenHash
	current.ReplacedBy = &replacedBy

	stored := *next
	m.tokens[next.TokenHash] = &stored
	return nil
}

func (m *memRefreshRepo) revokeWhere(
	match func(*RefreshToken) bool,
	reason string,
	now time.Time,
) int64 {
	var count int64
	for _, t := range m.tokens {
		if t.Revoked || !match(t) {
			continue
		}
		t.Revoked = true
		t.RevokedAt = &now
		r := reason
		t.RevocationReason = &r
		count++
	}
	return count
}

func (m *memRefreshRepo) Revoke(_ context.Context, hash, reason string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.revokeWhere(func(t *RefreshToken) bool { return t.TokenHash == hash }, reason, now)
	return nil
}

func (m *memRefreshRepo) RevokeFamily(
	_ context.Context,
	familyID, reason string,
	now time.Time,
) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.revokeWhere(func(t *RefreshToken) bool { return t.FamilyID == familyID }, reason, now), nil
}

func (m *memRefreshRepo) RevokeAllForUser(
	_ context.Context,
	userID int64,
	reason string,
	now time.Time,
) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.revokeWhere(func(t *RefreshToken) bool { return t.UserID == userID }, reason, now), nil
}

func (m *memRefreshRepo) ActiveForUser(
	_ context.Context,
	userID int64,
	now time.Time,
) ([]RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID && t.IsActive(now) {
			active = append(active, *t)
		}
	}
	return active, nil
}

func (m *memRefreshRepo) CountActive(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, t := range m.tokens {
		if t.IsActive(now) {
			count++
		}
	}
	return count, nil
}

func (m *memRefreshRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for hash, t := range m.tokens {
		if t.ExpiresAt.Before(before) {
			delete(m.tokens, hash)
			count++
		}
	}
	return count, nil
}

func (m *memRefreshRepo) byUser(userID int64) []RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tokens []RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID {
			tokens = append(tokens, *t)
		}
	}
	return tokens
}

type memUsers struct {
	mu        sync.Mutex
	nextID    int64
	users     map[int64]*UserInfo
	updateErr error
	updates   int
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[int64]*UserInfo), nextID: 100}
}

func (m *memUsers) add(u UserInfo) *UserInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := u
	m.users[u.ID] = &stored
	return &stored
}

func (m *memUsers) get(id int64) UserInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			found := *u
			return &found, nil
		}
	}
	return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	found := *u
	return &found, nil
}

func (m *memUsers) Create(
	_ context.Context,
	email, passwordHash, name string,
) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			return nil, fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
	}

	m.nextID++
	u := &UserInfo{
		ID:           m.nextID,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		RoleID:       2,
		Role:         "Cliente",
		Active:       true,
	}
	m.users[u.ID] = u
	found := *u
	return &found, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.PasswordHash = hash
	m.updates++
	return nil
}

func (m *memUsers) MarkEmailVerified(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return core.ErrNotFound
	}
	now := time.Now()
	u.EmailVerifiedAt = &now
	return nil
}

type fakeResetter struct {
	mu        sync.Mutex
	requested []string
	userID    int64
	err       error
	lastCode  string
	lastLink  string
}

func (f *fakeResetter) RequestReset(_ context.Context, email, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, email)
	return f.err
}

func (f *fakeResetter) VerifyCode(_ context.Context, _, code string) (bool, error) {
	return code == "123456", f.err
}

func (f *fakeResetter) ConsumeAndReset(_ context.Context, _, code, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCode = code
	return f.userID, f.err
}

func (f *fakeResetter) ConsumeLinkAndReset(_ context.Context, _, link, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLink = link
	return f.userID, f.err
}

type fakeBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	err     error
}

func newFakeBlacklist() *fakeBlacklist {
	return &fakeBlacklist{entries: make(map[string]time.Time)}
}

func (f *fakeBlacklist) Add(_ context.Context, jti string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries[jti] = expiresAt
	return nil
}

func (f *fakeBlacklist) Contains(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.entries[jti]
	return ok, nil
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (r *recordingMailer) Dispatch(_ context.Context, msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordingMailer) sent() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.messages...)
}

type testEnv struct {
	clock     *testClock
	users     *memUsers
	repo      *memRefreshRepo
	resets    *fakeResetter
	blacklist *fakeBlacklist
	mailer    *recordingMailer
	hasher    *core.BcryptHasher
	jwt       *JWTManager
	store     *RefreshStore
	links     *signedtoken.Codec
	service   *Service
}

func newTestEnv(legacyFallback bool) *testEnv {
	env := &testEnv{
		clock:     newTestClock(),
		users:     newMemUsers(),
		repo:      newMemRefreshRepo(),
		resets:    &fakeResetter{},
		blacklist: newFakeBlacklist(),
		mailer:    &recordingMailer{},
		hasher:    core.NewPasswordHasherWithCost(bcrypt.MinCost),
	}

	jwtManager, err := NewJWTManager(testJWTConfig(), WithJWTClock(env.clock.Now))
	if err != nil {
		panic(err)
	}
	env.jwt = jwtManager

	links, err := signedtoken.New([]byte("signed-token-secret"), signedtoken.WithClock(env.clock.Now))
	if err != nil {
		panic(err)
	}
	env.links = links

	env.store = NewRefreshStore(env.repo, testJWTConfig().RefreshTokenExpire, WithStoreClock(env.clock.Now))
	env.service = NewService(Dependencies{
		Users:     env.users,
		Hasher:    env.hasher,
		JWT:       env.jwt,
		Refresh:   env.store,
		Resets:    env.resets,
		Links:     env.links,
		Blacklist: env.blacklist,
		Mailer:    env.mailer,
	}, Config{
		LegacyPasswordFallback: legacyFallback,
		WelcomeTTL:             time.Hour,
		FrontendURL:            "https://backoffice.petlove.test",
	})
	return env
}

// seedAdmin stores the administrator account the way the seed migration
// does, with a plaintext password awaiting upgrade.
func (e *testEnv) seedAdmin() *UserInfo {
	return e.users.add(UserInfo{
		ID:           1,
		Email:        "admin@petlove.com",
		Name:         "Administrador Petlove",
		PasswordHash: "admin123",
		RoleID:       1,
		Role:         "Administrador",
		Active:       true,
	})
}

func (e *testEnv) seedCustomer(password string) *UserInfo {
	hash, err := e.hasher.Hash(password)
	if err != nil {
		panic(err)
	}
	return e.users.add(UserInfo{
		ID:           2,
		Email:        "cliente@petlove.com",
		Name:         "Cliente",
		PasswordHash: hash,
		RoleID:       2,
		Role:         "Cliente",
		Active:       true,
	})
}

var errStoreDown = errors.New("store unavailable")
