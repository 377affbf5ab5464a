package goCreds

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goCreds/verification"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type memUserProvider struct {
	mu      sync.Mutex
	nextID  int
	byID    map[string]User
	byEmail map[string]string

	failMarkConfirmed int
}

func newMemUserProvider() *memUserProvider {
	return &memUserProvider{
		byID:    map[string]User{},
		byEmail: map[string]string{},
	}
}

func (p *memUserProvider) FindBySubjectID(_ context.Context, subjectID string) (User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[subjectID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (p *memUserProvider) FindByEmail(_ context.Context, email string) (User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return p.byID[id], nil
}

func (p *memUserProvider) CreateUser(_ context.Context, in CreateUserInput) (User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byEmail[in.Email]; ok {
		return User{}, ErrAlreadyExists
	}
	p.nextID++
	u := User{
		SubjectID:    "user-" + strconv.Itoa(p.nextID),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
	}
	p.byID[u.SubjectID] = u
	p.byEmail[u.Email] = u.SubjectID
	return u, nil
}

func (p *memUserProvider) UpdatePasswordHash(_ context.Context, subjectID, hash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[subjectID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	p.byID[subjectID] = u
	return nil
}

func (p *memUserProvider) MarkConfirmed(_ context.Context, subjectID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failMarkConfirmed > 0 {
		p.failMarkConfirmed--
		return errors.New("user store down")
	}
	u, ok := p.byID[subjectID]
	if !ok {
		return ErrUserNotFound
	}
	u.Confirmed = true
	p.byID[subjectID] = u
	return nil
}

func (p *memUserProvider) user(t *testing.T, subjectID string) User {
	t.Helper()
	u, err := p.FindBySubjectID(context.Background(), subjectID)
	if err != nil {
		t.Fatalf("user %s: %v", subjectID, err)
	}
	return u
}

type recordingNotifier struct {
	mu            sync.Mutex
	verifications []Delivery
	passwords     []PasswordDelivery
	failPassword  bool
	failVerify    bool
}

func (n *recordingNotifier) DeliverVerification(_ context.Context, d Delivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failVerify {
		return errors.New("smtp down")
	}
	n.verifications = append(n.verifications, d)
	return nil
}

func (n *recordingNotifier) DeliverPassword(_ context.Context, d PasswordDelivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failPassword {
		return errors.New("smtp down")
	}
	n.passwords = append(n.passwords, d)
	return nil
}

func (n *recordingNotifier) lastToken(t *testing.T, purpose verification.Purpose) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.verifications) - 1; i >= 0; i-- {
		if n.verifications[i].Purpose == purpose {
			return n.verifications[i].Token
		}
	}
	t.Fatalf("no %s delivery recorded", purpose)
	return ""
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.verifications)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig(t *testing.T) Config {
	t.Helper()

	_, accessPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate access key: %v", err)
	}
	_, refreshPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate refresh key: %v", err)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("crypto key: %v", err)
	}

	cfg := DefaultConfig()
	cfg.JWT.AccessPrivateKey = accessPriv
	cfg.JWT.AccessPublicKey = accessPriv.Public().(ed25519.PublicKey)
	cfg.JWT.RefreshPrivateKey = refreshPriv
	cfg.JWT.RefreshPublicKey = refreshPriv.Public().(ed25519.PublicKey)
	cfg.Crypto.Key = key
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type testEnv struct {
	engine   *Engine
	users    *memUserProvider
	notifier *recordingNotifier
	clock    *testClock
	mr       *miniredis.Miniredis
	rdb      *redis.Client
}

func newTestEnv(t *testing.T, mutate func(*Config), extra ...func(*Builder)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		users:    newMemUserProvider(),
		notifier: &recordingNotifier{},
		clock:    newTestClock(),
		mr:       mr,
		rdb:      rdb,
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(env.users).
		WithNotifier(env.notifier).
		WithClock(env.clock.Now)
	for _, fn := range extra {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) register(t *testing.T, email, pw string) AuthResult {
	t.Helper()
	res, err := env.engine.Register(context.Background(), email, pw)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}
