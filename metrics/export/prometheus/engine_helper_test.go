package prometheus

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	goCreds "github.com/MrEthical07/goCreds"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type noUsers struct{}

func (noUsers) FindBySubjectID(context.Context, string) (goCreds.User, error) {
	return goCreds.User{}, goCreds.ErrUserNotFound
}

func (noUsers) FindByEmail(context.Context, string) (goCreds.User, error) {
	return goCreds.User{}, goCreds.ErrUserNotFound
}

func (noUsers) CreateUser(context.Context, goCreds.CreateUserInput) (goCreds.User, error) {
	return goCreds.User{}, goCreds.ErrPersistence
}

func (noUsers) UpdatePasswordHash(context.Context, string, string) error { return nil }
func (noUsers) MarkConfirmed(context.Context, string) error              { return nil }

func newEngine(t *testing.T) *goCreds.Engine {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, accessPriv, _ := ed25519.GenerateKey(rand.Reader)
	_, refreshPriv, _ := ed25519.GenerateKey(rand.Reader)
	key := make([]byte, 32)
	_, _ = rand.Read(key)

	cfg := goCreds.DefaultConfig()
	cfg.JWT.AccessPrivateKey = accessPriv
	cfg.JWT.AccessPublicKey = accessPriv.Public().(ed25519.PublicKey)
	cfg.JWT.RefreshPrivateKey = refreshPriv
	cfg.JWT.RefreshPublicKey = refreshPriv.Public().(ed25519.PublicKey)
	cfg.Crypto.Key = key
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true

	eng, err := goCreds.New().WithConfig(cfg).WithRedis(rdb).WithUserProvider(noUsers{}).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}
