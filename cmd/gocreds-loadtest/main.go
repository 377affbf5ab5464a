// gocreds-loadtest registers a population of users against a goCreds engine and
// then measures access-token verification and refresh rotation under load.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand/v2"
	"os"
	"slices"
	"sync"
	"time"

	goCreds "github.com/MrEthical07/goCreds"
	"github.com/MrEthical07/goCreds/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

type options struct {
	users       int
	concurrency int
	ops         int
	redisAddr   string
	metrics     bool
}

// userState tracks the live refresh token of one user. Rotation invalidates the
// previous token, so each user's refreshes are serialised.
type userState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("gocreds-loadtest", pflag.ContinueOnError)
	fs.IntVar(&opts.users, "users", 500, "number of users to register")
	fs.IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	fs.IntVar(&opts.ops, "ops", 20000, "operations per phase (verify + refresh)")
	fs.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	fs.BoolVar(&opts.metrics, "metrics", false, "print engine metrics in Prometheus format after the run")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.users <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return options{}, errors.New("users, concurrency, and ops must be > 0")
	}
	if opts.redisAddr == "" {
		opts.redisAddr = os.Getenv("REDIS_ADDR")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	client, cleanup, err := connect(opts.redisAddr, out)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := buildEngine(client)
	if err != nil {
		return err
	}
	defer engine.Close()

	states := make([]userState, opts.users)
	fmt.Fprintf(out, "registering %d users...\n", opts.users)
	seeded := time.Now()
	for i := range states {
		res, err := engine.Register(ctx, fmt.Sprintf("load-%d@example.com", i), "load-test-password")
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
		states[i].access = res.Tokens.AccessToken
		states[i].refresh = res.Tokens.RefreshToken
	}
	fmt.Fprintf(out, "registered in %s\n", time.Since(seeded).Round(time.Millisecond))

	verifyStats := runPhase(opts.ops, opts.concurrency, 7919, func(r *mrand.Rand) error {
		s := &states[r.IntN(len(states))]
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, err := engine.VerifyAccess(ctx, token)
		return err
	})

	refreshStats := runPhase(opts.ops, opts.concurrency, 6151, func(r *mrand.Rand) error {
		s := &states[r.IntN(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		pair, err := engine.RefreshAccessToken(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access = pair.AccessToken
		s.refresh = pair.RefreshToken
		return nil
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "verify", verifyStats)
	printStats(out, "refresh", refreshStats)

	if opts.metrics {
		fmt.Fprint(out, prometheus.New(engine).Render())
	}
	return nil
}

func connect(addr string, out io.Writer) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Fprintf(out, "using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildEngine(client redis.UniversalClient) (*goCreds.Engine, error) {
	_, accessPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	_, refreshPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	cfg := goCreds.DefaultConfig()
	cfg.JWT.AccessPrivateKey = accessPriv
	cfg.JWT.AccessPublicKey = accessPriv.Public().(ed25519.PublicKey)
	cfg.JWT.RefreshPrivateKey = refreshPriv
	cfg.JWT.RefreshPublicKey = refreshPriv.Public().(ed25519.PublicKey)
	cfg.Crypto.Key = key
	// Registration cost is not what is being measured.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Verification.ConfirmOnRegister = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	return goCreds.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(newUserDirectory()).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
}

type phaseStats struct {
	elapsed  time.Duration
	ops      int
	failures int
	sorted   []time.Duration
}

// runPhase spreads ops calls of fn over concurrency workers, each with its own
// random source, and collects per-call latencies.
func runPhase(ops, concurrency int, seed uint64, fn func(r *mrand.Rand) error) phaseStats {
	jobs := make(chan struct{}, ops)
	for range ops {
		jobs <- struct{}{}
	}
	close(jobs)

	type result struct {
		latencies []time.Duration
		failures  int
	}
	results := make(chan result, concurrency)

	began := time.Now()
	for w := range concurrency {
		go func() {
			r := mrand.New(mrand.NewPCG(seed, uint64(w)))
			var res result
			for range jobs {
				callStart := time.Now()
				if err := fn(r); err != nil {
					res.failures++
				}
				res.latencies = append(res.latencies, time.Since(callStart))
			}
			results <- res
		}()
	}

	stats := phaseStats{sorted: make([]time.Duration, 0, ops)}
	for range concurrency {
		res := <-results
		stats.sorted = append(stats.sorted, res.latencies...)
		stats.failures += res.failures
	}
	stats.elapsed = time.Since(began)
	stats.ops = len(stats.sorted)
	slices.Sort(stats.sorted)
	return stats
}

// percentile reads the p-th percentile from ascending samples.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted) - 1) * min(max(p, 0), 100) / 100
	return sorted[idx]
}

func printStats(out io.Writer, name string, s phaseStats) {
	var throughput float64
	if s.elapsed > 0 {
		throughput = float64(s.ops) / s.elapsed.Seconds()
	}
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f", name, s.ops, s.failures, s.elapsed.Round(time.Millisecond), throughput)
	for _, p := range []int{50, 95, 99} {
		fmt.Fprintf(out, " p%d=%s", p, percentile(s.sorted, p).Round(time.Microsecond))
	}
	fmt.Fprintln(out)
}
