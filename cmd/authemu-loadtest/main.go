// Command authemu-loadtest drives an in-process engine through password
// sign-ins and refresh grants and reports latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authemu"
	"github.com/MrEthical07/authemu/notify"
)

type account struct {
	email   string
	refresh string
	mu      sync.Mutex
}

const loadPassword = "load-password-123"

func main() {
	var (
		accounts    = flag.Int("accounts", 5000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (sign-in + refresh)")
		tenants     = flag.Int("tenants", 1, "spread accounts over this many tenants (1 = agent project only)")
		redisAddr   = flag.String("redis-addr", "", "redis address for the notifier; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *tenants <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, ops and tenants must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := authemu.New().
		WithNotifier(notify.NewRedisNotifier(client, "authemu:loadtest", "")).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	targets, err := seedTargets(ctx, engine, *tenants)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create tenants: %v\n", err)
		os.Exit(1)
	}

	states := make([]account, *accounts)
	fmt.Printf("seeding %d accounts over %d namespace(s)...\n", *accounts, len(targets))
	startSeed := time.Now()
	for i := range states {
		email := fmt.Sprintf("user-%d@load.test", i)
		resp, err := engine.SignUp(ctx, targets[i%len(targets)], &authemu.SignUpRequest{Email: email, Password: loadPassword})
		if err != nil {
			fmt.Fprintf(os.Stderr, "signUp failed: %v\n", err)
			os.Exit(1)
		}
		states[i].email = email
		states[i].refresh = resp.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	signInStats := runPhase(*ops, *concurrency, len(states), func(idx int) error {
		_, err := engine.SignInWithPassword(ctx, targets[idx%len(targets)], &authemu.SignInWithPasswordRequest{
			Email:    states[idx].email,
			Password: loadPassword,
		})
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, len(states), func(idx int) error {
		a := &states[idx]
		a.mu.Lock()
		defer a.mu.Unlock()
		resp, err := engine.GrantToken(ctx, targets[idx%len(targets)], &authemu.GrantTokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: a.refresh,
		})
		if err == nil {
			a.refresh = resp.RefreshToken
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("signInWithPassword", signInStats)
	printStats("grantToken", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: signIn ok=%d failed=%d idTokens=%d refreshes=%d\n",
		snap.Counters[authemu.MetricSignInSuccess],
		snap.Counters[authemu.MetricSignInFailure],
		snap.Counters[authemu.MetricIDTokenIssued],
		snap.Counters[authemu.MetricRefreshGranted],
	)
}

// seedTargets returns the agent project plus n-1 tenants that accept
// password sign-up.
func seedTargets(ctx context.Context, engine *authemu.Engine, n int) ([]authemu.Target, error) {
	out := []authemu.Target{{}}
	allow := true
	for i := 1; i < n; i++ {
		tenant, err := engine.CreateTenant(ctx, authemu.Target{Privileged: true}, &authemu.CreateTenantRequest{
			TenantConfig: authemu.TenantConfig{
				DisplayName:         fmt.Sprintf("load-%d", i),
				AllowPasswordSignup: &allow,
			},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, authemu.Target{TenantID: tenant.TenantID})
	}
	return out, nil
}

func runPhase(ops, concurrency, population int, op func(idx int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r.Intn(population))
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
