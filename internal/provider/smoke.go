package provider

import (
	"os"
	"strings"
	"sync"
)

// SkipSmokeTestEnv disables the one-shot auth validation when set to 1.
const SkipSmokeTestEnv = "SKIP_SMOKE_TEST"

// smokeReply is the exact payload the provider must echo back.
const smokeReply = "AUTH_OK"

// SmokePrompt is the minimal completion used to validate credentials.
const SmokePrompt = "Reply with exactly AUTH_OK"

// inflightSmoke lets concurrent first calls share one validation.
type inflightSmoke struct {
	done chan struct{}
	err  error
}

// smokeGate runs the auth smoke test once per process per credential.
// A failed test blocks subsequent calls until the credential changes
// (a refresh or an external re-login yields a new fingerprint).
type smokeGate struct {
	mu       sync.Mutex
	state    map[string]error // credential fingerprint -> result (nil = passed)
	inflight map[string]*inflightSmoke
}

func newSmokeGate() *smokeGate {
	return &smokeGate{
		state:    make(map[string]error),
		inflight: make(map[string]*inflightSmoke),
	}
}

// ensure runs the smoke test for the given credential fingerprint unless
// it already ran. Concurrent callers await the single in-flight run.
func (g *smokeGate) ensure(fingerprint string, run func() error) error {
	if os.Getenv(SkipSmokeTestEnv) == "1" {
		return nil
	}

	g.mu.Lock()
	if err, done := g.state[fingerprint]; done {
		g.mu.Unlock()
		return err
	}
	if flight, ok := g.inflight[fingerprint]; ok {
		g.mu.Unlock()
		<-flight.done
		return flight.err
	}

	flight := &inflightSmoke{done: make(chan struct{})}
	g.inflight[fingerprint] = flight
	g.mu.Unlock()

	err := run()

	g.mu.Lock()
	g.state[fingerprint] = err
	delete(g.inflight, fingerprint)
	g.mu.Unlock()

	flight.err = err
	close(flight.done)
	return err
}

// smokeOK checks a smoke-test completion payload.
func smokeOK(text string) bool {
	return strings.Contains(strings.TrimSpace(text), smokeReply)
}
