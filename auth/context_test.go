package auth

import (
	"context"
	"sync"
	"testing"
)

func TestRequestAuthAbsentByDefault(t *testing.T) {
	if ra, ok := RequestAuthFromContext(context.Background()); ok || ra != nil {
		t.Fatalf("want absent, got %+v", ra)
	}
}

// Two concurrent request chains must each observe only their own auth at
// every step, regardless of interleaving. The barrier forces both chains
// to suspend between reads, mimicking interleaved I/O waits.
func TestRequestAuthIsolationAcrossChains(t *testing.T) {
	root := context.Background()

	const steps = 4
	barrier := make(chan struct{})
	var wg sync.WaitGroup

	chain := func(token string) {
		defer wg.Done()
		ctx := WithRequestAuth(root, &RequestAuth{AccessToken: token, UserID: "user-" + token})
		for i := 0; i < steps; i++ {
			<-barrier
			ra, ok := RequestAuthFromContext(ctx)
			if !ok {
				t.Errorf("chain %s step %d: auth missing", token, i)
				return
			}
			if ra.AccessToken != token {
				t.Errorf("chain %s step %d: observed token %q", token, i, ra.AccessToken)
				return
			}
		}
	}

	wg.Add(2)
	go chain("A")
	go chain("B")

	for i := 0; i < steps*2; i++ {
		barrier <- struct{}{}
	}
	wg.Wait()

	// The parent chain never sees either child's auth.
	if _, ok := RequestAuthFromContext(root); ok {
		t.Fatal("parent context observed a child's auth")
	}
}

func TestRequestAuthTeardownWithChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = WithRequestAuth(ctx, &RequestAuth{AccessToken: "tok"})
	cancel()

	// Cancellation ends the chain; the value dies with the context and no
	// explicit release exists. Values derived before cancellation remain
	// readable only to code still holding the chain's context.
	if ra, _ := RequestAuthFromContext(ctx); ra == nil || ra.AccessToken != "tok" {
		t.Fatal("chain-held context lost its auth before the chain completed")
	}
	if _, ok := RequestAuthFromContext(context.Background()); ok {
		t.Fatal("auth leaked outside the chain")
	}
}
