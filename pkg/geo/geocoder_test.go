package geo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

// fakeProvider counts lookups and returns canned results.
type fakeProvider struct {
	mu      sync.Mutex
	name    string
	point   *Point
	err     error
	lookups int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Lookup(_ context.Context, _ string) (*Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.point, f.err
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func TestGeocode_PostcodeCacheHit(t *testing.T) {
	pc := &fakeProvider{name: "postcode", point: &Point{Lat: 53.48, Lng: -2.24}}
	svc := NewService(nil, pc, NewMemoryCache(), zap.NewNop())

	first := svc.Geocode(context.Background(), "10 High Street", "M1 1AA")
	require.NotNil(t, first)
	assert.Equal(t, 1, pc.calls())

	second := svc.Geocode(context.Background(), "10 High Street", "m1 1aa")
	require.NotNil(t, second)
	assert.Equal(t, 1, pc.calls(), "second call must be served from cache")
	assert.Equal(t, *first, *second)
}

func TestGeocode_JitterIsDeterministicAndDistinct(t *testing.T) {
	pc := &fakeProvider{name: "postcode", point: &Point{Lat: 53.48, Lng: -2.24}}
	svc := NewService(nil, pc, NewMemoryCache(), zap.NewNop())

	a1 := svc.Geocode(context.Background(), "10 High Street", "M1 1AA")
	a2 := svc.Geocode(context.Background(), "10 High Street", "M1 1AA")
	b := svc.Geocode(context.Background(), "12 High Street", "M1 1AA")

	require.NotNil(t, a1)
	require.NotNil(t, a2)
	require.NotNil(t, b)
	assert.Equal(t, *a1, *a2, "same address must jitter identically")
	assert.NotEqual(t, *a1, *b, "different addresses at one postcode must not stack")

	// Offset stays within roughly 50-110m of the centroid.
	assert.InDelta(t, 53.48, a1.Lat, jitterMaxDeg)
	assert.InDelta(t, -2.24, a1.Lng, jitterMaxDeg)
}

func TestGeocode_AddressTierPreferred(t *testing.T) {
	addr := &fakeProvider{name: "address", point: &Point{Lat: 51.50, Lng: -0.12}}
	pc := &fakeProvider{name: "postcode", point: &Point{Lat: 51.51, Lng: -0.13}}
	svc := NewService(addr, pc, NewMemoryCache(), zap.NewNop())

	loc := svc.Geocode(context.Background(), "1 Whitehall", "SW1A 2DY")
	require.NotNil(t, loc)
	assert.Equal(t, models.Location{Lat: 51.50, Lng: -0.12}, *loc)
	assert.Equal(t, 0, pc.calls())
}

func TestGeocode_FallsBackToPostcodeOnAddressMiss(t *testing.T) {
	addr := &fakeProvider{name: "address"} // returns not-found
	pc := &fakeProvider{name: "postcode", point: &Point{Lat: 51.51, Lng: -0.13}}
	svc := NewService(addr, pc, NewMemoryCache(), zap.NewNop())

	loc := svc.Geocode(context.Background(), "1 Nowhere Lane", "SW1A 2DY")
	require.NotNil(t, loc)
	assert.Equal(t, 1, addr.calls())
	assert.Equal(t, 1, pc.calls())

	// The address-tier miss is cached; only the postcode tier is consulted
	// again, and from cache.
	svc.Geocode(context.Background(), "1 Nowhere Lane", "SW1A 2DY")
	assert.Equal(t, 1, addr.calls())
	assert.Equal(t, 1, pc.calls())
}

func TestGeocode_TransientFailureReturnsNilUncached(t *testing.T) {
	pc := &fakeProvider{name: "postcode", err: errors.New("connection refused")}
	svc := NewService(nil, pc, NewMemoryCache(), zap.NewNop())

	assert.Nil(t, svc.Geocode(context.Background(), "", "M1 1AA"))
	// Not cached: the next call retries the provider.
	assert.Nil(t, svc.Geocode(context.Background(), "", "M1 1AA"))
	assert.Equal(t, 2, pc.calls())
}

func TestGeocode_NegativeEntryPreventsRequery(t *testing.T) {
	pc := &fakeProvider{name: "postcode"} // not-found
	svc := NewService(nil, pc, NewMemoryCache(), zap.NewNop())

	assert.Nil(t, svc.Geocode(context.Background(), "", "ZZ99 9ZZ"))
	assert.Nil(t, svc.Geocode(context.Background(), "", "ZZ99 9ZZ"))
	assert.Equal(t, 1, pc.calls(), "checked-no-data must not be re-queried")
}

func TestLimiter_EnforcesInterval(t *testing.T) {
	l := NewLimiter(30 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestLimiter_CancelledContext(t *testing.T) {
	l := NewLimiter(time.Minute)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loc := &models.Location{Lat: 1, Lng: 2}
			for j := 0; j < 100; j++ {
				cache.Put(context.Background(), "pc:M11AA", loc)
				cache.Get(context.Background(), "pc:M11AA")
			}
		}()
	}
	wg.Wait()

	got, ok := cache.Get(context.Background(), "pc:M11AA")
	require.True(t, ok)
	assert.Equal(t, models.Location{Lat: 1, Lng: 2}, *got)
}
