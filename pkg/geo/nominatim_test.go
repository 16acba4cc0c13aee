package geo

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/bizdir-scraper/pkg/config"
	"github.com/Sriram-PR/bizdir-scraper/pkg/fetch"
	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

const madridResponse = `{"place_id":1,"lat":"40.4168","lon":"-3.7038","address":{
"road":"Calle Mayor","historic":"Puerta del Sol","city":"Madrid","postcode":"28013","man_made":"x","gender":"y","country":"España","country_code":"es"}}`

func newGeocoder(t *testing.T, handler http.HandlerFunc, interval time.Duration) (*Geocoder, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	policy := fetch.RetryPolicy{MaxAttempts: 2, MinDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	fetcher := fetch.NewFetcher(&http.Client{Timeout: 5 * time.Second}, policy, testLogger())
	limiter := fetch.NewRateLimiter(0, 0, testLogger())
	g, err := New(config.GeocodingConfig{BaseURL: server.URL, UserAgent: "bizdir-test", MinInterval: interval}, fetcher, limiter, testLogger())
	require.NoError(t, err)
	return g, hits
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func esRecord(lat, lon string) *models.Record {
	rec := models.NewRecord("uuid", "latitude", "longitude")
	rec.Set("latitude", lat)
	rec.Set("longitude", lon)
	return rec
}

func TestEnrich_AddsZipcodeAndAddressParts(t *testing.T) {
	var gotQuery, gotUA string
	g, _ := newGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		assert.Equal(t, "/reverse", r.URL.Path)
		jsonHandler(madridResponse)(w, r)
	}, 0)

	rec := esRecord("40.4168", "-3.7038")
	require.NoError(t, g.Enrich(context.Background(), rec))

	assert.Contains(t, gotQuery, "lat=40.4168")
	assert.Contains(t, gotQuery, "lon=-3.7038")
	assert.Contains(t, gotQuery, "format=jsonv2")
	assert.Equal(t, "bizdir-test", gotUA)

	assert.Equal(t, "28013", rec.Value("zipcode"))
	assert.Equal(t, []string{"uuid", "latitude", "longitude", "zipcode", "road", "city", "country", "country_code"}, rec.Keys())
	for _, excluded := range []string{"postcode", "historic", "man_made", "gender"} {
		_, ok := rec.Get(excluded)
		assert.False(t, ok, excluded)
	}
}

func TestEnrich_SkipsRecordsWithoutCoordinates(t *testing.T) {
	g, hits := newGeocoder(t, jsonHandler(madridResponse), 0)

	rec := models.NewRecord("uuid", "latitude", "longitude")
	require.NoError(t, g.Enrich(context.Background(), rec))
	assert.Equal(t, int32(0), hits.Load())
	_, ok := rec.Get("zipcode")
	assert.False(t, ok)
}

func TestReverse_CachesPerCoordinate(t *testing.T) {
	g, hits := newGeocoder(t, jsonHandler(madridResponse), 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		addr, err := g.Reverse(ctx, "40.4168", "-3.7038")
		require.NoError(t, err)
		require.NotNil(t, addr)
		assert.Equal(t, "28013", addr.Postcode)
	}
	assert.Equal(t, int32(1), hits.Load())

	_, err := g.Reverse(ctx, "41.3874", "2.1686")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestReverse_ConcurrentCallersShareOneLookup(t *testing.T) {
	g, hits := newGeocoder(t, jsonHandler(madridResponse), 0)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Reverse(context.Background(), "40.4168", "-3.7038")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestReverse_NoPostcodeIsNotCached(t *testing.T) {
	g, hits := newGeocoder(t, jsonHandler(`{"address":{"country":"España"}}`), 0)

	rec := esRecord("0", "0")
	require.NoError(t, g.Enrich(context.Background(), rec))
	require.NoError(t, g.Enrich(context.Background(), rec))
	assert.Equal(t, int32(2), hits.Load())
	_, ok := rec.Get("zipcode")
	assert.False(t, ok)
}

func TestReverse_UnableToGeocode(t *testing.T) {
	g, _ := newGeocoder(t, jsonHandler(`{"error":"Unable to geocode"}`), 0)
	addr, err := g.Reverse(context.Background(), "0", "0")
	require.NoError(t, err)
	assert.Nil(t, addr)
}

func TestReverse_ServerErrorsRetriedThenFail(t *testing.T) {
	g, hits := newGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 0)

	_, err := g.Reverse(context.Background(), "40.4168", "-3.7038")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrRetryFailed)
	assert.Equal(t, int32(2), hits.Load())
}

func TestReverse_MalformedJSON(t *testing.T) {
	g, _ := newGeocoder(t, jsonHandler(`{"address":`), 0)
	_, err := g.Reverse(context.Background(), "40.4168", "-3.7038")
	assert.ErrorIs(t, err, utils.ErrParsing)
}

func TestReverse_RespectsMinInterval(t *testing.T) {
	g, _ := newGeocoder(t, jsonHandler(madridResponse), 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	_, err := g.Reverse(ctx, "1", "1")
	require.NoError(t, err)
	_, err = g.Reverse(ctx, "2", "2")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New(config.GeocodingConfig{BaseURL: "not a url"}, nil, nil, testLogger())
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}
