package queryclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbase/internal/auth"
	"gridbase/internal/cachescope"
	"gridbase/internal/dataerr"
	"gridbase/internal/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *auth.Store) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := auth.NewStore()
	return New(Config{
		Endpoint:   server.URL,
		HTTPClient: server.Client(),
		AuthStore:  store,
		AuthKey:    auth.ControlKey(),
		RetryDelay: time.Millisecond,
	}), store
}

func TestDoDecodesEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "query { things }", req.Query)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"things":[1,2,3]}}`))
	})

	data, err := client.Do(context.Background(), Request{Query: "query { things }"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"things":[1,2,3]}`, string(data))
}

func TestDoAttachesCredentialOnlyWhenValid(t *testing.T) {
	var gotAuth atomic.Value
	client, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	_, err := client.Do(context.Background(), Request{Query: "{}"})
	require.NoError(t, err)
	assert.Equal(t, "", gotAuth.Load())

	store.Put(auth.ControlKey(), auth.Credential{Token: "expired", ExpiresAt: time.Now().Add(-time.Minute)})
	_, err = client.Do(context.Background(), Request{Query: "{}"})
	require.NoError(t, err)
	assert.Equal(t, "", gotAuth.Load(), "expired tokens are treated as absent")

	store.Put(auth.ControlKey(), auth.Credential{Token: "live", ExpiresAt: time.Now().Add(time.Hour)})
	_, err = client.Do(context.Background(), Request{Query: "{}"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer live", gotAuth.Load())
}

func TestDoAttachesRequestID(t *testing.T) {
	var gotRequestID atomic.Value
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotRequestID.Store(r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	_, err := client.Do(context.Background(), Request{Query: "{}"})
	require.NoError(t, err)
	assert.NotEmpty(t, gotRequestID.Load(), "every request carries a generated id")

	ctx := logging.WithRequestIDContext(context.Background(), "req-123")
	_, err = client.Do(ctx, Request{Query: "{}"})
	require.NoError(t, err)
	assert.Equal(t, "req-123", gotRequestID.Load(), "caller-provided ids are propagated")
}

func TestDoClassifiesEnvelopeErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": null,
			"errors": [{
				"message": "duplicate key value violates unique constraint",
				"extensions": {"code": "23505", "constraint": "users_email_key", "table": "users"}
			}]
		}`))
	})

	_, err := client.Do(context.Background(), Request{Query: "{}"})
	require.Error(t, err)

	var classified *dataerr.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, dataerr.KindUniqueViolation, classified.Kind)
	assert.Equal(t, "email", classified.FieldName)
	assert.Equal(t, "users", classified.TableName)
}

func TestDoUnauthorizedClearsCredential(t *testing.T) {
	client, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	store.Put(auth.ControlKey(), auth.Credential{Token: "live", ExpiresAt: time.Now().Add(time.Hour)})

	_, err := client.Do(context.Background(), Request{Query: "{}"})
	require.Error(t, err)

	var classified *dataerr.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, dataerr.KindUnauthorized, classified.Kind)

	_, exists := store.Lookup(auth.ControlKey())
	assert.False(t, exists, "401 must clear the stored credential")
}

func TestDoStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   dataerr.Kind
	}{
		{http.StatusForbidden, dataerr.KindForbidden},
		{http.StatusNotFound, dataerr.KindNotFound},
		{http.StatusInternalServerError, dataerr.KindBadRequest},
	}

	for _, tt := range tests {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := client.Do(context.Background(), Request{Query: "{}"})

		var classified *dataerr.Error
		require.ErrorAs(t, err, &classified)
		assert.Equal(t, tt.want, classified.Kind)
	}
}

func TestDoNonOKStatusPrefersEnvelopeError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad input","extensions":{"code":"BAD_USER_INPUT"}}]}`))
	})

	_, err := client.Do(context.Background(), Request{Query: "{}"})

	var classified *dataerr.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, dataerr.KindValidationFailed, classified.Kind)
	assert.Equal(t, "bad input", classified.Message)
}

func TestCachedFetchServesFreshWithoutRequest(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"data":{"n":1}}`))
	})
	cached := NewCached(client, cachescope.NewStore(time.Minute, nil))
	key := cachescope.ControlKey(cachescope.ResourceRows, "users", "page:1")

	first, err := cached.Fetch(context.Background(), key, Request{Query: "{}"})
	require.NoError(t, err)
	second, err := cached.Fetch(context.Background(), key, Request{Query: "{}"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), hits.Load())
}

func TestCachedFetchServesStaleThenRefetches(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"data":{"hit":` + string(rune('0'+hits.Load())) + `}}`))
	})
	cached := NewCached(client, cachescope.NewStore(time.Millisecond, nil))
	key := cachescope.ControlKey(cachescope.ResourceRows, "users")

	_, err := cached.Fetch(context.Background(), key, Request{Query: "{}"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	served, err := cached.Fetch(context.Background(), key, Request{Query: "{}"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hit":1}`, string(served), "stale value is served immediately")

	assert.Eventually(t, func() bool { return hits.Load() == 2 }, time.Second, time.Millisecond,
		"stale serve must trigger a background refetch")
}

func TestCachedFetchDeduplicatesInFlight(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	cached := NewCached(client, cachescope.NewStore(time.Minute, nil))
	key := cachescope.ControlKey(cachescope.ResourceRows, "users")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cached.Fetch(context.Background(), key, Request{Query: "{}"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), hits.Load())
}

func TestCachedInvalidateScopesToTenant(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	store := cachescope.NewStore(time.Minute, nil)
	cached := NewCached(client, store)

	alpha := cachescope.Scope{TenantDatabaseID: "db-alpha", Endpoint: "e"}
	store.Put(cachescope.TenantKey(alpha, cachescope.ResourceTableMeta, "users"), json.RawMessage(`{}`))

	cached.Invalidate("db-alpha")

	_, freshness := store.Get(cachescope.TenantKey(alpha, cachescope.ResourceTableMeta, "users"))
	assert.Equal(t, cachescope.Miss, freshness)
}
