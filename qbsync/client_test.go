package qbsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type staticTokenProvider struct {
	token *AccessToken
	err   error
}

func (p *staticTokenProvider) ValidToken(ctx context.Context, tenantId string) (*AccessToken, error) {
	return p.token, p.err
}

func newTestClient(t *testing.T, handler http.Handler, token *AccessToken) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	t.Setenv("QBO_API_BASE_URL", server.URL)
	t.Setenv("QBO_RATE_LIMIT_PER_MIN", "60000")
	return NewClient(&staticTokenProvider{token: token}), server
}

func TestClientUnauthorizedTenantNeverCallsOut(t *testing.T) {
	var hits int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}), nil)

	_, err := client.Query(context.Background(), "t1", "Customer", "", 10, 1)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("no token means no request may leave the process")
	}
}

func TestClientUpdateRequiresIdAndToken(t *testing.T) {
	var hits int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}), &AccessToken{AccessToken: "tok", RealmId: "realm-1"})

	_, err := client.Update(context.Background(), "t1", "Customer", RemoteCustomer{DisplayName: "Aye"})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("err = %v, want ValidationError before any network call", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("invalid update must be rejected before any request is made")
	}
}

func TestClientClassifies401AsAuthError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), &AccessToken{AccessToken: "expired", RealmId: "realm-1"})

	_, err := client.Query(context.Background(), "t1", "Customer", "", 10, 1)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestClientClassifiesValidationFault(t *testing.T) {
	body := `{"Fault":{"type":"ValidationFault","Error":[{"Message":"Required param missing","Detail":"DisplayName is required","code":"2020"}]}}`
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(body))
	}), &AccessToken{AccessToken: "tok", RealmId: "realm-1"})

	_, err := client.Create(context.Background(), "t1", "Customer", RemoteCustomer{})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if valErr.Detail == "" {
		t.Fatal("the platform's message must be surfaced")
	}
}

func TestClientClassifiesBusinessFault(t *testing.T) {
	body := `{"Fault":{"type":"ValidationFault","Error":[{"Message":"Duplicate Name Exists Error","Detail":"The name supplied already exists","code":"6240"}]}}`
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(body))
	}), &AccessToken{AccessToken: "tok", RealmId: "realm-1"})

	_, err := client.Create(context.Background(), "t1", "Customer", RemoteCustomer{DisplayName: "Aye"})
	var bizErr *RemoteBusinessError
	if !errors.As(err, &bizErr) {
		t.Fatalf("err = %v, want RemoteBusinessError for code >= 6000", err)
	}
	if bizErr.Code != "6240" {
		t.Fatalf("code = %q, want 6240", bizErr.Code)
	}
	if IsRetryable(err) {
		t.Fatal("business rejections must never be retried")
	}
}

func TestClientClassifies500AsRetryableHttpError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}), &AccessToken{AccessToken: "tok", RealmId: "realm-1"})

	_, err := client.Query(context.Background(), "t1", "Customer", "", 10, 1)
	var httpErr *HttpError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want HttpError", err)
	}
	if !IsRetryable(err) {
		t.Fatal("5xx must be retryable")
	}
}

func TestClientQueryBuildsSelectAndAuthHeader(t *testing.T) {
	var gotQuery, gotAuth, gotPath string
	body := `{"QueryResponse":{"Customer":[{"Id":"1","SyncToken":"0"}],"totalCount":1}}`
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(body))
	}), &AccessToken{AccessToken: "tok-abc", RealmId: "realm-9"})

	result, err := client.Query(context.Background(), "t1", "Customer", "Id = '1'", 25, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if gotQuery != "SELECT * FROM Customer WHERE Id = '1' STARTPOSITION 1 MAXRESULTS 25" {
		t.Fatalf("query = %q", gotQuery)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotPath != "/v3/company/realm-9/query" {
		t.Fatalf("path = %q", gotPath)
	}
	if len(result.Items) != 1 || result.TotalCount != 1 {
		t.Fatalf("result = %+v", result)
	}
}
