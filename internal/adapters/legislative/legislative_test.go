package legislative

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

func TestShapeDetectsCKANJSON(t *testing.T) {
	if got := Shape([]byte(`{"success":true,"result":{"records":[]}}`)); got != "ckan-json" {
		t.Fatalf("expected ckan-json, got %q", got)
	}
}

func TestShapeDefaultsToCSVForPlainText(t *testing.T) {
	if got := Shape([]byte("external_id,title\nB1,Tax Reform\n")); got != "csv" {
		t.Fatalf("expected csv, got %q", got)
	}
}

func TestShapeDefaultsToCSVForJSONWithoutSuccessField(t *testing.T) {
	if got := Shape([]byte(`{"records":[]}`)); got != "csv" {
		t.Fatalf("expected csv for a JSON body lacking a top-level success field, got %q", got)
	}
}

func TestFetchReturnsErrorForUnconfiguredDataType(t *testing.T) {
	a := New(Config{}, nil)
	_, err := a.Fetch(context.Background(), domain.Connection{}, "bills")
	kerr, ok := tserrors.As(err)
	if !ok || kerr.Kind != tserrors.KindConfig {
		t.Fatalf("expected a Config error for an unconfigured data type, got %v", err)
	}
}

func TestFetchSetsUserAgentAndReturnsBody(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("external_id,title\nB1,Tax Reform\n"))
	}))
	defer srv.Close()

	a := New(Config{ResourceURLs: map[string]string{"bills": srv.URL}}, srv.Client())
	payload, err := a.Fetch(context.Background(), domain.Connection{}, "bills")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotUA == "" {
		t.Fatal("expected a non-empty User-Agent header")
	}
	if payload.ContentType != "text/csv" {
		t.Fatalf("expected csv content type, got %q", payload.ContentType)
	}
	if len(payload.Bytes) == 0 {
		t.Fatal("expected a non-empty body")
	}
}

func TestFetchClassifiesCKANJSONBodyEvenWithoutContentTypeHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"result":{"records":[]}}`))
	}))
	defer srv.Close()

	a := New(Config{ResourceURLs: map[string]string{"legislators": srv.URL}}, srv.Client())
	payload, err := a.Fetch(context.Background(), domain.Connection{}, "legislators")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if payload.ContentType != "application/json" {
		t.Fatalf("expected the CKAN JSON shape to be classified as application/json, got %q", payload.ContentType)
	}
}

func TestFetchNonOKStatusIsTransientIO(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New(Config{ResourceURLs: map[string]string{"bills": srv.URL}}, srv.Client())
	_, err := a.Fetch(context.Background(), domain.Connection{}, "bills")
	kerr, ok := tserrors.As(err)
	if !ok || kerr.Kind != tserrors.KindTransientIO {
		t.Fatalf("expected a TransientIO error on 503, got %v", err)
	}
}

func TestRegisterChangeNotificationsIsNoOp(t *testing.T) {
	a := New(Config{}, nil)
	results, err := a.RegisterChangeNotifications(context.Background(), domain.Connection{}, "https://app.example.com")
	if err != nil || results != nil {
		t.Fatalf("expected a nil, nil no-op result, got %v, %v", results, err)
	}
}
