// Package legislative implements the public CKAN/CSV adapter (§4.4). No
// auth/HMAC concerns apply: sources are public datasets.
package legislative

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tenantsync/engine/internal/adapters"
	"github.com/tenantsync/engine/internal/domain"
	tserrors "github.com/tenantsync/engine/internal/errors"
	"github.com/tenantsync/engine/pkg/version"
	"github.com/tidwall/gjson"
)

const SourceName = "legislative"

// Config names the CKAN resource endpoints per data type. A data type's
// value is either a direct CSV URL or a CKAN "datastore_search" API URL;
// Shape() below classifies which, ahead of the normalizer's strict decode.
type Config struct {
	ResourceURLs map[string]string // dataType -> URL
}

type Adapter struct {
	cfg    Config
	client adapters.HTTPDoer
}

func New(cfg Config, client adapters.HTTPDoer) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) SourceName() string { return SourceName }

// Shape classifies a raw payload's encoding ahead of the normalizer's strict
// decode: CKAN API responses are a JSON object with a top-level "success"
// field; everything else is treated as CSV. gjson is used only for this
// cheap classification, never for the actual field extraction.
func Shape(raw []byte) string {
	if gjson.ValidBytes(raw) && gjson.GetBytes(raw, "success").Exists() {
		return "ckan-json"
	}
	return "csv"
}

func (a *Adapter) Fetch(ctx context.Context, conn domain.Connection, dataType string) (adapters.RawPayload, error) {
	endpoint, ok := a.cfg.ResourceURLs[dataType]
	if !ok {
		return adapters.RawPayload{}, tserrors.Config("legislative_no_resource", fmt.Sprintf("no resource configured for data type %q", dataType), nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return adapters.RawPayload{}, tserrors.TransientIO("fetch_request_failed", "build fetch request", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := a.client.Do(req)
	if err != nil {
		return adapters.RawPayload{}, tserrors.TransientIO("fetch_failed", "source fetch request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return adapters.RawPayload{}, tserrors.TransientIO("fetch_bad_status", fmt.Sprintf("source returned status %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapters.RawPayload{}, tserrors.TransientIO("fetch_read_failed", "read fetch response body", err)
	}
	contentType := "text/csv"
	if strings.Contains(resp.Header.Get("Content-Type"), "json") || Shape(data) == "ckan-json" {
		contentType = "application/json"
	}
	return adapters.RawPayload{DataType: dataType, ContentType: contentType, Bytes: data, FetchedAt: time.Now()}, nil
}

// RegisterChangeNotifications is a no-op: public CKAN/CSV sources offer no
// webhook mechanism, so the scheduler is the sole trigger for this adapter.
func (a *Adapter) RegisterChangeNotifications(ctx context.Context, conn domain.Connection, callbackBase string) ([]adapters.ChangeNotificationResult, error) {
	return nil, nil
}
