package qbsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// QueryResult is one page of remote objects of a single kind.
type QueryResult struct {
	Items      []json.RawMessage
	TotalCount int
}

// RemoteGateway is the authenticated request/response boundary to the remote
// accounting platform. It holds no mapping or sync state.
type RemoteGateway interface {
	Query(ctx context.Context, tenantId string, kind string, filter string, maxResults int, startPosition int) (QueryResult, error)
	Create(ctx context.Context, tenantId string, kind string, payload any) (json.RawMessage, error)
	Update(ctx context.Context, tenantId string, kind string, payload any) (json.RawMessage, error)
	Void(ctx context.Context, tenantId string, kind string, id string, syncToken string) error
}

// maxPageSize is the platform's query page ceiling.
const maxPageSize = 1000

type Client struct {
	baseURL      string
	minorVersion string
	tokens       TokenProvider
	http         *http.Client
	limiter      <-chan time.Time
	tracer       trace.Tracer
}

func NewClient(tokens TokenProvider) *Client {
	baseURL := strings.TrimSpace(os.Getenv("QBO_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://sandbox-quickbooks.api.intuit.com"
	}
	minorVersion := strings.TrimSpace(os.Getenv("QBO_MINOR_VERSION"))
	if minorVersion == "" {
		minorVersion = "70"
	}
	rateLimitPerMin := int64(450)
	if v := strings.TrimSpace(os.Getenv("QBO_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		minorVersion: minorVersion,
		tokens:       tokens,
		http:         &http.Client{Timeout: 30 * time.Second},
		limiter:      time.Tick(interval),
		tracer:       otel.Tracer("qbsync"),
	}
}

type queryEnvelope struct {
	QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
}

func (c *Client) Query(ctx context.Context, tenantId string, kind string, filter string, maxResults int, startPosition int) (QueryResult, error) {
	if maxResults <= 0 || maxResults > maxPageSize {
		maxResults = maxPageSize
	}
	if startPosition <= 0 {
		startPosition = 1
	}

	q := "SELECT * FROM " + kind
	if strings.TrimSpace(filter) != "" {
		q += " WHERE " + filter
	}
	q += fmt.Sprintf(" STARTPOSITION %d MAXRESULTS %d", startPosition, maxResults)

	params := url.Values{}
	params.Set("query", q)

	body, err := c.do(ctx, tenantId, http.MethodGet, "/query", params, nil)
	if err != nil {
		return QueryResult{}, err
	}

	var env queryEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return QueryResult{}, &HttpError{Status: http.StatusOK, Body: "unparseable query response"}
	}

	var result QueryResult
	if raw, ok := env.QueryResponse[kind]; ok {
		if err := json.Unmarshal(raw, &result.Items); err != nil {
			return QueryResult{}, &HttpError{Status: http.StatusOK, Body: "unparseable query items"}
		}
	}
	if raw, ok := env.QueryResponse["totalCount"]; ok {
		_ = json.Unmarshal(raw, &result.TotalCount)
	} else {
		result.TotalCount = len(result.Items)
	}
	return result, nil
}

func (c *Client) Create(ctx context.Context, tenantId string, kind string, payload any) (json.RawMessage, error) {
	body, err := c.do(ctx, tenantId, http.MethodPost, "/"+strings.ToLower(kind), nil, payload)
	if err != nil {
		return nil, err
	}
	return extractEntity(body, kind)
}

func (c *Client) Update(ctx context.Context, tenantId string, kind string, payload any) (json.RawMessage, error) {
	// Read-modify-write: the platform rejects updates that do not carry the
	// id and version token of the last known state.
	if err := requireIdAndToken(payload); err != nil {
		return nil, err
	}
	body, err := c.do(ctx, tenantId, http.MethodPost, "/"+strings.ToLower(kind), nil, payload)
	if err != nil {
		return nil, err
	}
	return extractEntity(body, kind)
}

func (c *Client) Void(ctx context.Context, tenantId string, kind string, id string, syncToken string) error {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(syncToken) == "" {
		return &ValidationError{Detail: "void requires id and version token"}
	}
	params := url.Values{}
	params.Set("operation", "void")
	payload := map[string]string{"Id": id, "SyncToken": syncToken}
	_, err := c.do(ctx, tenantId, http.MethodPost, "/"+strings.ToLower(kind), params, payload)
	return err
}

func (c *Client) do(ctx context.Context, tenantId string, method string, path string, params url.Values, payload any) ([]byte, error) {
	token, err := c.tokens.ValidToken(ctx, tenantId)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, &AuthError{Reason: "sync is not authorized for tenant " + tenantId}
	}

	<-c.limiter

	ctx, span := c.tracer.Start(ctx, "qbo"+path, trace.WithAttributes(
		attribute.String("qbo.realm_id", token.RealmId),
		attribute.String("qbo.method", method),
	))
	defer span.End()

	if params == nil {
		params = url.Values{}
	}
	params.Set("minorversion", c.minorVersion)

	endpoint := fmt.Sprintf("%s/v3/company/%s%s?%s", c.baseURL, url.PathEscape(token.RealmId), path, params.Encode())

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &ValidationError{Detail: "unencodable payload: " + err.Error()}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, &ValidationError{Detail: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures are transport errors, retryable by
		// the caller within bounds.
		return nil, &HttpError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, classifyFault(resp.StatusCode, body)
}

type faultBody struct {
	Fault struct {
		Type  string `json:"type"`
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
	} `json:"Fault"`
}

// classifyFault maps the platform's structured fault body onto the error
// taxonomy, falling back to a generic HttpError when no fault is present.
func classifyFault(status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &AuthError{Reason: strings.TrimSpace(string(body))}
	}

	var fault faultBody
	if err := json.Unmarshal(body, &fault); err != nil || len(fault.Fault.Error) == 0 {
		return &HttpError{Status: status, Body: strings.TrimSpace(string(body))}
	}

	first := fault.Fault.Error[0]
	detail := strings.TrimSpace(first.Message)
	if first.Detail != "" {
		detail = detail + ": " + strings.TrimSpace(first.Detail)
	}

	faultType := strings.ToLower(fault.Fault.Type)
	switch {
	case strings.Contains(faultType, "auth"):
		return &AuthError{Reason: detail}
	case strings.Contains(faultType, "validation"):
		// The platform reports semantic rejections (codes >= 6000) under the
		// same fault type as shape errors; keep them distinguishable.
		if code, err := strconv.Atoi(first.Code); err == nil && code >= 6000 {
			return &RemoteBusinessError{Code: first.Code, Detail: detail}
		}
		return &ValidationError{Detail: detail}
	default:
		return &RemoteBusinessError{Code: first.Code, Detail: detail}
	}
}

func requireIdAndToken(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &ValidationError{Detail: "unencodable payload: " + err.Error()}
	}
	var fields struct {
		Id        string `json:"Id"`
		SyncToken string `json:"SyncToken"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return &ValidationError{Detail: "payload is not an object"}
	}
	if strings.TrimSpace(fields.Id) == "" {
		return &ValidationError{Detail: "update requires the remote id"}
	}
	if strings.TrimSpace(fields.SyncToken) == "" {
		return &ValidationError{Detail: "update requires the version token of the last known state"}
	}
	return nil
}

func extractEntity(body []byte, kind string) (json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &HttpError{Status: http.StatusOK, Body: "unparseable response body"}
	}
	if raw, ok := env[kind]; ok {
		return raw, nil
	}
	return nil, &HttpError{Status: http.StatusOK, Body: "response missing " + kind + " entity"}
}

// escapeQueryValue escapes a literal for the remote query language.
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(v, "'", "\\'")
}
