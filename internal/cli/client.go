package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ganger/internal/auth"
	"ganger/internal/gang"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Temporary reports whether sending the same request later may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
}

// AlreadyApplied reports whether the server has already committed a request
// with this idempotency key.
func (e *APIError) AlreadyApplied() bool {
	return e.Status == http.StatusConflict && e.Message == gang.ErrDuplicateIdempotency.Error()
}

// Offline reports whether err means the API could not be reached, or answered
// in a way that makes a later retry of the same request worthwhile.
func Offline(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, context.Canceled)
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password, username string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"username": username,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"refresh_token": refreshToken,
	}, &out, "")
	return out, err
}

func (c *Client) ListGangs(ctx context.Context, accessToken string) ([]gang.Gang, error) {
	var out []gang.Gang
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/gangs", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) CreateGang(ctx context.Context, accessToken, name, gangType string, credits int64, idem string) (gang.Gang, error) {
	var out gang.Gang
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/gangs", accessToken, map[string]any{
		"name":      name,
		"gang_type": gangType,
		"credits":   credits,
	}, &out, idem)
	return out, err
}

func (c *Client) GetGang(ctx context.Context, accessToken, gangID string) (gang.GangView, error) {
	var out gang.GangView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/gangs/"+url.PathEscape(gangID), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) GangLog(ctx context.Context, accessToken, gangID string, page gang.Page) ([]gang.LogEntry, error) {
	var out []gang.LogEntry
	err := c.jsonRequest(ctx, http.MethodGet, pagePath(GangPath(gangID, "log"), page), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) LedgerHistory(ctx context.Context, accessToken, gangID string, page gang.Page) ([]gang.LedgerEntry, error) {
	var out []gang.LedgerEntry
	err := c.jsonRequest(ctx, http.MethodGet, pagePath(GangPath(gangID, "ledger"), page), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Reconcile(ctx context.Context, accessToken, gangID string, fix bool, idem string) (gang.ReconcileReport, error) {
	var out gang.ReconcileReport
	err := c.jsonRequest(ctx, http.MethodPost, GangPath(gangID, "reconcile"), accessToken, map[string]any{
		"fix": fix,
	}, &out, idem)
	return out, err
}

// Write sends a mutating request and decodes the action result. The path and
// body are what syncq stores when the API is unreachable.
func (c *Client) Write(ctx context.Context, accessToken, method, path string, body map[string]any, idem string) (gang.Result, error) {
	var out gang.Result
	err := c.jsonRequest(ctx, method, path, accessToken, body, &out, idem)
	return out, err
}

func GangPath(gangID, sub string) string {
	return "/v1/gangs/" + url.PathEscape(gangID) + "/" + sub
}

func FighterPath(fighterID, sub string) string {
	return "/v1/fighters/" + url.PathEscape(fighterID) + "/" + sub
}

func VehiclePath(vehicleID, sub string) string {
	return "/v1/vehicles/" + url.PathEscape(vehicleID) + "/" + sub
}

func EquipmentPath(equipmentID, sub string) string {
	return "/v1/equipment/" + url.PathEscape(equipmentID) + "/" + sub
}

func EffectPath(effectID string) string {
	return "/v1/effects/" + url.PathEscape(effectID)
}

func pagePath(path string, page gang.Page) string {
	q := url.Values{}
	if page.Limit > 0 {
		q.Set("limit", fmt.Sprint(page.Limit))
	}
	if page.Before > 0 {
		q.Set("before", fmt.Sprint(page.Before))
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
