// Package client is a session-carrying client for the filmtrack REST API.
//
// A Session is created by Login, attached to every request, and dropped on
// Logout or on the first 401 the server returns.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"filmtrack/backend/internal/domain"
)

var (
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrSessionExpired = errors.New("session expired, log in again")
)

// APIError is a non-2xx response. Detail carries the server's message.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
}

type Session struct {
	Token     string
	User      domain.User
	ExpiresAt time.Time
}

type Client struct {
	http *resty.Client

	mu      sync.RWMutex
	session *Session
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient}
}

// Resume installs a token obtained elsewhere, e.g. from a CLI flag.
func (c *Client) Resume(token string) {
	token = strings.TrimSpace(token)
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" {
		c.session = nil
		return
	}
	c.session = &Session{Token: token}
}

func (c *Client) Session() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

func (c *Client) Login(ctx context.Context, username string, password string) (Session, error) {
	var payload domain.LoginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(domain.LoginRequest{Username: username, Password: password}).
		SetResult(&payload).
		Post("/api/auth/login")
	if err != nil {
		return Session{}, fmt.Errorf("login request: %w", err)
	}
	if resp.IsError() {
		return Session{}, apiError(resp)
	}

	session := Session{Token: payload.Token, User: payload.User}
	if expiresAt, err := time.Parse(time.RFC3339, payload.ExpiresAt); err == nil {
		session.ExpiresAt = expiresAt
	}

	c.mu.Lock()
	c.session = &session
	c.mu.Unlock()
	return session, nil
}

// Logout is local only; tokens are stateless on the server.
func (c *Client) Logout() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var user domain.User
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &user)
	return user, err
}

func (c *Client) Materials(ctx context.Context) ([]domain.Material, error) {
	var materials []domain.Material
	err := c.do(ctx, http.MethodGet, "/api/raw-materials", nil, nil, &materials)
	return materials, err
}

func (c *Client) LowStockMaterials(ctx context.Context) ([]domain.Material, error) {
	var materials []domain.Material
	err := c.do(ctx, http.MethodGet, "/api/raw-materials/low-stock", nil, nil, &materials)
	return materials, err
}

func (c *Client) CreateMaterial(ctx context.Context, req domain.MaterialCreateRequest) (domain.Material, error) {
	var material domain.Material
	err := c.do(ctx, http.MethodPost, "/api/raw-materials", nil, req, &material)
	return material, err
}

func (c *Client) StockTransactions(ctx context.Context, materialID string, limit int) ([]domain.StockTransaction, error) {
	query := map[string]string{}
	if materialID != "" {
		query["material_id"] = materialID
	}
	if limit > 0 {
		query["limit"] = fmt.Sprint(limit)
	}
	var txs []domain.StockTransaction
	err := c.do(ctx, http.MethodGet, "/api/stock-transactions", query, nil, &txs)
	return txs, err
}

func (c *Client) AppendStockTransaction(ctx context.Context, req domain.StockTransactionRequest) (domain.StockTransaction, error) {
	var tx domain.StockTransaction
	err := c.do(ctx, http.MethodPost, "/api/stock-transactions", nil, req, &tx)
	return tx, err
}

func (c *Client) ProductionOrders(ctx context.Context) ([]domain.ProductionOrder, error) {
	var orders []domain.ProductionOrder
	err := c.do(ctx, http.MethodGet, "/api/production-orders", nil, nil, &orders)
	return orders, err
}

func (c *Client) CreateProductionOrder(ctx context.Context, req domain.ProductionOrderCreateRequest) (domain.ProductionOrder, error) {
	var order domain.ProductionOrder
	err := c.do(ctx, http.MethodPost, "/api/production-orders", nil, req, &order)
	return order, err
}

func (c *Client) TransitionProductionOrder(ctx context.Context, id string, status domain.ProductionStatus) (domain.ProductionOrder, error) {
	var order domain.ProductionOrder
	err := c.do(ctx, http.MethodPatch, "/api/production-orders/"+id+"/status", map[string]string{"status": string(status)}, nil, &order)
	return order, err
}

func (c *Client) CostAnalysis(ctx context.Context) (domain.CostAnalysis, error) {
	var analysis domain.CostAnalysis
	err := c.do(ctx, http.MethodGet, "/api/costs/analysis", nil, nil, &analysis)
	return analysis, err
}

func (c *Client) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	err := c.do(ctx, http.MethodGet, "/api/dashboard/stats", nil, nil, &stats)
	return stats, err
}

func (c *Client) do(ctx context.Context, method string, path string, query map[string]string, body any, result any) error {
	session, ok := c.Session()
	if !ok {
		return ErrNotLoggedIn
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(session.Token)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		c.expire(session.Token)
		return ErrSessionExpired
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// expire drops the session unless another goroutine already replaced it.
func (c *Client) expire(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.Token == token {
		c.session = nil
	}
}

func apiError(resp *resty.Response) *APIError {
	var body struct {
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(resp.Body(), &body)
	detail := strings.TrimSpace(body.Detail)
	if detail == "" {
		detail = "request failed"
	}
	return &APIError{Status: resp.StatusCode(), Detail: detail}
}
