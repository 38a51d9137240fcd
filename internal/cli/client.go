package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RequestResponse — restore из API.
type RequestResponse struct {
	ID        int64  `json:"id"`
	GUID      string `json:"guid"`
	Status    string `json:"status"`
	Size      *int64 `json:"size,omitempty"`
	SizeHuman string `json:"size_human,omitempty"`
	Details   string `json:"details"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// DownloadResponse — скачивание из API.
type DownloadResponse struct {
	ID             int64  `json:"id"`
	RemoteFilename string `json:"remote_filename"`
	LocalPath      string `json:"local_path"`
	Status         string `json:"status"`
	Size           int64  `json:"size"`
	SizeHuman      string `json:"size_human"`
	Attempts       int    `json:"attempts"`
	Details        string `json:"details"`
	UpdatedAt      string `json:"updated_at"`
}

// StatsResponse — счётчики по статусам из API.
type StatsResponse struct {
	Requests  map[string]int64 `json:"requests"`
	Downloads map[string]int64 `json:"downloads"`
}

// ActiveResponse — restore в работе из API.
type ActiveResponse struct {
	GUID          string `json:"guid"`
	Status        string `json:"status"`
	Size          int64  `json:"size"`
	LiveWorkers   int    `json:"live_workers"`
	InFlightBytes int64  `json:"in_flight_bytes"`
	InFlight      string `json:"in_flight"`
}

// ListRequestsOpts — параметры фильтрации restore.
type ListRequestsOpts struct {
	Status string
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Surveyor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Requests ---

// ListRequests возвращает restore с фильтрацией.
func (c *Client) ListRequests(opts ListRequestsOpts) ([]RequestResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var reqs []RequestResponse
	err := c.list("/api/v1/requests", params, &reqs)
	return reqs, err
}

// GetRequest возвращает restore по guid.
func (c *Client) GetRequest(guid string) (*RequestResponse, error) {
	var req RequestResponse
	err := c.get("/api/v1/requests/"+url.PathEscape(guid), &req)
	return &req, err
}

// ListDownloads возвращает скачивания restore.
func (c *Client) ListDownloads(guid string) ([]DownloadResponse, error) {
	var downloads []DownloadResponse
	err := c.list("/api/v1/requests/"+url.PathEscape(guid)+"/downloads", nil, &downloads)
	return downloads, err
}

// --- Stats ---

// Stats возвращает счётчики по статусам.
func (c *Client) Stats() (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

// Active возвращает restore в работе у orchestrator.
func (c *Client) Active() ([]ActiveResponse, error) {
	var active []ActiveResponse
	err := c.list("/api/v1/active", nil, &active)
	return active, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	resp, err := c.do(path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) do(path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
