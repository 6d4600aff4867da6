package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrCollectionNotFound is returned when Chroma answers 404 for a collection
var ErrCollectionNotFound = errors.New("chroma collection not found")

// ChromaDBClient talks to the ChromaDB v2 REST API directly over HTTP
type ChromaDBClient struct {
	hostURL    string
	baseURL    string
	httpClient *http.Client

	mu  sync.RWMutex
	ids map[string]string // collection name -> id
}

// ChromaDBConfig holds configuration for ChromaDB connection
type ChromaDBConfig struct {
	Host     string
	Port     int
	Tenant   string // default: "default_tenant"
	Database string // default: "default_database"
	Timeout  time.Duration
	// URL overrides Host and Port when set (used by tests against httptest servers)
	URL string
}

// Collection represents a ChromaDB collection
type Collection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// UpsertRequest is the body of a collection upsert call
type UpsertRequest struct {
	IDs        []string                 `json:"ids"`
	Documents  []string                 `json:"documents"`
	Embeddings [][]float32              `json:"embeddings"`
	Metadatas  []map[string]interface{} `json:"metadatas,omitempty"`
}

// QueryRequest is the body of a collection query call
type QueryRequest struct {
	QueryEmbeddings [][]float32            `json:"query_embeddings"`
	NResults        int                    `json:"n_results"`
	Where           map[string]interface{} `json:"where,omitempty"`
	Include         []string               `json:"include"`
}

// QueryResponse holds one result row per query embedding
type QueryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float32                `json:"distances"`
}

// NewChromaDBClient creates a new ChromaDB client with v2 API support
func NewChromaDBClient(config ChromaDBConfig) *ChromaDBClient {
	if config.Tenant == "" {
		config.Tenant = "default_tenant"
	}
	if config.Database == "" {
		config.Database = "default_database"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	hostURL := strings.TrimRight(config.URL, "/")
	if hostURL == "" {
		hostURL = fmt.Sprintf("http://%s:%d", config.Host, config.Port)
	}

	return &ChromaDBClient{
		hostURL: hostURL,
		baseURL: fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s", hostURL, config.Tenant, config.Database),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		ids: make(map[string]string),
	}
}

// HostURL returns the scheme://host:port the client points at
func (c *ChromaDBClient) HostURL() string {
	return c.hostURL
}

// Heartbeat checks if ChromaDB is alive
func (c *ChromaDBClient) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, c.hostURL+"/api/v2/heartbeat", nil, nil); err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	return nil
}

// GetOrCreateCollection resolves a collection by name, creating it with cosine
// space when it does not exist yet. Ids are cached per client.
func (c *ChromaDBClient) GetOrCreateCollection(ctx context.Context, name string) (*Collection, error) {
	payload := map[string]interface{}{
		"name":          name,
		"get_or_create": true,
		"metadata": map[string]interface{}{
			"hnsw:space": "cosine",
		},
	}

	var collection Collection
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/collections", payload, &collection); err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}

	c.mu.Lock()
	c.ids[name] = collection.ID
	c.mu.Unlock()

	return &collection, nil
}

// GetCollection retrieves a collection by name
func (c *ChromaDBClient) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var collection Collection
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", c.baseURL, name), nil, &collection); err != nil {
		return nil, fmt.Errorf("get collection %s: %w", name, err)
	}

	c.mu.Lock()
	c.ids[name] = collection.ID
	c.mu.Unlock()

	return &collection, nil
}

// DeleteCollection deletes a collection and forgets its cached id
func (c *ChromaDBClient) DeleteCollection(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", c.baseURL, name), nil, nil); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}

	c.mu.Lock()
	delete(c.ids, name)
	c.mu.Unlock()

	return nil
}

// Upsert inserts or replaces records by id
func (c *ChromaDBClient) Upsert(ctx context.Context, collectionName string, req UpsertRequest) error {
	id, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return err
	}

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, id), req, nil); err != nil {
		return fmt.Errorf("upsert into %s: %w", collectionName, err)
	}
	return nil
}

// Query searches for the nearest records of each query embedding
func (c *ChromaDBClient) Query(ctx context.Context, collectionName string, req QueryRequest) (*QueryResponse, error) {
	id, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return nil, err
	}

	if len(req.Include) == 0 {
		req.Include = []string{"documents", "metadatas", "distances"}
	}

	var resp QueryResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/query", c.baseURL, id), req, &resp); err != nil {
		return nil, fmt.Errorf("query %s: %w", collectionName, err)
	}
	return &resp, nil
}

// DeleteRecords removes records from a collection by id
func (c *ChromaDBClient) DeleteRecords(ctx context.Context, collectionName string, ids []string) error {
	id, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{"ids": ids}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/delete", c.baseURL, id), payload, nil); err != nil {
		return fmt.Errorf("delete from %s: %w", collectionName, err)
	}
	return nil
}

// DeleteWhere removes the records whose metadata matches a where clause
func (c *ChromaDBClient) DeleteWhere(ctx context.Context, collectionName string, where map[string]interface{}) error {
	id, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{"where": where}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/delete", c.baseURL, id), payload, nil); err != nil {
		return fmt.Errorf("delete from %s: %w", collectionName, err)
	}
	return nil
}

// Count returns the number of records in a collection
func (c *ChromaDBClient) Count(ctx context.Context, collectionName string) (int, error) {
	id, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return 0, err
	}

	var count int
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s/count", c.baseURL, id), nil, &count); err != nil {
		return 0, fmt.Errorf("count %s: %w", collectionName, err)
	}
	return count, nil
}

// Close closes the HTTP client connections
func (c *ChromaDBClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *ChromaDBClient) collectionID(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	id, ok := c.ids[name]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	collection, err := c.GetCollection(ctx, name)
	if err != nil {
		return "", err
	}
	return collection.ID, nil
}

// do sends a JSON request and decodes a JSON response into out when non-nil
func (c *ChromaDBClient) do(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrCollectionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
