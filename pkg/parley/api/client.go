// Package api implements the REST client for the platform's CRUD surface:
// rooms, messages, people, memberships, and file attachments. It is a
// stateless request/response client and is safe for concurrent use.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TokenSource returns the current bearer access token. It is called before
// every request and must be cheap: actual refresh logic lives behind it.
type TokenSource func(ctx context.Context) (string, error)

// Client talks to the platform's REST API.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  *zap.Logger
}

// ClientBuilder provides a fluent interface for building REST clients.
type ClientBuilder struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a new REST client builder.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
	}
}

// WithBaseURL sets the API base URL, e.g. "https://webexapis.com/v1".
func (b *ClientBuilder) WithBaseURL(baseURL string) *ClientBuilder {
	b.baseURL = strings.TrimSuffix(baseURL, "/")
	return b
}

// WithTokenSource sets the bearer token source used for every request.
func (b *ClientBuilder) WithTokenSource(tokens TokenSource) *ClientBuilder {
	b.tokens = tokens
	return b
}

// WithLogger sets the logger for the client.
func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithHTTPClient sets the underlying HTTP client.
func (b *ClientBuilder) WithHTTPClient(httpClient *http.Client) *ClientBuilder {
	if httpClient != nil {
		b.http = httpClient
	}
	return b
}

// Build creates and returns a new REST client with the configured options.
func (b *ClientBuilder) Build() (*Client, error) {
	if b.baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if b.tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}

	return &Client{
		baseURL: b.baseURL,
		tokens:  b.tokens,
		http:    b.http,
		logger:  b.logger,
	}, nil
}

// Me returns the authenticated user's own profile.
func (c *Client) Me(ctx context.Context) (*Person, error) {
	var person Person
	if err := c.do(ctx, http.MethodGet, "people/me", nil, nil, &person); err != nil {
		return nil, err
	}
	return &person, nil
}

// ListRooms lists rooms the user is a member of, newest activity first.
func (c *Client) ListRooms(ctx context.Context, max int) ([]Room, error) {
	query := url.Values{"max": {strconv.Itoa(max)}, "sortBy": {"lastactivity"}}
	var page itemsPage[Room]
	if err := c.do(ctx, http.MethodGet, "rooms", query, nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// GetRoom returns a single room by id. Room ids are case sensitive and are
// passed through untouched.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodGet, "rooms/"+roomID, nil, nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// RoomByName finds a room by title, case-insensitively. Returns ErrNoMatch
// if no room with that title exists.
func (c *Client) RoomByName(ctx context.Context, name string) (*Room, error) {
	rooms, err := c.ListRooms(ctx, 100)
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		if strings.EqualFold(rooms[i].Title, name) {
			return &rooms[i], nil
		}
	}
	return nil, fmt.Errorf("room %q: %w", name, ErrNoMatch)
}

// CreateMessage sends a message to a room. Markdown is optional; when set the
// message is rendered with markdown formatting.
func (c *Client) CreateMessage(ctx context.Context, roomID, text, markdown string) (*Message, error) {
	body := map[string]string{
		"roomId": roomID,
	}
	if text != "" {
		body["text"] = text
	}
	if markdown != "" {
		body["markdown"] = markdown
	}

	var msg Message
	if err := c.do(ctx, http.MethodPost, "messages", nil, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages lists messages in a room, newest first.
func (c *Client) ListMessages(ctx context.Context, roomID string, max int) ([]Message, error) {
	query := url.Values{"roomId": {roomID}, "max": {strconv.Itoa(max)}}
	var page itemsPage[Message]
	if err := c.do(ctx, http.MethodGet, "messages", query, nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// GetMessage returns a single message by its lookup id.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var msg Message
	if err := c.do(ctx, http.MethodGet, "messages/"+messageID, nil, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage deletes a message. Only the author's own messages can be deleted.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "messages/"+messageID, nil, nil, nil)
}

// PeopleFilter narrows a ListPeople query.
type PeopleFilter struct {
	Email       string
	DisplayName string
	Max         int
}

// ListPeople lists people in the organization, optionally filtered.
func (c *Client) ListPeople(ctx context.Context, filter PeopleFilter) ([]Person, error) {
	max := filter.Max
	if max <= 0 {
		max = 50
	}
	query := url.Values{"max": {strconv.Itoa(max)}}
	if filter.Email != "" {
		query.Set("email", filter.Email)
	}
	if filter.DisplayName != "" {
		query.Set("displayName", filter.DisplayName)
	}

	var page itemsPage[Person]
	if err := c.do(ctx, http.MethodGet, "people", query, nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// GetPerson returns a single person by id.
func (c *Client) GetPerson(ctx context.Context, personID string) (*Person, error) {
	var person Person
	if err := c.do(ctx, http.MethodGet, "people/"+personID, nil, nil, &person); err != nil {
		return nil, err
	}
	return &person, nil
}

// PersonByEmail finds a person by email address. Returns ErrNoMatch if no
// person with that address exists.
func (c *Client) PersonByEmail(ctx context.Context, email string) (*Person, error) {
	people, err := c.ListPeople(ctx, PeopleFilter{Email: email})
	if err != nil {
		return nil, err
	}
	if len(people) == 0 {
		return nil, fmt.Errorf("person %q: %w", email, ErrNoMatch)
	}
	return &people[0], nil
}

// ListMemberships lists the members of a room.
func (c *Client) ListMemberships(ctx context.Context, roomID string, max int) ([]Membership, error) {
	query := url.Values{"roomId": {roomID}, "max": {strconv.Itoa(max)}}
	var page itemsPage[Membership]
	if err := c.do(ctx, http.MethodGet, "memberships", query, nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// CreateMessageWithFile sends a message with a local file attached, as a
// multipart upload. Text is optional.
func (c *Client) CreateMessageWithFile(ctx context.Context, roomID, filePath, text string) (*Message, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening attachment: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("roomId", roomID); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if text != "" {
		if err := form.WriteField("text", text); err != nil {
			return nil, fmt.Errorf("building upload form: %w", err)
		}
	}
	part, err := form.CreateFormFile("files", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", &buf)
	if err != nil {
		return nil, err
	}
	token, err := c.tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", form.FormDataContentType())

	var msg Message
	if err := c.send(req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// do performs a JSON request against the API and decodes the response into
// out (which may be nil for endpoints with no response body of interest).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}

	token, err := c.tokens(ctx)
	if err != nil {
		return fmt.Errorf("getting access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&detail); err == nil {
			apiErr.Message = detail.Message
		}
		c.logger.Debug("API request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
