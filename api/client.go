// Package api is the HTTP client for the linkup backend. Every call takes
// a context and returns either a decoded payload or an error; non-2xx
// responses become *StatusError so callers can tell a server rejection
// from a transport failure.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"linkup/config"
	"linkup/models"
)

type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger

	mu    sync.RWMutex
	token string
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL: cfg.APIURL,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		token:   cfg.Token,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// SetToken replaces the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.post(ctx, "/api/auth/login", loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

type registerRequest struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

// Register creates an account and logs straight into it.
func (c *Client) Register(ctx context.Context, username, name, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.post(ctx, "/api/auth/register", registerRequest{Username: username, Name: name, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

type sessionResponse struct {
	User *models.User `json:"user"`
}

// Session returns the logged-in user, or nil when the session is invalid.
func (c *Client) Session(ctx context.Context) (*models.User, error) {
	var resp sessionResponse
	if err := c.get(ctx, "/api/auth/session", &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Friends lists the users the current user can chat with.
func (c *Client) Friends(ctx context.Context) ([]models.User, error) {
	var friends []models.User
	if err := c.get(ctx, "/api/messages/friends", &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// Conversation fetches the full message history with a peer, ordered by
// timestamp ascending.
func (c *Client) Conversation(ctx context.Context, peerID int64) ([]models.Message, error) {
	var msgs []models.Message
	path := "/api/messages/conversation/" + strconv.FormatInt(peerID, 10)
	if err := c.get(ctx, path, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

type sendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}

type sendMessageResponse struct {
	Msg models.Message `json:"msg"`
}

// SendMessage delivers a message and returns the server's authoritative
// copy.
func (c *Client) SendMessage(ctx context.Context, receiverID int64, content string) (*models.Message, error) {
	var resp sendMessageResponse
	err := c.post(ctx, "/api/messages/send", sendMessageRequest{ReceiverID: receiverID, Content: content}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Msg, nil
}

// FriendsPosts fetches the viewer's feed, newest first.
func (c *Client) FriendsPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := c.get(ctx, "/api/posts/friends-posts", &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// ToggleLike flips the viewer's like on a post and returns the server's
// resulting state.
func (c *Client) ToggleLike(ctx context.Context, postID int64) (*models.LikeResult, error) {
	var res models.LikeResult
	path := "/api/posts/like/" + strconv.FormatInt(postID, 10)
	if err := c.post(ctx, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	var users []models.User
	path := "/api/users/search?q=" + url.QueryEscape(query)
	if err := c.get(ctx, path, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FriendStatuses maps candidate user ids to the relationship the current
// user has with them.
func (c *Client) FriendStatuses(ctx context.Context) (map[int64]models.FriendStatus, error) {
	raw := map[string]models.FriendStatus{}
	if err := c.get(ctx, "/api/users/friend-statuses", &raw); err != nil {
		return nil, err
	}
	statuses := make(map[int64]models.FriendStatus, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad user id %q in friend statuses: %w", k, err)
		}
		statuses[id] = v
	}
	return statuses, nil
}

type friendRequestBody struct {
	ReceiverID int64 `json:"receiver_id"`
}

func (c *Client) SendFriendRequest(ctx context.Context, receiverID int64) error {
	return c.post(ctx, "/api/users/send-friend-request", friendRequestBody{ReceiverID: receiverID}, nil)
}

type requestActionBody struct {
	RequestID int64 `json:"request_id"`
}

func (c *Client) AcceptFriendRequest(ctx context.Context, requestID int64) error {
	return c.post(ctx, "/api/users/accept-friend-request", requestActionBody{RequestID: requestID}, nil)
}

func (c *Client) RejectFriendRequest(ctx context.Context, requestID int64) error {
	return c.post(ctx, "/api/users/reject-friend-request", requestActionBody{RequestID: requestID}, nil)
}

func (c *Client) FriendRequests(ctx context.Context) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	if err := c.get(ctx, "/api/users/friend-requests", &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		buf = bytes.NewBuffer(data)
	} else {
		buf = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		c.log.Debug().Int("status", resp.StatusCode).Str("path", path).Str("error", apiErr.Error).Msg("request rejected")
		return &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
