package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkup/config"
	"linkup/models"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{APIURL: srv.URL, Token: "test-token", HTTPTimeout: 5 * time.Second})
}

func TestConversationSendsBearerToken(t *testing.T) {
	var gotAuth, gotPath string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode([]models.Message{
			{ID: 1, SenderID: 1, ReceiverID: 7, Content: "hi", Timestamp: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)},
		})
	}))

	msgs, err := client.Conversation(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "/api/messages/conversation/7", gotPath)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestSendMessagePostsPayload(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body struct {
			ReceiverID int64  `json:"receiver_id"`
			Content    string `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(7), body.ReceiverID)
		assert.Equal(t, "hello", body.Content)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]models.Message{
			"msg": {ID: 10, SenderID: 1, ReceiverID: 7, Content: "hello"},
		})
	}))

	msg, err := client.SendMessage(context.Background(), 7, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(10), msg.ID)
}

func TestNonOKBecomesStatusError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid token"})
	}))

	_, err := client.Friends(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Equal(t, "invalid token", statusErr.Message)
	assert.True(t, statusErr.Unauthorized())
}

func TestTransportErrorIsNotStatusError(t *testing.T) {
	client := NewClient(config.Config{APIURL: "http://127.0.0.1:1", HTTPTimeout: 200 * time.Millisecond})
	_, err := client.Friends(context.Background())
	require.Error(t, err)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestSessionNullUser(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user": null}`))
	}))

	user, err := client.Session(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestToggleLikeDecodesResult(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/posts/like/42", r.URL.Path)
		json.NewEncoder(w).Encode(models.LikeResult{Liked: true, LikeCount: 5})
	}))

	res, err := client.ToggleLike(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, 5, res.LikeCount)
}

func TestFriendStatusesParsesIDKeys(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"7": "friends", "9": "requestSent"}`))
	}))

	statuses, err := client.FriendStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusFriends, statuses[7])
	assert.Equal(t, models.StatusRequestSent, statuses[9])
}

func TestLoginStoresToken(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(LoginResponse{Token: "fresh", User: models.User{ID: 1, Username: "mika"}})
	}))
	client.SetToken("")

	resp, err := client.Login(context.Background(), "mika", "secret")
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Token)
	assert.Equal(t, "fresh", client.Token())
}

func TestSearchUsersEscapesQuery(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a b&c", r.URL.Query().Get("q"))
		w.Write([]byte(`[]`))
	}))

	_, err := client.SearchUsers(context.Background(), "a b&c")
	require.NoError(t, err)
}
