// Package devserver is an in-process backend implementing the contracts the
// client consumes: the REST endpoints and the new_message push channel. It
// backs integration tests and `linkup serve`; the production backend stays
// an external collaborator.
package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"linkup/models"
)

type Server struct {
	store     *Store
	hub       *Hub
	jwtSecret []byte
	router    *gin.Engine
	log       zerolog.Logger
}

func New(jwtSecret string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:     NewStore(),
		hub:       newHub(),
		jwtSecret: []byte(jwtSecret),
		log:       log.With().Str("component", "devserver").Logger(),
	}
	go s.hub.run()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(""))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", s.register)
		auth.POST("/login", s.login)
		auth.GET("/session", s.session)
	}

	messages := r.Group("/api/messages")
	messages.Use(s.authMiddleware())
	{
		messages.GET("/friends", s.friends)
		messages.GET("/conversation/:peer_id", s.conversation)
		messages.POST("/send", s.sendMessage)
	}

	posts := r.Group("/api/posts")
	posts.Use(s.authMiddleware())
	{
		posts.GET("/friends-posts", s.friendsPosts)
		posts.POST("/like/:post_id", s.toggleLike)
	}

	users := r.Group("/api/users")
	users.Use(s.authMiddleware())
	{
		users.GET("/search", s.searchUsers)
		users.GET("/friend-statuses", s.friendStatuses)
		users.GET("/friend-requests", s.friendRequests)
		users.POST("/send-friend-request", s.sendFriendRequest)
		users.POST("/accept-friend-request", s.acceptFriendRequest)
		users.POST("/reject-friend-request", s.rejectFriendRequest)
	}

	r.GET("/ws", s.handleWebSocket)

	s.router = r
	return s
}

// Store exposes the in-memory state for seeding demo data.
func (s *Server) Store() *Store { return s.store }

// Handler returns the router for httptest servers.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(addr string) error {
	s.log.Info().Str("addr", addr).Msg("dev server listening")
	return s.router.Run(addr)
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := s.bearerUser(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

func (s *Server) bearerUser(c *gin.Context) (int64, error) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return 0, errNotFound
	}
	return parseToken(s.jwtSecret, parts[1])
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64("user_id")
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name"`
}

func (s *Server) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.store.CreateUser(req.Username, req.Name, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.respondWithToken(c, user)
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.store.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	s.respondWithToken(c, user)
}

func (s *Server) respondWithToken(c *gin.Context, user models.User) {
	token, err := generateToken(s.jwtSecret, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// session reports the logged-in user, or user:null for a missing or stale
// token. It never rejects; the client's session guard decides what to do.
func (s *Server) session(c *gin.Context) {
	userID, err := s.bearerUser(c)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	user, ok := s.store.User(userID)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *Server) friends(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Friends(currentUser(c)))
}

func (s *Server) conversation(c *gin.Context) {
	peerID, err := strconv.ParseInt(c.Param("peer_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid peer id"})
		return
	}
	c.JSON(http.StatusOK, s.store.Conversation(currentUser(c), peerID))
}

type sendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

func (s *Server) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must not be empty"})
		return
	}
	if _, ok := s.store.User(req.ReceiverID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "receiver not found"})
		return
	}

	senderID := currentUser(c)
	msg := s.store.AddMessage(senderID, req.ReceiverID, strings.TrimSpace(req.Content))

	if data, err := json.Marshal(msg); err == nil {
		s.hub.SendToUsers([]int64{senderID, req.ReceiverID}, &models.Event{
			Event: models.EventNewMessage,
			Data:  data,
		})
	}

	c.JSON(http.StatusCreated, gin.H{"msg": msg})
}

func (s *Server) friendsPosts(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.FriendsPosts(currentUser(c)))
}

func (s *Server) toggleLike(c *gin.Context) {
	postID, err := strconv.ParseInt(c.Param("post_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	res, ok := s.store.ToggleLike(currentUser(c), postID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) searchUsers(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.SearchUsers(currentUser(c), c.Query("q")))
}

func (s *Server) friendStatuses(c *gin.Context) {
	statuses := s.store.FriendStatuses(currentUser(c))
	out := make(map[string]models.FriendStatus, len(statuses))
	for id, st := range statuses {
		out[strconv.FormatInt(id, 10)] = st
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) friendRequests(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.FriendRequests(currentUser(c)))
}

type friendRequestBody struct {
	ReceiverID int64 `json:"receiver_id" binding:"required"`
}

func (s *Server) sendFriendRequest(c *gin.Context) {
	var req friendRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.SendFriendRequest(currentUser(c), req.ReceiverID); err != nil {
		status := http.StatusBadRequest
		if err == errNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request sent"})
}

type requestActionBody struct {
	RequestID int64 `json:"request_id" binding:"required"`
}

func (s *Server) acceptFriendRequest(c *gin.Context) {
	var req requestActionBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.AcceptFriendRequest(req.RequestID, currentUser(c)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "friend request not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request accepted"})
}

func (s *Server) rejectFriendRequest(c *gin.Context) {
	var req requestActionBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.RejectFriendRequest(req.RequestID, currentUser(c)); err != nil {
		if err == errNotYours {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "friend request not found or already processed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request rejected"})
}
