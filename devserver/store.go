package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"linkup/models"
)

var (
	errUserExists   = errors.New("username already exists")
	errBadLogin     = errors.New("invalid username or password")
	errNotFound     = errors.New("not found")
	errSelfRequest  = errors.New("cannot send friend request to yourself")
	errAlreadyAsked = errors.New("friend request already sent")
	errAlreadyBound = errors.New("you are already friends")
	errNotYours     = errors.New("unauthorized action")
)

const (
	friendshipPending  = "pending"
	friendshipAccepted = "accepted"
	friendshipRejected = "rejected"
)

type account struct {
	models.User
	passwordHash []byte
}

type friendship struct {
	id      int64
	from    int64
	to      int64
	status  string
	created time.Time
}

type post struct {
	id      int64
	userID  int64
	text    string
	image   string
	created time.Time
	likes   map[int64]bool
}

// Store is the dev server's in-memory state. The real backend keeps this
// in a relational database; here hermetic tests matter more than
// durability.
type Store struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]*account
	byUsername  map[string]int64
	friendships []*friendship
	posts       []*post
	messages    []models.Message
}

func NewStore() *Store {
	return &Store{
		users:      make(map[int64]*account),
		byUsername: make(map[string]int64),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateUser(username, name, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byUsername[username]; taken {
		return models.User{}, errUserExists
	}
	if name == "" {
		name = username
	}
	u := &account{
		User:         models.User{ID: s.id(), Username: username, Name: name},
		passwordHash: hash,
	}
	s.users[u.ID] = u
	s.byUsername[username] = u.ID
	return u.User, nil
}

func (s *Store) Authenticate(username, password string) (models.User, error) {
	s.mu.Lock()
	id, ok := s.byUsername[username]
	var u *account
	if ok {
		u = s.users[id]
	}
	s.mu.Unlock()

	if u == nil || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) != nil {
		return models.User{}, errBadLogin
	}
	return u.User, nil
}

func (s *Store) User(id int64) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u.User, true
	}
	return models.User{}, false
}

func (s *Store) SearchUsers(viewerID int64, query string) []models.User {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.ID == viewerID {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(u.Username), query) &&
			!strings.Contains(strings.ToLower(u.Name), query) {
			continue
		}
		out = append(out, u.User)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if out == nil {
		out = []models.User{}
	}
	return out
}

func (s *Store) SendFriendRequest(from, to int64) error {
	if from == to {
		return errSelfRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[to]; !ok {
		return errNotFound
	}
	for _, f := range s.friendships {
		// A rejected request does not block a fresh one.
		if !pairMatch(f, from, to) || f.status == friendshipRejected {
			continue
		}
		if f.status == friendshipAccepted {
			return errAlreadyBound
		}
		if f.from == from {
			return errAlreadyAsked
		}
		// Request in the opposite direction already exists; accept it.
		f.status = friendshipAccepted
		return nil
	}
	s.friendships = append(s.friendships, &friendship{
		id:      s.id(),
		from:    from,
		to:      to,
		status:  friendshipPending,
		created: time.Now().UTC(),
	})
	return nil
}

func (s *Store) AcceptFriendRequest(requestID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.friendships {
		if f.id == requestID && f.to == userID && f.status == friendshipPending {
			f.status = friendshipAccepted
			return nil
		}
	}
	return errNotFound
}

func (s *Store) RejectFriendRequest(requestID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.friendships {
		if f.id != requestID || f.status != friendshipPending {
			continue
		}
		if f.to != userID {
			return errNotYours
		}
		f.status = friendshipRejected
		return nil
	}
	return errNotFound
}

func (s *Store) FriendRequests(userID int64) []models.FriendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := []models.FriendRequest{}
	for _, f := range s.friendships {
		if f.to != userID || f.status != friendshipPending {
			continue
		}
		sender := s.users[f.from]
		reqs = append(reqs, models.FriendRequest{
			ID:           f.id,
			SenderID:     f.from,
			Username:     sender.Username,
			ProfileImage: sender.ProfileImage,
			CreatedAt:    f.created,
		})
	}
	return reqs
}

func (s *Store) FriendStatuses(userID int64) map[int64]models.FriendStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make(map[int64]models.FriendStatus)
	for _, f := range s.friendships {
		switch {
		case f.status == friendshipAccepted && f.from == userID:
			statuses[f.to] = models.StatusFriends
		case f.status == friendshipAccepted && f.to == userID:
			statuses[f.from] = models.StatusFriends
		case f.status == friendshipPending && f.from == userID:
			statuses[f.to] = models.StatusRequestSent
		case f.status == friendshipPending && f.to == userID:
			statuses[f.from] = models.StatusRequestReceived
		}
	}
	return statuses
}

func (s *Store) Friends(userID int64) []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	friends := []models.User{}
	for _, f := range s.friendships {
		if f.status != friendshipAccepted {
			continue
		}
		var other int64
		switch userID {
		case f.from:
			other = f.to
		case f.to:
			other = f.from
		default:
			continue
		}
		if u, ok := s.users[other]; ok {
			friends = append(friends, u.User)
		}
	}
	sort.Slice(friends, func(i, j int) bool { return friends[i].ID < friends[j].ID })
	return friends
}

func (s *Store) AddMessage(senderID, receiverID int64, content string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := models.Message{
		ID:         s.id(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  time.Now().UTC(),
		Status:     models.MessageStatusSent,
	}
	s.messages = append(s.messages, msg)
	return msg
}

func (s *Store) Conversation(selfID, peerID int64) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := []models.Message{}
	for _, m := range s.messages {
		if m.Between(selfID, peerID) {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
	return msgs
}

func (s *Store) AddPost(userID int64, text, image string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &post{
		id:      s.id(),
		userID:  userID,
		text:    text,
		image:   image,
		created: time.Now().UTC(),
		likes:   make(map[int64]bool),
	}
	s.posts = append(s.posts, p)
	return p.id
}

// FriendsPosts returns the viewer's feed, newest first, with the per-viewer
// like state filled in.
func (s *Store) FriendsPosts(viewerID int64) []models.Post {
	friendIDs := make(map[int64]bool)
	for _, f := range s.Friends(viewerID) {
		friendIDs[f.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Post{}
	for _, p := range s.posts {
		if !friendIDs[p.userID] {
			continue
		}
		author := s.users[p.userID]
		out = append(out, models.Post{
			ID:           p.id,
			Username:     author.Username,
			ProfileImage: author.ProfileImage,
			PostImage:    p.image,
			PostText:     p.text,
			TimeAgo:      p.created.Format(time.RFC3339),
			IsLiked:      p.likes[viewerID],
			LikeCount:    len(p.likes),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *Store) ToggleLike(viewerID, postID int64) (models.LikeResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.id != postID {
			continue
		}
		if p.likes[viewerID] {
			delete(p.likes, viewerID)
		} else {
			p.likes[viewerID] = true
		}
		return models.LikeResult{Liked: p.likes[viewerID], LikeCount: len(p.likes)}, true
	}
	return models.LikeResult{}, false
}

func pairMatch(f *friendship, a, b int64) bool {
	return (f.from == a && f.to == b) || (f.from == b && f.to == a)
}
