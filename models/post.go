package models

// Post is a feed item as served to the viewing user. IsLiked and LikeCount
// are per-viewer and are the only fields mutated after creation.
type Post struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	ProfileImage string `json:"profileImage"`
	PostImage    string `json:"postImage,omitempty"`
	PostText     string `json:"postText"`
	TimeAgo      string `json:"timeAgo"`
	IsLiked      bool   `json:"isLiked"`
	LikeCount    int    `json:"likeCount"`
}

// LikeResult is the server's authoritative like state after a toggle.
type LikeResult struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}
