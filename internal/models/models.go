package models

import "time"

// Profile is the public part of a user account.
type Profile struct {
	Bio      string    `json:"bio"`
	Avatar   string    `json:"avatar"`
	Location string    `json:"location"`
	JoinedAt time.Time `json:"joined_at"`
}

type User struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	DisplayName string  `json:"display_name"`
	Profile     Profile `json:"profile"`
}

// Credentials is the access/refresh pair issued at login, registration and refresh.
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type Post struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username,omitempty"`
	Body           string    `json:"body"`
	Media          string    `json:"media,omitempty"`
	Created        time.Time `json:"created_at"`

	IsRetweet      bool   `json:"is_retweet"`
	IsQuoteRetweet bool   `json:"is_quote_retweet"`
	QuoteText      string `json:"quote_text,omitempty"`
	ParentPost     string `json:"parent_post,omitempty"`

	// Computed per request, never stored on the post row. Only a plain
	// retweet is limited to one per user, so it is flagged separately.
	LikesCount           int   `json:"likes_count"`
	RetweetCount         int   `json:"retweet_count"`
	CommentsCount        int   `json:"comments_count"`
	LikedByUser          bool  `json:"liked_by_user"`
	RetweetedByUser      bool  `json:"retweeted_by_user"`
	PlainRetweetedByUser bool  `json:"plain_retweeted_by_user"`
	ParentPostData       *Post `json:"parent_post_data,omitempty"`
}

// Counters are the engagement totals of one post.
type Counters struct {
	Likes    int `json:"likes_count"`
	Retweets int `json:"retweet_count"`
	Comments int `json:"comments_count"`
}

// Comment is one entry of a post's discussion. Parent is nil for root comments.
// Replies is derived by the comment tree builder and is empty on the wire.
type Comment struct {
	ID             string     `json:"id"`
	Post           string     `json:"post"`
	Author         string     `json:"author"`
	AuthorUsername string     `json:"author_username"`
	Content        string     `json:"content"`
	Parent         *string    `json:"parent"`
	CommentedAt    time.Time  `json:"commented_at"`
	Replies        []*Comment `json:"replies,omitempty"`
}

// ParentID returns the referenced parent id or "" for a root comment.
func (c Comment) ParentID() string {
	if c.Parent == nil {
		return ""
	}
	return *c.Parent
}

// ProfileView is a profile as seen by the requesting user.
type ProfileView struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"display_name"`
	Bio            string    `json:"bio"`
	Avatar         string    `json:"avatar"`
	Location       string    `json:"location"`
	JoinedAt       time.Time `json:"joined_at"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	Followers      []string  `json:"followers"`
	Following      []string  `json:"following"`
	FollowedByMe   bool      `json:"followed_by_me"`
}

// ProfileUpdate is a partial change of the session user's account; nil
// fields are left as they are.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Location    *string `json:"location,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}

// Apply returns u with the set fields of p.
func (p ProfileUpdate) Apply(u User) User {
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.Bio != nil {
		u.Profile.Bio = *p.Bio
	}
	if p.Location != nil {
		u.Profile.Location = *p.Location
	}
	if p.Avatar != nil {
		u.Profile.Avatar = *p.Avatar
	}
	return u
}

type Follow struct {
	UserID       string `json:"user_id"`
	FolloweeID   string `json:"followee_id"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// Kafka message keys for post events.
const (
	EventPostCreated    = "post_created"
	EventRetweetCreated = "retweet_created"
	EventPostDeleted    = "post_deleted"
)
