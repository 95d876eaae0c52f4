package backend

const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"

	CommentStatusPending  = "pending"
	CommentStatusApproved = "approved"
	CommentStatusRejected = "rejected"
)

type ModerationAction string

const (
	ModerationApprove ModerationAction = "approve"
	ModerationReject  ModerationAction = "reject"
)

type Pagination struct {
	Total       int  `json:"total"`
	Pages       int  `json:"pages"`
	CurrentPage int  `json:"current_page"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}

type Tag struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	PostCount int    `json:"post_count,omitempty"`
}

type Post struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	Content       string `json:"content,omitempty"`
	Excerpt       string `json:"excerpt"`
	FeaturedImage string `json:"featured_image"`
	Status        string `json:"status"`
	AuthorID      int    `json:"author_id"`
	Author        string `json:"author"`
	Tags          []Tag  `json:"tags"`
	CommentCount  int    `json:"comment_count"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	PublishedAt   string `json:"published_at"`
}

type PostsPage struct {
	Pagination
	Posts []Post `json:"posts"`
	Tag   *Tag   `json:"tag,omitempty"`
}

type PostsQuery struct {
	Page    int
	PerPage int
	Status  string
	Tag     string
}

// PostInput is the body of create and update post calls.
type PostInput struct {
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Excerpt       string   `json:"excerpt,omitempty"`
	Tags          []string `json:"tags"`
	FeaturedImage string   `json:"featured_image,omitempty"`
	Status        string   `json:"status"`
}

type Comment struct {
	ID          int    `json:"id"`
	PostID      int    `json:"post_id"`
	AuthorID    *int   `json:"author_id"`
	AuthorName  string `json:"author_name"`
	IsGuest     bool   `json:"is_guest"`
	Content     string `json:"content"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	GuestEmail  string `json:"guest_email,omitempty"`
	AuthorEmail string `json:"author_email,omitempty"`
	ModeratedAt string `json:"moderated_at,omitempty"`
}

type CommentsPage struct {
	Pagination
	Comments []Comment `json:"comments"`
}

type CommentsQuery struct {
	PostID   int
	AuthorID int
	Status   string
	Page     int
	PerPage  int
}

// CommentInput is a new comment. Guest fields are only sent for comments
// posted without a session.
type CommentInput struct {
	PostID     int
	GuestName  string
	GuestEmail string
	Content    string
}

type CommentResult struct {
	Message string   `json:"message"`
	Comment *Comment `json:"comment"`
}

type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
}

type UsersPage struct {
	Pagination
	Users []User `json:"users"`
}

type messageResponse struct {
	Message string `json:"message"`
}
