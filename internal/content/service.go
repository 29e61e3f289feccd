package content

import "context"

// Note is one search hit as returned by the acquisition backend.
type Note struct {
	ID         string `json:"id"`
	XsecToken  string `json:"xsec_token"`
	Type       string `json:"type,omitempty"`
	Title      string `json:"title"`
	CoverURL   string `json:"cover_url,omitempty"`
	Nickname   string `json:"nickname,omitempty"`
	LikedCount string `json:"liked_count,omitempty"`
}

// InteractInfo mirrors the engagement counters attached to a note detail.
type InteractInfo struct {
	ShareCount     string `json:"share_count"`
	CollectedCount string `json:"collected_count"`
	CommentCount   string `json:"comment_count"`
	LikedCount     string `json:"liked_count"`
}

type NoteDetail struct {
	Topics       []string     `json:"topics"`
	Desc         string       `json:"desc"`
	Title        string       `json:"title"`
	Type         string       `json:"type"`
	Images       []string     `json:"images"`
	InteractInfo InteractInfo `json:"interact_info"`
}

type SubComment struct {
	Content   string `json:"content"`
	LikeCount string `json:"like_count"`
}

type Comment struct {
	Content     string       `json:"content"`
	LikeCount   string       `json:"like_count"`
	SubComments []SubComment `json:"sub_comments"`
}

// SearchResult is the outcome of one search call. A non-"success" status is
// treated by callers as zero results, not as a fatal error.
type SearchResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Results []Note `json:"results"`
}

type NoteResult struct {
	Status   string     `json:"status"`
	Message  string     `json:"message,omitempty"`
	Note     NoteDetail `json:"note_data"`
	Comments []Comment  `json:"comments_data"`
}

// Service is the narrow surface the task engine needs from the content
// acquisition layer. The real implementation drives a browser automation
// sidecar; tests use a fake.
type Service interface {
	Search(ctx context.Context, query string) (SearchResult, error)
	FetchNote(ctx context.Context, noteID, xsecToken string) (NoteResult, error)
}

const StatusSuccess = "success"

func (r SearchResult) OK() bool { return r.Status == StatusSuccess }

func (r NoteResult) OK() bool { return r.Status == StatusSuccess }
