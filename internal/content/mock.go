package content

import (
	"context"
	"fmt"
)

// MockService returns deterministic local results when no bridge is configured.
type MockService struct{}

func NewMockService() *MockService { return &MockService{} }

func (m *MockService) Search(ctx context.Context, query string) (SearchResult, error) {
	select {
	case <-ctx.Done():
		return SearchResult{}, ctx.Err()
	default:
	}

	notes := make([]Note, 0, 3)
	for i := 1; i <= 3; i++ {
		notes = append(notes, Note{
			ID:         fmt.Sprintf("mock-%s-%d", shortQuery(query), i),
			XsecToken:  "mock-token",
			Type:       "normal",
			Title:      fmt.Sprintf("%s — sample note %d", query, i),
			Nickname:   "mockuser",
			LikedCount: "12",
		})
	}
	return SearchResult{Status: StatusSuccess, Results: notes}, nil
}

func (m *MockService) FetchNote(ctx context.Context, noteID, xsecToken string) (NoteResult, error) {
	select {
	case <-ctx.Done():
		return NoteResult{}, ctx.Err()
	default:
	}

	return NoteResult{
		Status: StatusSuccess,
		Note: NoteDetail{
			Title: "Sample note " + noteID,
			Desc:  "Deterministic note body for local development.",
			Type:  "normal",
			InteractInfo: InteractInfo{
				LikedCount:   "12",
				CommentCount: "2",
			},
		},
		Comments: []Comment{
			{Content: "Agreed, this worked for me too.", LikeCount: "3"},
			{Content: "Not convinced, my experience differs.", LikeCount: "1",
				SubComments: []SubComment{{Content: "Same here.", LikeCount: "0"}}},
		},
	}, nil
}

func shortQuery(q string) string {
	if len(q) > 12 {
		return q[:12]
	}
	return q
}
