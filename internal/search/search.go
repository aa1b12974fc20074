package search

// Result is a single message hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	RoomID   string `json:"room_id"`
	AuthorID string `json:"author_id"`
	Snippet  string `json:"snippet"`
}

// Query describes a search request. RoomIDs restricts hits to rooms
// the caller is a joined member of; an empty list yields no results.
type Query struct {
	Text         string
	RoomIDs      []string
	FilterRoomID string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over messages.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// MessageRecord is the data we index for a message. One record per
// message identity; edits overwrite the previous record.
type MessageRecord struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	RoomID   string `json:"roomId"`
	AuthorID string `json:"authorId"`
	Content  string `json:"content"`
}
