package models

// SearchItem is one lexical search hit
type SearchItem struct {
	BookID   int     `json:"book_id" db:"book_id"`
	BookName string  `json:"book_name" db:"book_name"`
	Chapter  int     `json:"chapter" db:"chapter"`
	Verse    int     `json:"verse" db:"verse"`
	Snippet  string  `json:"snippet" db:"snippet"`
	Text     string  `json:"text" db:"text"`
	Rank     float64 `json:"rank" db:"rank"`
	TrgmSim  float64 `json:"trgm_sim" db:"trgm_sim"`
}

// SearchResult is a page of lexical search hits with the total match count
type SearchResult struct {
	Total int          `json:"total"`
	Items []SearchItem `json:"items"`
}

// VectorItem is one vector search hit, already exploded to verse granularity
// from its matched window
type VectorItem struct {
	BookID   int     `db:"book_id"`
	BookName string  `db:"book_name"`
	Chapter  int     `db:"chapter"`
	Verse    int     `db:"verse"`
	Text     string  `db:"text"`
	Distance float64 `db:"distance"`
}

// BooksResponse lists the books of a version
type BooksResponse struct {
	Items []Book `json:"items"`
}

// ChatCreateRequest creates a conversation
type ChatCreateRequest struct {
	DeviceID      string `json:"device_id"`
	Locale        string `json:"locale"`
	StoreMessages bool   `json:"store_messages"`
}

// ChatMessageRequest is one user turn
type ChatMessageRequest struct {
	UserMessage string `json:"user_message"`
}

// MemoryInfo describes the conversation memory used for a turn
type MemoryInfo struct {
	Mode            string         `json:"mode"`
	RecentTurns     int            `json:"recent_turns"`
	Summary         string         `json:"summary"`
	Gating          GatingDecision `json:"gating"`
	DirectReference bool           `json:"direct_reference,omitempty"`
}

// ChatMessageResponse is the assistant's reply for one turn
type ChatMessageResponse struct {
	AssistantMessage string     `json:"assistant_message"`
	Citations        []Citation `json:"citations"`
	Memory           MemoryInfo `json:"memory"`
}
