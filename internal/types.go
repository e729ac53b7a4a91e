package internal

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Answer is the classified form of an assistant reply, ready for a table or markdown view.
type Answer struct {
	Kind    string     `json:"kind"`
	Columns []string   `json:"columns,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
	Text    string     `json:"text,omitempty"`
}

type RenderedMessage struct {
	Message
	Answer *Answer `json:"answer,omitempty"`
}

type ChatHistory struct {
	Messages []RenderedMessage `json:"messages"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type SendMessageResponse struct {
	Reply  Message `json:"reply"`
	Answer Answer  `json:"answer"`
	Model  string  `json:"model"`
}

// --- CSV upload ---

type UploadCSVRequest struct {
	Name     string `json:"name"`
	Text     string `json:"text"`
	MaxChars int    `json:"max_chars,omitempty"`
}

type DatasetInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
	Chunks  int      `json:"chunks"`
	MinSize int      `json:"min_chunk_chars"`
	MaxSize int      `json:"max_chunk_chars"`
}

type UploadCSVResponse struct {
	Dataset   DatasetInfo `json:"dataset"`
	SessionID string      `json:"session_id"`
	Oversized []int       `json:"oversized_chunks,omitempty"`
	// Warning reports a failed delete of the replaced session.
	Warning   string      `json:"warning,omitempty"`
}

type PreviewResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Total   int        `json:"total_rows"`
}

type SessionResponse struct {
	Loaded    bool         `json:"loaded"`
	SessionID string       `json:"session_id,omitempty"`
	Dataset   *DatasetInfo `json:"dataset,omitempty"`
	Turns     int          `json:"turns"`
}
