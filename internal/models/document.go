package models

// ChunkMetadata describes where a retrieved passage came from.
type ChunkMetadata struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Section     string `json:"section,omitempty"`
	ContentType string `json:"contentType"`
	Collection  string `json:"collection,omitempty"`
}

// Chunk is one retrievable passage with its similarity score in [0,1].
type Chunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// RetrievedDoc is the trimmed view of a chunk handed back to callers.
type RetrievedDoc struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Excerpt string  `json:"excerpt"`
}

// Excerpt returns the first n runes of the chunk content.
func (c Chunk) Excerpt(n int) string {
	r := []rune(c.Content)
	if len(r) <= n {
		return c.Content
	}
	return string(r[:n]) + "..."
}
