package model

// Song is one indexed track as listed to the player UI.
type Song struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	Duration   float64 `json:"duration"` // seconds, 0 when unknown
	FilePath   string  `json:"-"`        // absolute path, never exposed through the API
	HasArtwork bool    `json:"hasArtwork"`
	MimeType   string  `json:"mimeType"`
}

// Artwork is an embedded cover picture.
type Artwork struct {
	Data     []byte
	MimeType string
}
