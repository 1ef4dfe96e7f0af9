package domain

// SearchResultItem is one ranked lookup result. Recomputed wholesale on every search.
type SearchResultItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Snippet   string `json:"snippet"`
	Thumbnail string `json:"thumbnail,omitempty"`
}
