package common

import (
	"github.com/google/uuid"
)

// NewArticleID generates a unique article ID with the "article_" prefix
// Format: article_<uuid>
func NewArticleID() string {
	return "article_" + uuid.New().String()
}
