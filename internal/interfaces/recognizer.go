package interfaces

import "github.com/ternarybob/nuntius/internal/models"

// EntityRecognizer is one extraction strategy. The catalog matcher and the
// statistical recognizer both implement it; a reconciliation step merges their
// outputs so extraction logic is never hard-wired to one implementation.
type EntityRecognizer interface {
	Recognize(text string) []models.Entity
	Name() string
}
