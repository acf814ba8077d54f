package http

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// collectionNamePattern is the spec's naming rule for collections and
// folders: an alphanumeric leading character followed by up to 63
// alphanumerics, underscores or hyphens.
var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("collname", func(fl validator.FieldLevel) bool {
			return collectionNamePattern.MatchString(fl.Field().String())
		})
	}
}

// validCollectionName reports whether name matches collectionNamePattern,
// for callers that read the collection off a non-JSON-bound field (a
// multipart form value) instead of a struct tag.
func validCollectionName(name string) bool {
	return collectionNamePattern.MatchString(name)
}
