package upload

import (
	"slices"
)

// Entities are the record families the backend accepts uploads for.
var Entities = []string{"products", "mrp", "gn", "appario", "coco"}

func ValidEntity(entity string) bool {
	return slices.Contains(Entities, entity)
}

// Endpoint is the backend path that accepts one batch for entity.
func Endpoint(entity string) string {
	return "/" + entity + "/upload-chunk"
}
