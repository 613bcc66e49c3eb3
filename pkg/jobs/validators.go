package jobs

import (
	"mime/multipart"
)

type CreateUploadPayload struct {
	Entity    string                           `form:"entity" json:"entity" mod:"trim,lcase" validate:"required,oneof=products mrp gn appario coco"`
	FormFiles map[string]*multipart.FileHeader `form:"-" json:"-"`
}

type ListUploadsQuery struct {
	Limit  int      `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset int      `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Status []string `query:"status" json:"status,omitempty" validate:"dive,oneof=pending in_progress completed failed"`
}
