package records

type ListRecordsQuery struct {
	Search string `query:"search" json:"search,omitempty" mod:"trim"`
	Limit  int    `query:"limit" json:"limit,omitempty" default:"25" validate:"min=1,max=100"`
	Offset int    `query:"offset" json:"offset,omitempty" validate:"min=0"`
}

type UpdateProductPayload struct {
	SKUCode  string `json:"skucode" mod:"trim" validate:"required,max=128"`
	ImageURL string `json:"imageurl" mod:"trim" validate:"omitempty,url"`
}

type ExportPayload struct {
	Selected []string `json:"selected" validate:"dive,required"`
}
