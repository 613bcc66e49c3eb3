package dispatch

type EnterPayload struct {
	Value string `json:"value" mod:"trim" validate:"required,max=128"`
}
