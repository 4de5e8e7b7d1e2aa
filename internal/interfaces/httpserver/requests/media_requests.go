package requests

// UpdateStatusRequest is the body of PATCH /v1/media/:id/status.
type UpdateStatusRequest struct {
	Status          string  `json:"status" validate:"required,oneof=uploading ready processing completed error"`
	Progress        *int    `json:"progress" validate:"omitempty,min=0,max=100"`
	ErrorMessage    *string `json:"errorMessage" validate:"omitempty,max=2000"`
	TranscribedText *string `json:"transcribedText"`
}
