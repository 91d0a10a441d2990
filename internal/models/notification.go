package models

// ConfirmationFields are the values rendered into the confirmation email
type ConfirmationFields struct {
	Name      string `json:"name" validate:"required"`
	EventName string `json:"eventName" validate:"required"`
	TeamName  string `json:"teamName" validate:"required"`
	TeamID    string `json:"teamId" validate:"required"`
}

// ConfirmationRequest is the body accepted by POST /send-confirmation
type ConfirmationRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	TeamName  string `json:"teamName"`
	TeamID    string `json:"teamId"`
	EventName string `json:"eventName"`
}

// Fields extracts the template fields from the request
func (r *ConfirmationRequest) Fields() ConfirmationFields {
	return ConfirmationFields{
		Name:      r.Name,
		EventName: r.EventName,
		TeamName:  r.TeamName,
		TeamID:    r.TeamID,
	}
}

// ConfirmationResponse is the success body of POST /send-confirmation
type ConfirmationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
