package models

import (
	"io"
	"time"
)

// Registration represents one persisted team registration
type Registration struct {
	ID            string    `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	Name          string    `json:"name" db:"name"`
	TeamName      *string   `json:"teamName" db:"team_name"`
	TeamID        *string   `json:"teamId" db:"team_id"`
	College       *string   `json:"college" db:"college"`
	Phone         *string   `json:"phone" db:"phone"`
	Member2Name   *string   `json:"member2Name" db:"member2_name"`
	Member3Name   *string   `json:"member3Name" db:"member3_name"`
	UpiID         *string   `json:"upiId" db:"upi_id"`
	ScreenshotURL *string   `json:"screenshotUrl" db:"screenshot_url"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// SubmissionPath identifies how a submission reached the intake service
type SubmissionPath string

const (
	// PathAPI is the JSON endpoint; the screenshot was uploaded beforehand
	PathAPI SubmissionPath = "api"
	// PathForm is the public form; the screenshot arrives as a file
	PathForm SubmissionPath = "form"
)

// Submission is a raw registration attempt before validation
type Submission struct {
	Path          SubmissionPath `json:"-"`
	Email         string         `json:"email" validate:"required"`
	Name          string         `json:"name" validate:"required"`
	TeamName      string         `json:"teamName"`
	TeamID        string         `json:"teamId"`
	College       string         `json:"college" validate:"required_if=Path form"`
	Phone         string         `json:"phone" validate:"required_if=Path form"`
	Member2Name   string         `json:"member2Name" validate:"required_if=Path form"`
	Member3Name   string         `json:"member3Name"`
	UpiID         string         `json:"upiId" validate:"required_if=Path form"`
	ScreenshotURL string         `json:"screenshot_url"`
	Screenshot    *ProofFile     `json:"-"`
}

// ProofFile is an uploaded proof-of-payment image
type ProofFile struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// RegisterRequest is the JSON body accepted by POST /register
type RegisterRequest struct {
	Email         string `json:"email" form:"email"`
	Name          string `json:"name" form:"name"`
	TeamName      string `json:"teamName" form:"teamName"`
	TeamID        string `json:"teamId" form:"teamId"`
	College       string `json:"college" form:"college"`
	Phone         string `json:"phone" form:"phone"`
	Member2Name   string `json:"member2Name" form:"member2Name"`
	Member3Name   string `json:"member3Name" form:"member3Name"`
	UpiID         string `json:"upiId" form:"upiId"`
	ScreenshotURL string `json:"screenshot_url" form:"screenshot_url"`
}

// ToSubmission converts the request into an intake submission for the given path
func (r *RegisterRequest) ToSubmission(path SubmissionPath) *Submission {
	return &Submission{
		Path:          path,
		Email:         r.Email,
		Name:          r.Name,
		TeamName:      r.TeamName,
		TeamID:        r.TeamID,
		College:       r.College,
		Phone:         r.Phone,
		Member2Name:   r.Member2Name,
		Member3Name:   r.Member3Name,
		UpiID:         r.UpiID,
		ScreenshotURL: r.ScreenshotURL,
	}
}

// RegisterResponse is the success body of POST /register
type RegisterResponse struct {
	Success bool          `json:"success"`
	Data    *Registration `json:"data"`
}
