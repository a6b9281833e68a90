package model

// LeadCandidate is one row returned by the Lead System search. SSN is only used
// to compute the last 4 digits and must never be persisted or logged.
type LeadCandidate struct {
	LeadID    string                 `json:"lead_id"`
	FirstName string                 `json:"first_name,omitempty"`
	LastName  string                 `json:"last_name,omitempty"`
	Email     string                 `json:"email,omitempty"`
	Phone     string                 `json:"phone,omitempty"`
	SSN       string                 `json:"-"`
	Raw       map[string]interface{} `json:"-"`
}

// ApplicantFields are the non-sensitive fields written to the Lead System.
type ApplicantFields struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

// Applicant returns the fields of the intake that may be sent on write paths.
func (i *Intake) Applicant() ApplicantFields {
	return ApplicantFields{
		FirstName: i.FirstName,
		LastName:  i.LastName,
		Phone:     i.Phone,
		Email:     i.Email,
	}
}
