package model

// IntakeForm holds the applicant fields submitted with the upload form.
type IntakeForm struct {
	FirstName string `json:"first_name" form:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" form:"last_name" validate:"required,max=100"`
	Phone     string `json:"phone" form:"phone" validate:"required,max=40"`
	Email     string `json:"email" form:"email" validate:"required,email,max=254"`
	SSNLast4  string `json:"ssn_last4" form:"ssn_last4" validate:"required,last4"`
	Certify   string `json:"certify" form:"certify" validate:"required,oneof=on true 1 yes"`
}
