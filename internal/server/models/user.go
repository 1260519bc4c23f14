package models

// User is a directory entry returned by recipient search. The directory
// itself is an external collaborator; this is only its wire shape.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

// RecipientValidation is the outcome of a recipient check against the user
// directory and the share registry.
type RecipientValidation struct {
	Valid       bool     `json:"valid"`
	Reason      string   `json:"reason,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}
