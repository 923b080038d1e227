package service

// Actor is the identity behind a call, resolved by the auth middleware.
type Actor struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	IsPrimaryApprover bool   `json:"is_primary_approver"`
}

// System authors automatic transitions such as expiry.
var System = Actor{ID: "system", Name: "System"}
