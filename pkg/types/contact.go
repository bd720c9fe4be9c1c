package types

// Contact is the participant contact snapshot frozen onto a transaction at
// creation time. A later profile edit never changes a trade already in flight.
type Contact struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Province    string `json:"province,omitempty"`
}
