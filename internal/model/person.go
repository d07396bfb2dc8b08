package model

// Person is a roster entry from the contact directory. The directory is the
// source of truth; nothing here mutates it.
type Person struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	HouseholdID   string `json:"household_id,omitempty"`
	HouseholdName string `json:"household_name,omitempty"`
	IsChild       bool   `json:"is_child"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
}

// Household groups the adults of one household in roster order.
type Household struct {
	ID      string
	Name    string
	Members []Person
}
