package models

// StaffDocument is a document attached to a professional's or employee's
// file.
type StaffDocument struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	LinkURL string `json:"linkUrl"`
	Date    string `json:"date"`
}

// Professional is an external technical professional (psychologist,
// physiotherapist, ...) attending residents.
type Professional struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Area      string          `json:"area"`
	Phone     string          `json:"phone"`
	Photo     string          `json:"photo"`
	Documents []StaffDocument `json:"documents"`
}

// Employee is a member of the house staff.
type Employee struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Role          string          `json:"role"`
	Phone         string          `json:"phone"`
	CPF           string          `json:"cpf"`
	AdmissionDate string          `json:"admissionDate"`
	Active        bool            `json:"active"`
	Photo         string          `json:"photo"`
	Documents     []StaffDocument `json:"documents"`
}

// TimeSheetEntry records one employee's presence on one date. The pair
// (Date, EmployeeID) is unique within the collection.
type TimeSheetEntry struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	EmployeeID string `json:"employeeId"`
	Present    bool   `json:"present"`
	Notes      string `json:"notes"`
}
