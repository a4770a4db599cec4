package models

// Demand is a care demand routed to one or more professional areas.
// ProfessionalAreas supersedes the legacy single-area field; migration lifts
// the old value into the list.
type Demand struct {
	ID                string   `json:"id"`
	ProfessionalAreas []string `json:"professionalAreas"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	ResidentIDs       []string `json:"residentIds"`
	Status            string   `json:"status"`
	CreationDate      string   `json:"creationDate"`
	DueDate           string   `json:"dueDate"`
}

// TechnicalSession is one technical-care session held by a professional with
// a resident.
type TechnicalSession struct {
	ID               string `json:"id"`
	ResidentID       string `json:"residentId"`
	ProfessionalID   string `json:"professionalId"`
	ProfessionalName string `json:"professionalName"`
	Area             string `json:"area"`
	Date             string `json:"date"`
	Status           string `json:"status"`
	Notes            string `json:"notes"`
}

// EvolutionRecord is a periodic (daily or monthly) clinical evolution note
// for a resident, filed by role.
type EvolutionRecord struct {
	ID            string `json:"id"`
	ResidentID    string `json:"residentId"`
	Date          string `json:"date"`
	Type          string `json:"type"`
	Role          string `json:"role"`
	FilePDFBase64 string `json:"filePdfBase64,omitempty"`
	FileName      string `json:"fileName,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

// HouseDocument is an institutional document of the house itself (permits,
// certificates), tracked with issue and expiration dates.
type HouseDocument struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Name           string `json:"name"`
	LinkURL        string `json:"linkUrl"`
	ExpirationDate string `json:"expirationDate"`
	IssueDate      string `json:"issueDate"`
}
