package models

// ResponsibleContact identifies the family member or guardian answering for
// a resident.
type ResponsibleContact struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
	Phone1   string `json:"phone1"`
	Phone2   string `json:"phone2"`
	Email    string `json:"email"`
}

// Pharmacy is a pharmacy a resident's medication is sourced from.
type Pharmacy struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ResidentDocument is a document attached to a resident's file. Base64 is
// the legacy inline payload; newer records carry a LinkURL instead.
type ResidentDocument struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Date      string `json:"date"`
	Base64    string `json:"base64"`
	LinkURL   string `json:"linkUrl"`
	IssueDate string `json:"issueDate"`
}

// FinancialRecord tracks one month of a resident's fee.
type FinancialRecord struct {
	ID          string  `json:"id"`
	MonthKey    string  `json:"monthKey"`
	Value       float64 `json:"value"`
	DueDate     string  `json:"dueDate"`
	Status      string  `json:"status"`
	PaymentDate string  `json:"paymentDate"`
	Notes       string  `json:"notes"`
}

// Resident is one person under care.
type Resident struct {
	ID                             string             `json:"id"`
	Name                           string             `json:"name"`
	CPF                            string             `json:"cpf"`
	BirthDate                      string             `json:"birthDate"`
	AdmissionDate                  string             `json:"admissionDate"`
	Room                           string             `json:"room"`
	Photo                          string             `json:"photo"`
	DailyExchangeEstimate          int                `json:"dailyExchangeEstimate"`
	AbsorbentDailyExchangeEstimate int                `json:"absorbentDailyExchangeEstimate"`
	Observations                   string             `json:"observations"`
	Active                         bool               `json:"active"`
	PharmacyPhone                  string             `json:"pharmacyPhone"`
	Pharmacies                     []Pharmacy         `json:"pharmacies"`
	Responsible                    ResponsibleContact `json:"responsible"`
	Documents                      []ResidentDocument `json:"documents"`
	DefaultMonthlyFee              float64            `json:"defaultMonthlyFee"`
	DefaultDueDay                  int                `json:"defaultDueDay"`
	FinancialRecords               []FinancialRecord  `json:"financialRecords"`
}
