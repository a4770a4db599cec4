package models

// Prescription links a resident to a medication product with its dosage
// schedule. PDFBase64 is the legacy inline attachment; LinkURL supersedes it.
type Prescription struct {
	ID          string `json:"id"`
	ResidentID  string `json:"residentId"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Dosage      string `json:"dosage"`
	Frequency   string `json:"frequency"`
	Times       string `json:"times"`
	PDFBase64   string `json:"pdfBase64"`
	LinkURL     string `json:"linkUrl"`
	Active      bool   `json:"active"`
	IsTreatment bool   `json:"isTreatment"`
}

// MedicalAppointment is a scheduled or completed medical encounter for a
// resident.
type MedicalAppointment struct {
	ID                 string `json:"id"`
	ResidentID         string `json:"residentId"`
	Type               string `json:"type"`
	Specialty          string `json:"specialty"`
	DoctorName         string `json:"doctorName"`
	Date               string `json:"date"`
	Time               string `json:"time"`
	Location           string `json:"location"`
	Status             string `json:"status"`
	Notes              string `json:"notes"`
	Diagnosis          string `json:"diagnosis"`
	AccompanyingPerson string `json:"accompanyingPerson"`
	OutcomeNotes       string `json:"outcomeNotes"`
	AttachmentBase64   string `json:"attachmentBase64"`
	LinkURL            string `json:"linkUrl"`
}
