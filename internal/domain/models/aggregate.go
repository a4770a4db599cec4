package models

// AppData is the single root aggregate holding every domain collection for
// one identity session. It is treated as an immutable value: mutations build
// a new AppData (see Clone) and swap it in wholesale, so any reader holding
// a previous value keeps a consistent snapshot.
//
// Every collection is always present after migration, never nil, even when
// empty.
type AppData struct {
	Residents         []Resident           `json:"residents"`
	Products          []Product            `json:"products"`
	Transactions      []Transaction        `json:"transactions"`
	Prescriptions     []Prescription       `json:"prescriptions"`
	MedicalAppts      []MedicalAppointment `json:"medicalAppointments"`
	Demands           []Demand             `json:"demands"`
	Professionals     []Professional       `json:"professionals"`
	Employees         []Employee           `json:"employees"`
	EmployeeRoles     []string             `json:"employeeRoles"`
	TimeSheets        []TimeSheetEntry     `json:"timeSheets"`
	TechnicalSessions []TechnicalSession   `json:"technicalSessions"`
	Evolutions        []EvolutionRecord    `json:"evolutions"`
	HouseDocuments    []HouseDocument      `json:"houseDocuments"`
}

// DefaultEmployeeRoles seeds the role list of a brand-new aggregate.
var DefaultEmployeeRoles = []string{
	"CUIDADOR(A)",
	"TEC_ENFERMAGEM",
	"ENFERMEIRO(A)",
	"COZINHEIRO(A)",
	"SERVICOS_GERAIS",
	"ADMINISTRATIVO",
}

// Initial returns the documented initial aggregate: every collection empty
// except the seeded employee-role list.
func Initial() AppData {
	return AppData{
		Residents:         []Resident{},
		Products:          []Product{},
		Transactions:      []Transaction{},
		Prescriptions:     []Prescription{},
		MedicalAppts:      []MedicalAppointment{},
		Demands:           []Demand{},
		Professionals:     []Professional{},
		Employees:         []Employee{},
		EmployeeRoles:     append([]string(nil), DefaultEmployeeRoles...),
		TimeSheets:        []TimeSheetEntry{},
		TechnicalSessions: []TechnicalSession{},
		Evolutions:        []EvolutionRecord{},
		HouseDocuments:    []HouseDocument{},
	}
}

// Clone returns a copy of the aggregate with every top-level collection
// reallocated. Elements are copied by value; mutators must replace whole
// elements rather than edit them in place, so sharing their inner slices is
// safe.
func (d AppData) Clone() AppData {
	out := d
	out.Residents = append([]Resident{}, d.Residents...)
	out.Products = append([]Product{}, d.Products...)
	out.Transactions = append([]Transaction{}, d.Transactions...)
	out.Prescriptions = append([]Prescription{}, d.Prescriptions...)
	out.MedicalAppts = append([]MedicalAppointment{}, d.MedicalAppts...)
	out.Demands = append([]Demand{}, d.Demands...)
	out.Professionals = append([]Professional{}, d.Professionals...)
	out.Employees = append([]Employee{}, d.Employees...)
	out.EmployeeRoles = append([]string{}, d.EmployeeRoles...)
	out.TimeSheets = append([]TimeSheetEntry{}, d.TimeSheets...)
	out.TechnicalSessions = append([]TechnicalSession{}, d.TechnicalSessions...)
	out.Evolutions = append([]EvolutionRecord{}, d.Evolutions...)
	out.HouseDocuments = append([]HouseDocument{}, d.HouseDocuments...)
	return out
}
