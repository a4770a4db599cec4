// Package migrate is the compatibility boundary between raw stored payloads
// and the typed aggregate. Every record loaded from any source (local slots,
// remote document, imported backup file) passes through it.
//
// FromRaw is total, pure and idempotent: it never fails, substitutes a
// documented default for anything missing or mistyped, drops unknown fields,
// and lifts superseded legacy fields into their replacements. Migrating an
// already-migrated aggregate is a no-op.
package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/careflowhq/careflow/internal/domain/models"
	"github.com/careflowhq/careflow/pkg/ids"
)

// now is swapped in tests that pin date defaulting.
var now = time.Now

func todayISO() string {
	return now().Format("2006-01-02")
}

// Parse decodes a serialized aggregate and migrates it. It fails only when
// the payload is not valid JSON or its root is not an object; migration
// itself never fails.
func Parse(raw []byte) (models.AppData, error) {
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return models.AppData{}, fmt.Errorf("parse aggregate: %w", err)
	}
	if tree == nil {
		return models.AppData{}, errors.New("parse aggregate: root is not an object")
	}
	return FromRaw(tree), nil
}

// FromRaw turns an untyped record tree into a fully-defaulted aggregate.
// Collections that are absent or not arrays become empty, never nil, with
// the single exception of employeeRoles which falls back to the seeded
// default list when absent.
func FromRaw(tree map[string]any) models.AppData {
	return models.AppData{
		Residents:         mapObjs(tree, "residents", residentFromRaw),
		Products:          mapObjs(tree, "products", ProductFromRaw),
		Transactions:      mapObjs(tree, "transactions", TransactionFromRaw),
		Prescriptions:     mapObjs(tree, "prescriptions", prescriptionFromRaw),
		MedicalAppts:      mapObjs(tree, "medicalAppointments", appointmentFromRaw),
		Demands:           mapObjs(tree, "demands", demandFromRaw),
		Professionals:     mapObjs(tree, "professionals", professionalFromRaw),
		Employees:         mapObjs(tree, "employees", employeeFromRaw),
		EmployeeRoles:     rolesFromRaw(tree),
		TimeSheets:        mapObjs(tree, "timeSheets", timeSheetFromRaw),
		TechnicalSessions: mapObjs(tree, "technicalSessions", technicalSessionFromRaw),
		Evolutions:        mapObjs(tree, "evolutions", evolutionFromRaw),
		HouseDocuments:    mapObjs(tree, "houseDocuments", houseDocumentFromRaw),
	}
}

func residentFromRaw(m map[string]any) models.Resident {
	resp := obj(m, "responsible")
	return models.Resident{
		ID:                             strOr(m, "id", ids.New()),
		Name:                           strOr(m, "name", "Nome Desconhecido"),
		CPF:                            strOr(m, "cpf", ""),
		BirthDate:                      strOr(m, "birthDate", ""),
		AdmissionDate:                  strOr(m, "admissionDate", ""),
		Room:                           strOr(m, "room", "A definir"),
		Photo:                          strOr(m, "photo", ""),
		DailyExchangeEstimate:          intOr(m, "dailyExchangeEstimate", 5),
		AbsorbentDailyExchangeEstimate: intOr(m, "absorbentDailyExchangeEstimate", 0),
		Observations:                   strOr(m, "observations", ""),
		Active:                         boolOr(m, "active", true),
		PharmacyPhone:                  strOr(m, "pharmacyPhone", ""),
		Pharmacies:                     mapObjs(m, "pharmacies", pharmacyFromRaw),
		Responsible: models.ResponsibleContact{
			Name:     strOr(resp, "name", ""),
			Relation: strOr(resp, "relation", ""),
			Phone1:   strOr(resp, "phone1", ""),
			Phone2:   strOr(resp, "phone2", ""),
			Email:    strOr(resp, "email", ""),
		},
		Documents:         mapObjs(m, "documents", residentDocumentFromRaw),
		DefaultMonthlyFee: numOr(m, "defaultMonthlyFee", 0),
		DefaultDueDay:     intOr(m, "defaultDueDay", 10),
		FinancialRecords:  mapObjs(m, "financialRecords", financialRecordFromRaw),
	}
}

// ProductFromRaw is exported because import previews and the remote channel
// default individual products outside a full-aggregate migration.
func ProductFromRaw(m map[string]any) models.Product {
	return models.Product{
		ID:           strOr(m, "id", ids.New()),
		Name:         strOr(m, "name", "Produto Sem Nome"),
		Brand:        strOr(m, "brand", ""),
		Category:     strOr(m, "category", "Outros"),
		CurrentStock: intOr(m, "currentStock", 0),
		MinStock:     intOr(m, "minStock", 5),
		Unit:         strOr(m, "unit", "Unidade"),
	}
}

// TransactionFromRaw defaults a single ledger entry. A missing direction
// becomes OUT, matching the stored-positive/sign-by-direction convention.
func TransactionFromRaw(m map[string]any) models.Transaction {
	return models.Transaction{
		ID:           strOr(m, "id", ids.New()),
		Date:         strOr(m, "date", todayISO()),
		Type:         models.TransactionType(strOr(m, "type", string(models.TransactionOut))),
		ProductID:    strOr(m, "productId", ""),
		ProductName:  strOr(m, "productName", "Item Removido"),
		ResidentID:   strOr(m, "residentId", ""),
		ResidentName: strOr(m, "residentName", ""),
		Quantity:     intOr(m, "quantity", 1),
		Notes:        strOr(m, "notes", ""),
	}
}

func prescriptionFromRaw(m map[string]any) models.Prescription {
	return models.Prescription{
		ID:          strOr(m, "id", ids.New()),
		ResidentID:  strOr(m, "residentId", ""),
		ProductID:   strOr(m, "productId", ""),
		ProductName: strOr(m, "productName", "Medicamento"),
		Dosage:      strOr(m, "dosage", ""),
		Frequency:   strOr(m, "frequency", ""),
		Times:       strOr(m, "times", ""),
		PDFBase64:   strOr(m, "pdfBase64", ""),
		LinkURL:     strOr(m, "linkUrl", ""),
		Active:      boolOr(m, "active", true),
		IsTreatment: boolOr(m, "isTreatment", false),
	}
}

func appointmentFromRaw(m map[string]any) models.MedicalAppointment {
	return models.MedicalAppointment{
		ID:                 strOr(m, "id", ids.New()),
		ResidentID:         strOr(m, "residentId", ""),
		Type:               strOr(m, "type", "CONSULTA"),
		Specialty:          strOr(m, "specialty", "Clínico Geral"),
		DoctorName:         strOr(m, "doctorName", ""),
		Date:               strOr(m, "date", ""),
		Time:               strOr(m, "time", ""),
		Location:           strOr(m, "location", ""),
		Status:             strOr(m, "status", "AGENDADO"),
		Notes:              strOr(m, "notes", ""),
		Diagnosis:          strOr(m, "diagnosis", ""),
		AccompanyingPerson: strOr(m, "accompanyingPerson", ""),
		OutcomeNotes:       strOr(m, "outcomeNotes", ""),
		AttachmentBase64:   strOr(m, "attachmentBase64", ""),
		LinkURL:            strOr(m, "linkUrl", ""),
	}
}

func demandFromRaw(m map[string]any) models.Demand {
	areas, ok := strList(m, "professionalAreas")
	if !ok {
		// Legacy payloads carried a single professionalArea field.
		areas = []string{}
		if legacy := strOr(m, "professionalArea", ""); legacy != "" {
			areas = []string{legacy}
		}
	}
	residentIDs, ok := strList(m, "residentIds")
	if !ok {
		residentIDs = []string{}
	}
	return models.Demand{
		ID:                strOr(m, "id", ids.New()),
		ProfessionalAreas: areas,
		Title:             strOr(m, "title", "Demanda sem título"),
		Description:       strOr(m, "description", ""),
		ResidentIDs:       residentIDs,
		Status:            strOr(m, "status", "PENDENTE"),
		CreationDate:      strOr(m, "creationDate", todayISO()),
		DueDate:           strOr(m, "dueDate", ""),
	}
}

func professionalFromRaw(m map[string]any) models.Professional {
	return models.Professional{
		ID:        strOr(m, "id", ids.New()),
		Name:      strOr(m, "name", "Profissional Sem Nome"),
		Area:      strOr(m, "area", "ENFERMAGEM"),
		Phone:     strOr(m, "phone", ""),
		Photo:     strOr(m, "photo", ""),
		Documents: mapObjs(m, "documents", staffDocumentFromRaw),
	}
}

func employeeFromRaw(m map[string]any) models.Employee {
	return models.Employee{
		ID:            strOr(m, "id", ids.New()),
		Name:          strOr(m, "name", "Funcionário"),
		Role:          strOr(m, "role", "CUIDADOR(A)"),
		Phone:         strOr(m, "phone", ""),
		CPF:           strOr(m, "cpf", ""),
		AdmissionDate: strOr(m, "admissionDate", ""),
		Active:        boolOr(m, "active", true),
		Photo:         strOr(m, "photo", ""),
		Documents:     mapObjs(m, "documents", staffDocumentFromRaw),
	}
}

func rolesFromRaw(tree map[string]any) []string {
	if roles, ok := strList(tree, "employeeRoles"); ok {
		return roles
	}
	return append([]string(nil), models.DefaultEmployeeRoles...)
}

func timeSheetFromRaw(m map[string]any) models.TimeSheetEntry {
	return models.TimeSheetEntry{
		ID:         strOr(m, "id", ids.New()),
		Date:       strOr(m, "date", todayISO()),
		EmployeeID: strOr(m, "employeeId", ""),
		Present:    boolOr(m, "present", false),
		Notes:      strOr(m, "notes", ""),
	}
}

func technicalSessionFromRaw(m map[string]any) models.TechnicalSession {
	return models.TechnicalSession{
		ID:               strOr(m, "id", ids.New()),
		ResidentID:       strOr(m, "residentId", ""),
		ProfessionalID:   strOr(m, "professionalId", ""),
		ProfessionalName: strOr(m, "professionalName", ""),
		Area:             strOr(m, "area", "PSICOLOGIA"),
		Date:             strOr(m, "date", todayISO()),
		Status:           strOr(m, "status", "CONCLUIDO"),
		Notes:            strOr(m, "notes", ""),
	}
}

func evolutionFromRaw(m map[string]any) models.EvolutionRecord {
	return models.EvolutionRecord{
		ID:            strOr(m, "id", ids.New()),
		ResidentID:    strOr(m, "residentId", ""),
		Date:          strOr(m, "date", todayISO()),
		Type:          strOr(m, "type", "DIARIA"),
		Role:          strOr(m, "role", "TEC_ENFERMAGEM"),
		FilePDFBase64: strOr(m, "filePdfBase64", ""),
		FileName:      strOr(m, "fileName", ""),
		CreatedAt:     strOr(m, "createdAt", now().Format(time.RFC3339)),
	}
}

func houseDocumentFromRaw(m map[string]any) models.HouseDocument {
	return models.HouseDocument{
		ID:             strOr(m, "id", ids.New()),
		Type:           strOr(m, "type", "OUTRO"),
		Name:           strOr(m, "name", "Documento da Casa"),
		LinkURL:        strOr(m, "linkUrl", ""),
		ExpirationDate: strOr(m, "expirationDate", ""),
		IssueDate:      strOr(m, "issueDate", ""),
	}
}

func residentDocumentFromRaw(m map[string]any) models.ResidentDocument {
	return models.ResidentDocument{
		ID:        strOr(m, "id", ids.New()),
		Type:      strOr(m, "type", "OUTRO"),
		Name:      strOr(m, "name", "Documento"),
		Date:      strOr(m, "date", todayISO()),
		Base64:    strOr(m, "base64", ""),
		LinkURL:   strOr(m, "linkUrl", ""),
		IssueDate: strOr(m, "issueDate", ""),
	}
}

func staffDocumentFromRaw(m map[string]any) models.StaffDocument {
	return models.StaffDocument{
		ID:      strOr(m, "id", ids.New()),
		Type:    strOr(m, "type", "OUTRO"),
		Name:    strOr(m, "name", "Documento"),
		LinkURL: strOr(m, "linkUrl", ""),
		Date:    strOr(m, "date", todayISO()),
	}
}

func pharmacyFromRaw(m map[string]any) models.Pharmacy {
	return models.Pharmacy{
		ID:    strOr(m, "id", ids.New()),
		Name:  strOr(m, "name", "Farmácia"),
		Phone: strOr(m, "phone", ""),
	}
}

func financialRecordFromRaw(m map[string]any) models.FinancialRecord {
	return models.FinancialRecord{
		ID:          strOr(m, "id", ids.New()),
		MonthKey:    strOr(m, "monthKey", now().Format("2006-01")),
		Value:       numOr(m, "value", 0),
		DueDate:     strOr(m, "dueDate", ""),
		Status:      strOr(m, "status", "PENDENTE"),
		PaymentDate: strOr(m, "paymentDate", ""),
		Notes:       strOr(m, "notes", ""),
	}
}

// --- untyped tree accessors ---

// strOr returns the string under key, or def when the field is absent, not
// a string, or empty. Treating empty as absent mirrors how identifiers and
// enum-ish fields were historically stored.
func strOr(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

func numOr(m map[string]any, key string, def float64) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return def
}

func intOr(m map[string]any, key string, def int) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return def
}

func boolOr(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func obj(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

// mapObjs maps each element of the array under key through fn. Non-array or
// absent fields become empty slices; non-object elements are defaulted in
// full.
func mapObjs[T any](m map[string]any, key string, fn func(map[string]any) T) []T {
	raw, ok := m[key].([]any)
	if !ok {
		return []T{}
	}
	out := make([]T, 0, len(raw))
	for _, item := range raw {
		o, ok := item.(map[string]any)
		if !ok {
			o = map[string]any{}
		}
		out = append(out, fn(o))
	}
	return out
}

// strList returns the string elements of the array under key and whether the
// field was an array at all. Non-string elements are dropped.
func strList(m map[string]any, key string) ([]string, bool) {
	raw, ok := m[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}
