package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/careflowhq/careflow/internal/controller"
	"github.com/careflowhq/careflow/internal/domain/models"
)

// CrudHandler exposes the controller's typed mutation commands over HTTP.
// Every route applies its change to the in-memory aggregate synchronously;
// persistence and remote push are the controller's business.
type CrudHandler struct {
	ctrl   *controller.Controller
	logger *zap.Logger
}

// NewCrudHandler creates a new CRUD handler.
func NewCrudHandler(ctrl *controller.Controller, logger *zap.Logger) *CrudHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrudHandler{ctrl: ctrl, logger: logger}
}

// mutate runs a controller command and writes the outcome.
func (h *CrudHandler) mutate(c *gin.Context, run func() error) {
	if err := run(); err != nil {
		respondMutationError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bindAndMutate[T any](h *CrudHandler, c *gin.Context, run func(T) error) {
	var payload T
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mutate(c, func() error { return run(payload) })
}

// --- stock ledger ---

// AppendTransaction records a stock movement.
func (h *CrudHandler) AppendTransaction(c *gin.Context) {
	bindAndMutate(h, c, func(tx models.Transaction) error { return h.ctrl.AppendTransaction(tx) })
}

// AmendTransaction replaces an existing ledger entry.
func (h *CrudHandler) AmendTransaction(c *gin.Context) {
	bindAndMutate(h, c, func(tx models.Transaction) error { return h.ctrl.AmendTransaction(tx) })
}

// RemoveTransaction deletes a ledger entry and reverts its stock effect.
func (h *CrudHandler) RemoveTransaction(c *gin.Context) {
	h.mutate(c, func() error { return h.ctrl.RemoveTransaction(c.Param("id")) })
}

// --- simple collections ---

// UpsertResident inserts or replaces a resident.
func (h *CrudHandler) UpsertResident(c *gin.Context) {
	bindAndMutate(h, c, func(r models.Resident) error { return h.ctrl.UpsertResident(r) })
}

// DeleteResident removes a resident.
func (h *CrudHandler) DeleteResident(c *gin.Context) {
	h.mutate(c, func() error { return h.ctrl.DeleteResident(c.Param("id")) })
}

// UpsertProduct inserts or replaces a product.
func (h *CrudHandler) UpsertProduct(c *gin.Context) {
	bindAndMutate(h, c, func(p models.Product) error { return h.ctrl.UpsertProduct(p) })
}

// DeleteProduct removes a product.
func (h *CrudHandler) DeleteProduct(c *gin.Context) {
	h.mutate(c, func() error { return h.ctrl.DeleteProduct(c.Param("id")) })
}

// UpsertPrescription inserts or replaces a prescription.
func (h *CrudHandler) UpsertPrescription(c *gin.Context) {
	bindAndMutate(h, c, func(p models.Prescription) error { return h.ctrl.UpsertPrescription(p) })
}

// DeletePrescription removes a prescription.
func (h *CrudHandler) DeletePrescription(c *gin.Context) {
	h.mutate(c, func() error { return h.ctrl.DeletePrescription(c.Param("id")) })
}

// UpsertAppointment inserts or replaces a medical appointment.
func (h *CrudHandler) UpsertAppointment(c *gin.Context) {
	bindAndMutate(h, c, func(a models.MedicalAppointment) error { return h.ctrl.UpsertAppointment(a) })
}

// DeleteAppointment removes a medical appointment.
func (h *CrudHandler) DeleteAppointment(c *gin.Context) {
	h.mutate(c, func() error { return h.ctrl.DeleteAppointment(c.Param("id")) })
}

// UpsertDemand inserts or replaces a demand.
func (h *CrudHandler) UpsertDemand(c *gin.Context) {
	bindAndMutate(h, c, func(d models.Demand) error { return h.ctrl.UpsertDemand(d) })
}

// DeleteDemand removes a demand.
func (h *CrudHandler) DeleteDemand(c *gin.Context) {
	h.mutate(c, func() error { return h.ctrl.DeleteDemand(c.Param("id")) })
}

// UpsertProfessional inserts or replaces a professional.
func (h *CrudHandler) UpsertProfessional(c *gin.Context) {
	bindAndMutate(h, c, func(p models.Professional) error { return h.ctrl.UpsertProfessional(p) })
}

// DeleteProfessional removes a professional.
func (h *CrudHandler) DeleteProfessional(c *gin.Context) {
	h.mutate(c, func() error { return h.ctrl.DeleteProfessional(c.Param("id")) })
}

// UpsertEmployee inserts or replaces an employee.
func (h *CrudHandler) UpsertEmployee(c *gin.Context) {
	bindAndMutate(h, c, func(e models.Employee) error { return h.ctrl.UpsertEmployee(e) })
}

// DeleteEmployee removes an employee.
func (h *CrudHandler) DeleteEmployee(c *gin.Context) {
	h.mutate(c, func() error { return h.ctrl.DeleteEmployee(c.Param("id")) })
}

// SetEmployeeRoles replaces the employee-role name list.
func (h *CrudHandler) SetEmployeeRoles(c *gin.Context) {
	bindAndMutate(h, c, func(roles []string) error { return h.ctrl.SetEmployeeRoles(roles) })
}

// UpsertTimeSheet records presence for one employee on one date.
func (h *CrudHandler) UpsertTimeSheet(c *gin.Context) {
	bindAndMutate(h, c, func(e models.TimeSheetEntry) error { return h.ctrl.UpsertTimeSheet(e) })
}

// DeleteTimeSheet removes the presence entry addressed by the date and
// employeeId query parameters.
func (h *CrudHandler) DeleteTimeSheet(c *gin.Context) {
	date := c.Query("date")
	employeeID := c.Query("employeeId")
	if date == "" || employeeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date and employeeId are required"})
		return
	}
	h.mutate(c, func() error { return h.ctrl.DeleteTimeSheet(date, employeeID) })
}

// UpsertTechnicalSession inserts or replaces a technical-care session.
func (h *CrudHandler) UpsertTechnicalSession(c *gin.Context) {
	bindAndMutate(h, c, func(s models.TechnicalSession) error { return h.ctrl.UpsertTechnicalSession(s) })
}

// DeleteTechnicalSession removes a technical-care session.
func (h *CrudHandler) DeleteTechnicalSession(c *gin.Context) {
	h.mutate(c, func() error { return h.ctrl.DeleteTechnicalSession(c.Param("id")) })
}

// SaveEvolutions upserts a batch of evolution records.
func (h *CrudHandler) SaveEvolutions(c *gin.Context) {
	bindAndMutate(h, c, func(records []models.EvolutionRecord) error { return h.ctrl.SaveEvolutions(records) })
}

// DeleteEvolution removes an evolution record.
func (h *CrudHandler) DeleteEvolution(c *gin.Context) {
	h.mutate(c, func() error { return h.ctrl.DeleteEvolution(c.Param("id")) })
}

// UpsertHouseDocument inserts or replaces a house document.
func (h *CrudHandler) UpsertHouseDocument(c *gin.Context) {
	bindAndMutate(h, c, func(doc models.HouseDocument) error { return h.ctrl.UpsertHouseDocument(doc) })
}

// DeleteHouseDocument removes a house document.
func (h *CrudHandler) DeleteHouseDocument(c *gin.Context) {
	h.mutate(c, func() error { return h.ctrl.DeleteHouseDocument(c.Param("id")) })
}
