package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/careflowhq/careflow/internal/controller"
	"github.com/careflowhq/careflow/internal/store/local"
)

// DataHandler exposes the session signal, the aggregate snapshot and the
// backup/restore/reset surface.
type DataHandler struct {
	ctrl   *controller.Controller
	logger *zap.Logger
}

// NewDataHandler creates a new data handler.
func NewDataHandler(ctrl *controller.Controller, logger *zap.Logger) *DataHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataHandler{ctrl: ctrl, logger: logger}
}

type sessionRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// OpenSession starts an identity session, switching the controller to the
// remote channel for that identity.
func (h *DataHandler) OpenSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The subscription must outlive this request.
	h.ctrl.SetIdentity(context.Background(), req.UserID)
	c.Status(http.StatusNoContent)
}

// CloseSession ends the identity session and falls back to local data.
func (h *DataHandler) CloseSession(c *gin.Context) {
	h.ctrl.ClearIdentity()
	c.Status(http.StatusNoContent)
}

// Status reports the reconciliation state.
func (h *DataHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Status())
}

// Snapshot returns the current aggregate.
func (h *DataHandler) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Snapshot())
}

// ExportBackup streams the aggregate as a downloadable backup file.
func (h *DataHandler) ExportBackup(c *gin.Context) {
	payload, name, err := h.ctrl.Export()
	if err != nil {
		h.logger.Error("backup export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build backup"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/json", payload)
}

// RestoreBackup performs a destructive full replace from an uploaded backup
// file. The caller confirms via the confirm query parameter; without it the
// payload is only validated.
func (h *DataHandler) RestoreBackup(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}

	confirmed := c.Query("confirm") == "true"
	switch err := h.ctrl.Import(raw, confirmed); {
	case errors.Is(err, controller.ErrMalformedImport):
		c.JSON(http.StatusBadRequest, gin.H{"error": "file does not look like a CareFlow backup"})
	case errors.Is(err, controller.ErrConfirmationRequired):
		c.JSON(http.StatusConflict, gin.H{"error": "restore requires confirm=true", "valid": true})
	case err != nil:
		respondMutationError(c, h.logger, err)
	default:
		c.JSON(http.StatusOK, gin.H{"restored": true})
	}
}

type factoryResetRequest struct {
	Confirmation string `json:"confirmation"`
}

// FactoryReset erases both local slots and reinstates the initial aggregate.
func (h *DataHandler) FactoryReset(c *gin.Context) {
	var req factoryResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch err := h.ctrl.FactoryReset(req.Confirmation); {
	case errors.Is(err, controller.ErrConfirmationRequired):
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("confirmation phrase must be %q", controller.ResetPhrase)})
	case err != nil:
		respondMutationError(c, h.logger, err)
	default:
		c.JSON(http.StatusOK, gin.H{"reset": true})
	}
}

// respondMutationError maps a mutation outcome to a response. Capacity
// exhaustion is a warning: the in-memory aggregate kept the change and stays
// authoritative for the session.
func respondMutationError(c *gin.Context, logger *zap.Logger, err error) {
	if errors.Is(err, local.ErrCapacityExceeded) {
		c.JSON(http.StatusOK, gin.H{
			"warning": "local storage is full; the change is held in memory only. Download a backup and remove old attachments.",
		})
		return
	}
	logger.Error("mutation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
