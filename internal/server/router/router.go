package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/careflowhq/careflow/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares.
func New(data *handlers.DataHandler, crud *handlers.CrudHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	api.POST("/session", data.OpenSession)
	api.DELETE("/session", data.CloseSession)
	api.GET("/status", data.Status)
	api.GET("/data", data.Snapshot)

	api.GET("/backup", data.ExportBackup)
	api.POST("/backup/restore", data.RestoreBackup)
	api.POST("/factory-reset", data.FactoryReset)

	api.POST("/transactions", crud.AppendTransaction)
	api.PUT("/transactions", crud.AmendTransaction)
	api.DELETE("/transactions/:id", crud.RemoveTransaction)

	api.PUT("/residents", crud.UpsertResident)
	api.DELETE("/residents/:id", crud.DeleteResident)
	api.PUT("/products", crud.UpsertProduct)
	api.DELETE("/products/:id", crud.DeleteProduct)
	api.PUT("/prescriptions", crud.UpsertPrescription)
	api.DELETE("/prescriptions/:id", crud.DeletePrescription)
	api.PUT("/appointments", crud.UpsertAppointment)
	api.DELETE("/appointments/:id", crud.DeleteAppointment)
	api.PUT("/demands", crud.UpsertDemand)
	api.DELETE("/demands/:id", crud.DeleteDemand)
	api.PUT("/professionals", crud.UpsertProfessional)
	api.DELETE("/professionals/:id", crud.DeleteProfessional)
	api.PUT("/employees", crud.UpsertEmployee)
	api.DELETE("/employees/:id", crud.DeleteEmployee)
	api.PUT("/employee-roles", crud.SetEmployeeRoles)
	api.PUT("/timesheets", crud.UpsertTimeSheet)
	api.DELETE("/timesheets", crud.DeleteTimeSheet)
	api.PUT("/technical-sessions", crud.UpsertTechnicalSession)
	api.DELETE("/technical-sessions/:id", crud.DeleteTechnicalSession)
	api.PUT("/evolutions", crud.SaveEvolutions)
	api.DELETE("/evolutions/:id", crud.DeleteEvolution)
	api.PUT("/house-documents", crud.UpsertHouseDocument)
	api.DELETE("/house-documents/:id", crud.DeleteHouseDocument)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
