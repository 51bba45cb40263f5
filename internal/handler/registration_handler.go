package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-portal-api/internal/middleware"
	"github.com/noah-isme/campus-portal-api/internal/service"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/export"
	"github.com/noah-isme/campus-portal-api/pkg/response"
)

// RegistrationHandler exposes the course registration endpoints.
type RegistrationHandler struct {
	eligibility   *service.EligibilityService
	requirements  *service.RequirementService
	registrations *service.RegistrationService
	finance       *service.FinanceService
	metrics       *service.MetricsService
	csv           *export.CSVExporter
	pdf           *export.PDFExporter
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(eligibility *service.EligibilityService, requirements *service.RequirementService, registrations *service.RegistrationService, finance *service.FinanceService, metrics *service.MetricsService) *RegistrationHandler {
	return &RegistrationHandler{
		eligibility:   eligibility,
		requirements:  requirements,
		registrations: registrations,
		finance:       finance,
		metrics:       metrics,
		csv:           export.NewCSVExporter(),
		pdf:           export.NewPDFExporter(),
	}
}

// Eligibility godoc
// @Summary Check registration eligibility for a period
// @Tags Registration
// @Produce json
// @Param studentId query string false "Student ID, defaults to the access token subject"
// @Param periodId query string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /registration/eligibility [get]
func (h *RegistrationHandler) Eligibility(c *gin.Context) {
	studentID := studentIDFrom(c)
	periodID := c.Query("periodId")
	if studentID == "" || periodID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId and periodId are required"))
		return
	}

	result, err := h.eligibility.Resolve(c.Request.Context(), studentID, periodID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Courses godoc
// @Summary List selectable courses for a student and program
// @Tags Registration
// @Produce json
// @Param studentId query string false "Student ID, defaults to the access token subject"
// @Param programId query string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /registration/courses [get]
func (h *RegistrationHandler) Courses(c *gin.Context) {
	studentID := studentIDFrom(c)
	programID := c.Query("programId")
	if studentID == "" || programID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId and programId are required"))
		return
	}

	classification, err := h.requirements.ClassifyCached(c.Request.Context(), studentID, programID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classification, nil)
}

// Register godoc
// @Summary Submit a course registration
// @Tags Registration
// @Accept json
// @Produce json
// @Param payload body service.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Router /registration [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.StudentID == "" {
		if claims := middleware.Claims(c); claims != nil {
			req.StudentID = claims.StudentID
		}
	}

	result, err := h.registrations.Register(c.Request.Context(), req)
	if err != nil {
		h.observe(appErrors.FromError(err).Code)
		response.Error(c, err)
		return
	}
	h.observe("SUCCESS")

	var meta map[string]interface{}
	if result.SeedWarning != "" {
		meta = map[string]interface{}{"warning": result.SeedWarning}
	}
	response.JSON(c, http.StatusCreated, result, nil, meta)
}

// Statement godoc
// @Summary Export a student's enrollment and billing statement
// @Tags Registration
// @Produce text/csv
// @Produce application/pdf
// @Param studentId query string false "Student ID, defaults to the access token subject"
// @Param periodId query string true "Period ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /registration/statement [get]
func (h *RegistrationHandler) Statement(c *gin.Context) {
	studentID := studentIDFrom(c)
	periodID := c.Query("periodId")
	if studentID == "" || periodID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId and periodId are required"))
		return
	}

	dataset, err := h.finance.Statement(c.Request.Context(), studentID, periodID)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("statement-%s", periodID)
	switch c.DefaultQuery("format", "csv") {
	case "pdf":
		payload, err := h.pdf.Render(dataset, "Registration Statement")
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement"))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", filename))
		c.Data(http.StatusOK, "application/pdf", payload)
	case "csv":
		payload, err := h.csv.Render(dataset)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement"))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
		c.Data(http.StatusOK, "text/csv", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}

func (h *RegistrationHandler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveRegistration(outcome)
	}
}

// studentIDFrom prefers the explicit query parameter and falls back to the
// student id baked into the access token.
func studentIDFrom(c *gin.Context) string {
	if id := c.Query("studentId"); id != "" {
		return id
	}
	if claims := middleware.Claims(c); claims != nil {
		return claims.StudentID
	}
	return ""
}
