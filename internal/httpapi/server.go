// Package httpapi exposes the cabinet operations over HTTP. Handlers
// translate pipeline outcomes into operator guidance; raw error text
// never reaches a response.
package httpapi

import (
	"context"
	"errors"
	"io"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"medcab/internal/bottle"
	"medcab/internal/catalog"
	"medcab/internal/face"
	"medcab/internal/recognize"
	"medcab/internal/service"
	"medcab/internal/store"
	"medcab/internal/threshold"
	"medcab/internal/unlock"
)

// FaceAuthenticator runs the face authentication flow.
type FaceAuthenticator interface {
	Authenticate(ctx context.Context, frame gocv.Mat) (face.Outcome, error)
}

// PillIdentifier runs the recognition cascade.
type PillIdentifier interface {
	Identify(img gocv.Mat, snapshot catalog.Snapshot) recognize.Result
}

// BottleReader runs the label OCR flow.
type BottleReader interface {
	Read(img gocv.Mat, snapshot catalog.Snapshot) (bottle.Reading, error)
}

// CheckoutRunner runs the guarded dispensing flow.
type CheckoutRunner interface {
	Checkout(ctx context.Context, req service.CheckoutRequest) (service.CheckoutResult, error)
}

// EmergencyAccessor runs PIN-based emergency access.
type EmergencyAccessor interface {
	Access(ctx context.Context, pin, operator, reason string) (unlock.Ack, error)
}

// Server bundles the handlers and their dependencies.
type Server struct {
	auth      FaceAuthenticator
	pills     PillIdentifier
	bottles   BottleReader
	checkout  CheckoutRunner
	emergency EmergencyAccessor
	gateway   service.Unlocker
	store     store.Store
	validate  *validator.Validate
	log       *logrus.Entry
}

// Deps lists everything a Server needs. Nil optional fields (pills,
// bottles, emergency) disable their routes with 503.
type Deps struct {
	Auth      FaceAuthenticator
	Pills     PillIdentifier
	Bottles   BottleReader
	Checkout  CheckoutRunner
	Emergency EmergencyAccessor
	Gateway   service.Unlocker
	Store     store.Store
	Log       *logrus.Entry
}

// New creates the Server and mounts its routes on a fiber app.
func New(deps Deps) (*Server, *fiber.App) {
	s := &Server{
		auth:      deps.Auth,
		pills:     deps.Pills,
		bottles:   deps.Bottles,
		checkout:  deps.Checkout,
		emergency: deps.Emergency,
		gateway:   deps.Gateway,
		store:     deps.Store,
		validate:  validator.New(),
		log:       deps.Log,
	}

	app := fiber.New(fiber.Config{
		AppName:   "medcab",
		BodyLimit: 20 * 1024 * 1024,
	})

	api := app.Group("/api")
	api.Post("/auth/face", s.handleAuthFace)
	api.Post("/pills/recognize", s.handleRecognize)
	api.Post("/bottles/read", s.handleBottleRead)
	api.Post("/checkout", s.handleCheckout)
	api.Post("/emergency", s.handleEmergency)
	api.Get("/medications", s.handleMedications)
	api.Get("/warnings", s.handleWarnings)
	api.Post("/warnings/:id/ack", s.handleAcknowledgeWarning)
	api.Get("/audit", s.handleAudit)
	api.Get("/controller/status", s.handleControllerStatus)
	api.Get("/healthz", s.handleHealthz)

	return s, app
}

func (s *Server) handleAuthFace(c *fiber.Ctx) error {
	if s.auth == nil {
		return serviceUnavailable(c, "Face authentication is not configured.")
	}
	frame, err := s.frameFromRequest(c)
	if err != nil {
		return badRequest(c, "Could not read image from request.")
	}
	defer frame.Close()

	outcome, err := s.auth.Authenticate(c.Context(), frame)
	if err != nil {
		s.log.WithError(err).Error("face authentication failed")
		return serverError(c, "Authentication is temporarily unavailable.")
	}

	if !outcome.Accepted() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"reason":  string(outcome.Reason),
			"message": outcome.Reason.Guidance(),
		})
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"user":       outcome.Identity,
		"confidence": outcome.Confidence,
	})
}

func (s *Server) handleRecognize(c *fiber.Ctx) error {
	if s.pills == nil {
		return serviceUnavailable(c, "Pill recognition is not configured.")
	}
	img, err := s.frameFromRequest(c)
	if err != nil {
		return badRequest(c, "Could not read image from request.")
	}
	defer img.Close()

	snapshot, err := s.store.Entries(c.Context())
	if err != nil {
		s.log.WithError(err).Error("failed to load catalog")
		return serverError(c, "Catalog is temporarily unavailable.")
	}

	result := s.pills.Identify(img, snapshot)
	if !result.Found() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success":  false,
			"method":   string(result.Method),
			"features": result.Features,
			"message":  "No matching medication found. Try the bottle label scanner instead.",
		})
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"method":   string(result.Method),
		"matches":  result.Matches,
		"features": result.Features,
	})
}

func (s *Server) handleBottleRead(c *fiber.Ctx) error {
	if s.bottles == nil {
		return serviceUnavailable(c, "Bottle scanning is not configured.")
	}
	img, err := s.frameFromRequest(c)
	if err != nil {
		return badRequest(c, "Could not read image from request.")
	}
	defer img.Close()

	snapshot, err := s.store.Entries(c.Context())
	if err != nil {
		s.log.WithError(err).Error("failed to load catalog")
		return serverError(c, "Catalog is temporarily unavailable.")
	}

	reading, err := s.bottles.Read(img, snapshot)
	if err != nil {
		s.log.WithError(err).Error("bottle read failed")
		return serverError(c, "Label scanning failed. Please try again.")
	}

	status := fiber.StatusOK
	if !reading.Success {
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(reading)
}

type emergencyRequest struct {
	PIN      string `json:"pin" validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
}

func (s *Server) handleEmergency(c *fiber.Ctx) error {
	if s.emergency == nil {
		return serviceUnavailable(c, "Emergency access is not configured.")
	}
	var req emergencyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, "PIN, operator, and reason are required.")
	}

	ack, err := s.emergency.Access(c.Context(), req.PIN, req.Operator, req.Reason)
	if errors.Is(err, service.ErrBadPIN) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid emergency PIN.",
		})
	}
	if err != nil {
		s.log.WithError(err).Error("emergency unlock failed")
		return serverError(c, "Could not reach the cabinet controller.")
	}
	return c.JSON(fiber.Map{"success": true, "channel": string(ack.Channel)})
}

func (s *Server) handleCheckout(c *fiber.Ctx) error {
	var req service.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, "Medication, subject, and a positive quantity are required.")
	}

	result, err := s.checkout.Checkout(c.Context(), req)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Medication not found.",
		})
	case errors.Is(err, store.ErrInsufficientStock):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Not enough stock for this checkout.",
		})
	case errors.Is(err, service.ErrCheckoutBlocked):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success":  false,
			"blocked":  true,
			"decision": decisionDTO(result.Decision),
			"message":  "Checkout blocked by dose safety rules.",
		})
	case err != nil:
		s.log.WithError(err).Error("checkout failed")
		return serverError(c, "Checkout failed. Please try again.")
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"checkout":     result.Checkout,
		"decision":     decisionDTO(result.Decision),
		"new_quantity": result.NewQuantity,
		"stock":        string(result.Stock),
		"unlocked":     result.Ack.Opened,
		"channel":      string(result.Ack.Channel),
		"unlock_error": result.UnlockError,
	})
}

func (s *Server) handleMedications(c *fiber.Ctx) error {
	snapshot, err := s.store.Entries(c.Context())
	if err != nil {
		s.log.WithError(err).Error("failed to load catalog")
		return serverError(c, "Catalog is temporarily unavailable.")
	}
	return c.JSON(fiber.Map{"medications": snapshot})
}

func (s *Server) handleWarnings(c *fiber.Ctx) error {
	warnings, err := s.store.UnacknowledgedWarnings(c.Context())
	if err != nil {
		s.log.WithError(err).Error("failed to load warnings")
		return serverError(c, "Warnings are temporarily unavailable.")
	}
	return c.JSON(fiber.Map{"warnings": warnings})
}

func (s *Server) handleAcknowledgeWarning(c *fiber.Ctx) error {
	err := s.store.AcknowledgeWarning(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Warning not found.",
		})
	}
	if err != nil {
		s.log.WithError(err).Error("failed to acknowledge warning")
		return serverError(c, "Could not acknowledge warning.")
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleAudit(c *fiber.Ctx) error {
	events, err := s.store.RecentEvents(c.Context(), c.QueryInt("limit", 100))
	if err != nil {
		s.log.WithError(err).Error("failed to load audit trail")
		return serverError(c, "Audit trail is temporarily unavailable.")
	}
	return c.JSON(fiber.Map{"events": events})
}

func (s *Server) handleControllerStatus(c *fiber.Ctx) error {
	return c.JSON(s.gateway.Probe(c.Context()))
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// frameFromRequest decodes the image from a multipart "image" field or,
// failing that, the raw request body.
func (s *Server) frameFromRequest(c *fiber.Ctx) (gocv.Mat, error) {
	data := c.Body()
	if fh, err := c.FormFile("image"); err == nil {
		buf, err := readMultipart(fh)
		if err != nil {
			return gocv.Mat{}, err
		}
		data = buf
	}
	if len(data) == 0 {
		return gocv.Mat{}, errors.New("empty image payload")
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, err
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, errors.New("undecodable image")
	}
	return img, nil
}

func readMultipart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func decisionDTO(d threshold.Decision) fiber.Map {
	violations := make([]fiber.Map, 0, len(d.Violations))
	for _, v := range d.Violations {
		violations = append(violations, fiber.Map{
			"rule":     string(v.Rule),
			"severity": string(v.Severity),
			"message":  v.Message,
		})
	}
	return fiber.Map{
		"outcome":       d.Outcome.String(),
		"rule":          string(d.Rule),
		"running_total": d.RunningTotal,
		"violations":    violations,
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": msg})
}

func serverError(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": msg})
}

func serviceUnavailable(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"success": false, "message": msg})
}
