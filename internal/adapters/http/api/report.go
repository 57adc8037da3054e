package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/sift/internal/domain/model"
	"github.com/okian/sift/pkg/logger"
)

// maxReportBody caps the POST /report body.
const maxReportBody = 1 << 20

var errTrailingData = errors.New("malformed JSON body: unexpected data after the JSON object")

// reportRequest mirrors the OpenAPI schema for POST /report.
type reportRequest struct {
	UserID string  `json:"user_id" validate:"required"`
	Reason *string `json:"reason"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// ReportHandler handles report submissions.
type ReportHandler struct {
	deps     Reporter
	validate *validator.Validate
}

// NewReportHandler creates a new report handler.
func NewReportHandler(deps Reporter) *ReportHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &ReportHandler{deps: deps, validate: v}
}

// HandlePostReport handles POST /report. The API key is checked by RequireAPIKey.
func (h *ReportHandler) HandlePostReport(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_report"

	req, err := h.decode(w, r)
	if err != nil {
		logger.Get().Debug(r.Context(), "report rejected",
			logger.String("requestID", RequestID(r.Context())),
			logger.Error(WrapKind(op, ErrValidation, err)),
		)
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	_, msg, err := h.deps.Report(r.Context(), model.Report{UserID: req.UserID, Reason: req.Reason})
	if err != nil {
		logger.Get().Error(r.Context(), "report failed",
			logger.String("requestID", RequestID(r.Context())),
			logger.Error(WrapKind(op, ErrDatastore, err)),
		)
		writeDatastoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (h *ReportHandler) decode(w http.ResponseWriter, r *http.Request) (reportRequest, error) {
	var req reportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReportBody))
	if err := dec.Decode(&req); err != nil {
		return reportRequest{}, describeDecodeError(err)
	}
	// the body must hold exactly one JSON value
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return reportRequest{}, errTrailingData
		}
		return reportRequest{}, describeDecodeError(err)
	}
	if err := h.validate.Struct(req); err != nil {
		return reportRequest{}, describeValidationError(err)
	}
	return req, nil
}

func describeDecodeError(err error) error {
	var (
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &typeErr):
		return fmt.Errorf("field %s must be a %s", typeErr.Field, typeErr.Type)
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &maxErr):
		return fmt.Errorf("body exceeds %d bytes", maxErr.Limit)
	default:
		return fmt.Errorf("malformed JSON body: %w", err)
	}
}

func describeValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field %s is %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
