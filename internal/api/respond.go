package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/apperr"
)

const maxBodyBytes = 8 << 20

// envelope wraps list/create results on endpoints whose clients expect {success, data}.
type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type message struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	fields := []zap.Field{
		zap.Error(err),
		zap.String("kind", string(kind)),
		zap.String("request_id", chimiddleware.GetReqID(r.Context())),
	}
	switch kind {
	case apperr.InvalidInput, apperr.NotFound, apperr.RateLimited:
		s.logger.Debug("Request rejected", fields...)
	default:
		s.logger.Error("Request failed", fields...)
	}
	writeJSON(w, apperr.HTTPStatus(kind), apperr.ToFailure(err))
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and runs struct validation.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("request body is required")
		}
		return apperr.Wrap(apperr.InvalidInput, "request body is not valid JSON", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fe.Field()
			}
			return apperr.Invalid("invalid %s", strings.Join(fields, ", ")).WithDetail("fields", fields)
		}
		return apperr.Wrap(apperr.InvalidInput, "invalid request", err)
	}
	return nil
}
