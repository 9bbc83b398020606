package httpservice

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arkade-os/custodyd/internal/core/domain"
	cerrors "github.com/arkade-os/custodyd/pkg/errors"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	log "github.com/sirupsen/logrus"
)

var somethingWentWrong = cerrors.INTERNAL_ERROR.New("something went wrong")

type errorResponse struct {
	Code     uint16            `json:"code"`
	Name     string            `json:"name"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var structuredErr cerrors.Error
	if !errors.As(err, &structuredErr) {
		structuredErr = cerrors.INTERNAL_ERROR.Wrap(err)
	}

	if structuredErr.Code() == cerrors.INTERNAL_ERROR.Code {
		structuredErr.Log().WithField("route", r.URL.Path).Error(structuredErr.Error())
	}

	writeJSON(w, runtime.HTTPStatusFromCode(structuredErr.GrpcCode()), errorResponse{
		Code:     structuredErr.Code(),
		Name:     structuredErr.CodeName(),
		Message:  structuredErr.Error(),
		Metadata: structuredErr.Metadata(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return cerrors.INVALID_REQUEST.New("invalid request body: %s", err)
	}
	return nil
}

func parseSubjectId(s string) (domain.SubjectId, error) {
	id, err := domain.ParseSubjectId(s)
	if err != nil {
		var structuredErr cerrors.Error
		if errors.As(err, &structuredErr) {
			return domain.SubjectId{}, structuredErr
		}
		return domain.SubjectId{}, cerrors.INVALID_SUBJECT_ID.Wrap(err)
	}
	return id, nil
}
