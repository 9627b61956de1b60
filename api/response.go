package api

import (
	"encoding/json"
	"net/http"

	"github.com/JiscSD/ram-relationships/model"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DataResponse wraps every successful payload.
type DataResponse struct {
	Data    interface{} `json:"data"`
	IsError bool        `json:"isError"`
}

type ErrorResponse struct {
	IsError       bool     `json:"isError"`
	ErrorCode     int      `json:"errorCode"`
	ErrorMessage  string   `json:"errorMessage"`
	ErrorMessages []string `json:"errorMessages,omitempty"`
}

func sendData(logger logrus.FieldLogger, w http.ResponseWriter, status int, data interface{}) {
	send(logger, w, status, DataResponse{Data: data})
}

func send(logger logrus.FieldLogger, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Warn("Response could not be written")
	}
}

// sendError maps err to its status code. Unexpected errors are logged and
// hidden from the caller.
func sendError(logger logrus.FieldLogger, w http.ResponseWriter, err error) {
	resp := ErrorResponse{IsError: true}
	switch verr, ok := model.AsValidationError(err); {
	case ok:
		resp.ErrorCode = http.StatusBadRequest
		resp.ErrorMessage = "validation failed"
		resp.ErrorMessages = verr.Messages
	case errors.Is(err, model.ErrNotFound):
		resp.ErrorCode = http.StatusNotFound
		resp.ErrorMessage = err.Error()
	case errors.Is(err, model.ErrConflict):
		resp.ErrorCode = http.StatusConflict
		resp.ErrorMessage = err.Error()
	default:
		logger.WithError(err).Error("Request failed")
		resp.ErrorCode = http.StatusInternalServerError
		resp.ErrorMessage = http.StatusText(http.StatusInternalServerError)
	}
	send(logger, w, resp.ErrorCode, resp)
}
