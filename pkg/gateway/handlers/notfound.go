package handlers

import (
	"net/http"

	"github.com/tablevox/tablevox/pkg/gateway/apierror"
	"github.com/tablevox/tablevox/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apierror.Write(w, http.StatusNotFound, &apierror.Error{
		Code:      "not_found",
		Message:   "not found",
		RequestID: reqID,
	})
}
