package endpoints

import (
	"net/http"
)

type UtilsEndpoints interface {
	Health(http.ResponseWriter, *http.Request) error
}

type utilsEndpoints struct{}

func NewUtilsEndpoints() UtilsEndpoints {
	return &utilsEndpoints{}
}

func (h *utilsEndpoints) Health(w http.ResponseWriter, r *http.Request) error {
	return WriteJSON(w, http.StatusOK, struct{}{})
}
