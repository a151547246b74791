package handler

import (
	"errors"
	"net/http"

	"github.com/asktennis/asktennis/internal/models"
	"github.com/asktennis/asktennis/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// DataHandler handles GET /api/data/{source} and /api/data/{source}/{resource}
type DataHandler struct {
	providers map[models.DataSource]service.DataProvider
}

func NewDataHandler(providers ...service.DataProvider) *DataHandler {
	m := make(map[models.DataSource]service.DataProvider, len(providers))
	for _, p := range providers {
		m[p.Source()] = p
	}
	return &DataHandler{providers: m}
}

func (h *DataHandler) provider(w http.ResponseWriter, r *http.Request) (service.DataProvider, bool) {
	name := chi.URLParam(r, "source")
	src, ok := models.ParseDataSource(name)
	if !ok {
		models.WriteError(w, http.StatusNotFound, "unknown data source: "+name)
		return nil, false
	}
	p, ok := h.providers[src]
	if !ok {
		models.WriteError(w, http.StatusServiceUnavailable, "data source not configured: "+name)
		return nil, false
	}
	return p, true
}

// Resources lists what a provider can serve.
func (h *DataHandler) Resources(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{
		"source":    p.Source(),
		"provider":  p.Source().Provider(),
		"resources": p.Resources(),
	})
}

// Fetch forwards to the provider and returns its rows verbatim.
func (h *DataHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}
	req := models.DataRequest{
		Source:   string(p.Source()),
		Resource: chi.URLParam(r, "resource"),
		Params:   make(map[string]string),
	}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			req.Params[k] = v[0]
		}
	}

	rows, err := p.Fetch(r.Context(), req.Resource, req.Params)
	switch {
	case errors.Is(err, service.ErrUnknownResource):
		models.WriteError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, service.ErrBadParameter):
		models.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Warn().Err(err).Str("source", req.Source).Str("resource", req.Resource).Msg("provider fetch failed")
		models.WriteError(w, http.StatusBadGateway, "upstream provider error")
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	models.WriteJSON(w, http.StatusOK, models.DataResponse{
		Source:   req.Source,
		Provider: p.Source().Provider(),
		Resource: req.Resource,
		RowCount: len(rows),
		Rows:     rows,
	})
}
