package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"timeplus_app/internal/services"
)

type CatalogHandler struct {
	catalog *services.CatalogService
}

func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

func (h *CatalogHandler) ListPsychologists(c echo.Context) error {
	list, err := h.catalog.ListPsychologists(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (h *CatalogHandler) GetPsychologist(c echo.Context) error {
	details, err := h.catalog.GetPsychologistDetails(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, details)
}

// Slots lists the free start times for ?date=YYYY-MM-DD.
func (h *CatalogHandler) Slots(c echo.Context) error {
	slots, err := h.catalog.AvailableSlots(c.Request().Context(), c.Param("id"), c.QueryParam("date"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":  c.QueryParam("date"),
		"slots": slots,
	})
}
