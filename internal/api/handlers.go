package api

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/plate-filler/backend/internal/models"
	"github.com/plate-filler/backend/internal/parser"
	"github.com/plate-filler/backend/internal/render"
	"github.com/plate-filler/backend/internal/session"
	"github.com/plate-filler/backend/internal/storage"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultListLimit caps GET /api/allocations when no limit is given.
const DefaultListLimit = 20

// Defaults fill in request fields the client leaves out.
type Defaults struct {
	PlateSize  int
	PlateCount int
	MaxPlates  int
	WellSize   int
	ColorBy    models.ColorBy
}

// Handler handles allocation API requests.
type Handler struct {
	store    storage.Store
	runs     RunManager
	parsers  *parser.Registry
	renders  *storage.RenderCache
	defaults Defaults
}

// NewHandler creates a new API handler. A nil registry selects the global one.
func NewHandler(store storage.Store, runs RunManager, parsers *parser.Registry, renders *storage.RenderCache, defaults Defaults) *Handler {
	if parsers == nil {
		parsers = parser.GetGlobalRegistry()
	}
	if defaults.PlateSize == 0 {
		defaults.PlateSize = models.Format96.Capacity()
	}
	if defaults.PlateCount == 0 {
		defaults.PlateCount = 1
	}
	if defaults.ColorBy == "" {
		defaults.ColorBy = models.ColorByReagent
	}
	return &Handler{
		store:    store,
		runs:     runs,
		parsers:  parsers,
		renders:  renders,
		defaults: defaults,
	}
}

type allocationRequest struct {
	PlateSize  int        `json:"plateSize"`
	PlateCount int        `json:"plateCount"`
	Samples    [][]string `json:"samples"`
	Reagents   [][]string `json:"reagents"`
	Replicas   []int      `json:"replicas"`
}

type fileAllocationRequest struct {
	Name       string `json:"name"`
	Data       string `json:"data"` // base64
	Format     string `json:"format"`
	PlateSize  int    `json:"plateSize"`
	PlateCount int    `json:"plateCount"`
}

type fileAllocationResponse struct {
	File *models.FileInfo      `json:"file"`
	Run  *models.AllocationRun `json:"run"`
}

// layoutResponse is the body of both layout endpoints.
type layoutResponse struct {
	RunID    string             `json:"runId" msgpack:"runId"`
	Strategy string             `json:"strategy" msgpack:"strategy"`
	Penalty  float64            `json:"penalty" msgpack:"penalty"`
	Format   models.PlateFormat `json:"format" msgpack:"format"`
	Plates   []models.Plate     `json:"plates" msgpack:"plates"`
}

type plateFormatInfo struct {
	Size    int `json:"size"`
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// request resolves plate settings against the configured defaults.
func (h *Handler) request(plateSize, plateCount int, set models.ExperimentSet) (session.Request, error) {
	if plateSize == 0 {
		plateSize = h.defaults.PlateSize
	}
	if plateCount == 0 {
		plateCount = h.defaults.PlateCount
	}
	if h.defaults.MaxPlates > 0 && plateCount > h.defaults.MaxPlates {
		return session.Request{}, NewValidationError("plateCount",
			fmt.Sprintf("at most %d plates per run, got %d", h.defaults.MaxPlates, plateCount))
	}
	return session.Request{PlateSize: plateSize, PlateCount: plateCount, Experiments: set}, nil
}

// HandleCreateAllocation runs an allocation from three parallel sequences.
func (h *Handler) HandleCreateAllocation(c echo.Context) error {
	var req allocationRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	set, err := models.NewExperimentSet(req.Samples, req.Reagents, req.Replicas)
	if err != nil {
		return NewValidationError("experiments", err.Error())
	}

	runReq, err := h.request(req.PlateSize, req.PlateCount, set)
	if err != nil {
		return err
	}

	run, err := h.runs.Allocate(c.Request().Context(), runReq)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusCreated, run)
}

// HandleAllocateFile stores a base64 experiment file, parses it and runs an
// allocation. Plate settings in the request override those in the file.
func (h *Handler) HandleAllocateFile(c echo.Context) error {
	var req fileAllocationRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Name == "" {
		return NewValidationError("name", "name is required")
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	info, err := h.store.SaveBytes(req.Name, data)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	doc, err := h.parseFile(info.ID, req.Format)
	if err != nil {
		h.markFile(info.ID, storage.StatusError)
		return NewBadRequestError(fmt.Sprintf("failed to parse %s", req.Name), err)
	}

	plateSize, plateCount := doc.PlateSize, doc.PlateCount
	if req.PlateSize != 0 {
		plateSize = req.PlateSize
	}
	if req.PlateCount != 0 {
		plateCount = req.PlateCount
	}

	runReq, err := h.request(plateSize, plateCount, doc.Experiments)
	if err != nil {
		h.markFile(info.ID, storage.StatusError)
		return err
	}
	runReq.FileID = info.ID

	run, err := h.runs.Allocate(c.Request().Context(), runReq)
	if err != nil {
		h.markFile(info.ID, storage.StatusError)
		return FromError(err)
	}
	h.markFile(info.ID, storage.StatusAllocated)

	return c.JSON(http.StatusCreated, fileAllocationResponse{File: info, Run: run})
}

func (h *Handler) parseFile(fileID, format string) (*models.ExperimentFile, error) {
	path, err := h.store.GetFilePath(fileID)
	if err != nil {
		return nil, err
	}
	return h.parsers.ParseFile(path, format)
}

func (h *Handler) markFile(id, status string) {
	if err := h.store.SetStatus(id, status); err != nil {
		log.Warnf("[Files] failed to mark %s as %s: %v", id, status, err)
	}
}

func limitParam(c echo.Context) (int, error) {
	l := c.QueryParam("limit")
	if l == "" {
		return DefaultListLimit, nil
	}
	n, err := strconv.Atoi(l)
	if err != nil || n <= 0 {
		return 0, NewValidationError("limit", fmt.Sprintf("expected a positive integer, got %q", l))
	}
	return n, nil
}

// HandleListAllocations returns the most recent runs.
func (h *Handler) HandleListAllocations(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.runs.ListRuns(limit))
}

// HandleGetAllocation returns run metadata.
func (h *Handler) HandleGetAllocation(c echo.Context) error {
	id := c.Param("id")
	run, ok := h.runs.GetRun(id)
	if !ok {
		return NewNotFoundError("allocation", id)
	}
	h.runs.TouchRun(id)
	return c.JSON(http.StatusOK, run)
}

// HandleDeleteAllocation removes a run and its archived wells. Cached images
// and the uploaded source file go with it through the manager's OnRemove hook.
func (h *Handler) HandleDeleteAllocation(c echo.Context) error {
	id := c.Param("id")
	if err := h.runs.DeleteRun(c.Request().Context(), id); err != nil {
		if apiErr := FromError(err); apiErr.Status == http.StatusNotFound {
			return NewNotFoundError("allocation", id)
		}
		return NewInternalError("failed to delete allocation", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) layout(id string) (*layoutResponse, error) {
	run, ok := h.runs.GetRun(id)
	if !ok {
		return nil, NewNotFoundError("allocation", id)
	}
	layout, ok := h.runs.GetLayout(id)
	if !ok {
		return nil, NewNotFoundError("allocation", id)
	}
	h.runs.TouchRun(id)
	return &layoutResponse{
		RunID:    run.ID,
		Strategy: run.Strategy.String(),
		Penalty:  run.Penalty,
		Format:   layout.Format,
		Plates:   layout.Plates,
	}, nil
}

// HandleGetLayout returns the selected layout as JSON.
func (h *Handler) HandleGetLayout(c echo.Context) error {
	resp, err := h.layout(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleGetLayoutMsgpack returns the selected layout as MessagePack.
func (h *Handler) HandleGetLayoutMsgpack(c echo.Context) error {
	resp, err := h.layout(c.Param("id"))
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(resp)
	if err != nil {
		return NewInternalError("failed to encode layout", err)
	}
	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

// HandlePlateImage renders one plate of a run as PNG.
func (h *Handler) HandlePlateImage(c echo.Context) error {
	id := c.Param("id")
	layout, ok := h.runs.GetLayout(id)
	if !ok {
		return NewNotFoundError("allocation", id)
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return NewBadRequestError("invalid plate index", err)
	}
	if index < 0 || index >= len(layout.Plates) {
		return NewNotFoundError("plate", c.Param("index"))
	}

	colorBy := h.defaults.ColorBy
	if q := c.QueryParam("colorBy"); q != "" {
		if colorBy, err = models.ParseColorBy(q); err != nil {
			return NewValidationError("colorBy", err.Error())
		}
	}
	h.runs.TouchRun(id)

	if data, ok := h.renders.Get(id, index, string(colorBy)); ok {
		return c.Blob(http.StatusOK, "image/png", data)
	}

	r := render.NewRenderer(h.defaults.WellSize, nil)
	r.Prime(layout)

	var buf bytes.Buffer
	if err := r.WritePNG(&buf, layout, index, colorBy); err != nil {
		return FromError(err)
	}
	if err := h.renders.Put(id, index, string(colorBy), buf.Bytes()); err != nil {
		log.Warnf("[Renders] failed to cache plate %d of %s: %v", index, id, err)
	}
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// HandleQueryWells returns archived wells of a run, optionally filtered.
func (h *Handler) HandleQueryWells(c echo.Context) error {
	id := c.Param("id")
	filter := models.WellFilter{
		Sample:  c.QueryParam("sample"),
		Reagent: c.QueryParam("reagent"),
	}
	if p := c.QueryParam("plate"); p != "" {
		plate, err := strconv.Atoi(p)
		if err != nil {
			return NewValidationError("plate", fmt.Sprintf("expected an integer, got %q", p))
		}
		filter.Plate = &plate
	}

	wells, err := h.runs.QueryWells(c.Request().Context(), id, filter)
	if err != nil {
		if apiErr := FromError(err); apiErr.Status == http.StatusNotFound {
			return NewNotFoundError("allocation", id)
		}
		return FromError(err)
	}
	return c.JSON(http.StatusOK, wells)
}

// HandleFormats lists the supported plate formats.
func (h *Handler) HandleFormats(c echo.Context) error {
	formats := make([]plateFormatInfo, 0, len(models.SupportedSizes))
	for _, size := range models.SupportedSizes {
		f, err := models.FormatForSize(size)
		if err != nil {
			continue
		}
		formats = append(formats, plateFormatInfo{Size: size, Rows: f.Rows, Columns: f.Columns})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"formats":           formats,
		"defaultPlateSize":  h.defaults.PlateSize,
		"defaultPlateCount": h.defaults.PlateCount,
		"maxPlates":         h.defaults.MaxPlates,
	})
}
