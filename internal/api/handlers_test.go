package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/plate-filler/backend/internal/metrics"
	"github.com/plate-filler/backend/internal/models"
	"github.com/plate-filler/backend/internal/session"
	"github.com/plate-filler/backend/internal/storage"
	"github.com/plate-filler/backend/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const crossBody = `{"plateSize":96,"plateCount":1,"samples":[["s1","s2"]],"reagents":[["r1","r2"]],"replicas":[1]}`

type testServer struct {
	e          *echo.Echo
	store      *testutil.MockStorage
	runs       *session.Manager
	rendersDir string
}

func newTestServer(t *testing.T, opts session.Options) *testServer {
	t.Helper()

	store := testutil.NewMockStorageWithTempDir(t.TempDir())
	rendersDir := filepath.Join(t.TempDir(), "renders")
	renders, err := storage.NewRenderCache(rendersDir)
	require.NoError(t, err)

	opts.OnRemove = storage.ReleaseRun(store, renders)
	runs := session.NewManager(opts)
	t.Cleanup(func() { runs.Close() })

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Store:    store,
		Runs:     runs,
		Renders:  renders,
		Defaults: Defaults{PlateSize: 96, PlateCount: 1, MaxPlates: 10, WellSize: 20},
		Version:  "test",
	}))

	return &testServer{e: e, store: store, runs: runs, rendersDir: rendersDir}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) create(t *testing.T, body string) models.AllocationRun {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/allocations", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var run models.AllocationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	return run
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, session.Options{})

	rec := s.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestFormats(t *testing.T) {
	s := newTestServer(t, session.Options{})

	rec := s.do(http.MethodGet, "/api/formats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `{"size":96,"rows":8,"columns":12}`)
	assert.Contains(t, rec.Body.String(), `{"size":384,"rows":16,"columns":24}`)
}

func TestCreateAllocation(t *testing.T) {
	s := newTestServer(t, session.Options{})

	run := s.create(t, crossBody)
	assert.Equal(t, models.ByReagent, run.Strategy)
	assert.Equal(t, 4.5, run.Penalty)
	assert.Equal(t, 4, run.WellsNeeded)
	assert.Equal(t, 96, run.WellsAvailable)
	require.Len(t, run.Candidates, 2)
	assert.Equal(t, models.BySample, run.Candidates[1].Strategy)
	assert.Equal(t, 5.5, run.Candidates[1].Penalty)
}

func TestCreateAllocationDefaults(t *testing.T) {
	s := newTestServer(t, session.Options{})

	run := s.create(t, `{"samples":[["a"]],"reagents":[["x"]],"replicas":[2]}`)
	assert.Equal(t, 96, run.PlateSize)
	assert.Equal(t, 1, run.PlateCount)
	assert.Equal(t, 0.0, run.Penalty)
}

func TestCreateAllocationErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{
			name:   "capacity exceeded",
			body:   `{"plateSize":96,"plateCount":1,"samples":[["a","b","c"]],"reagents":[["x","y","z"]],"replicas":[12]}`,
			status: http.StatusUnprocessableEntity,
			code:   "CAPACITY_EXCEEDED",
		},
		{
			name:   "inconsistent sequences",
			body:   `{"samples":[["a"],["b"]],"reagents":[["x"]],"replicas":[1]}`,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "unsupported plate size",
			body:   `{"plateSize":48,"samples":[["a"]],"reagents":[["x"]],"replicas":[1]}`,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "zero replicas",
			body:   `{"samples":[["a"]],"reagents":[["x"]],"replicas":[0]}`,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "too many plates",
			body:   `{"plateCount":11,"samples":[["a"]],"reagents":[["x"]],"replicas":[1]}`,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "replicas wrapping the well count",
			body:   `{"plateSize":96,"plateCount":1,"samples":[["a","b"]],"reagents":[["x","y"]],"replicas":[4611686018427387905]}`,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "max plates with replicas above one plate",
			body:   `{"plateSize":384,"plateCount":10,"samples":[["a","b"]],"reagents":[["x","y"]],"replicas":[961]}`,
			status: http.StatusUnprocessableEntity,
			code:   "CAPACITY_EXCEEDED",
		},
		{
			name:   "max plates with replicas above the engine limit",
			body:   `{"plateCount":10,"samples":[["a"]],"reagents":[["x"]],"replicas":[9223372036854775807]}`,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "malformed body",
			body:   `{"samples":`,
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, session.Options{})
			rec := s.do(http.MethodPost, "/api/allocations", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
			assert.Empty(t, s.runs.ListRuns(0))
		})
	}
}

func TestCapacityErrorMessage(t *testing.T) {
	s := newTestServer(t, session.Options{})

	rec := s.do(http.MethodPost, "/api/allocations",
		`{"plateSize":96,"plateCount":1,"samples":[["a","b","c"]],"reagents":[["x","y","z"]],"replicas":[12]}`)
	apiErr := decodeError(t, rec)
	assert.Equal(t, "number of wells needed 108 exceed available number of wells 96", apiErr.Message)
}

func TestGetListDeleteAllocation(t *testing.T) {
	s := newTestServer(t, session.Options{})

	first := s.create(t, crossBody)
	second := s.create(t, crossBody)

	rec := s.do(http.MethodGet, "/api/allocations/"+first.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"strategy":"by_reagent"`)

	rec = s.do(http.MethodGet, "/api/allocations?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.AllocationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	rec = s.do(http.MethodGet, "/api/allocations?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, "/api/allocations/"+first.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/allocations/"+first.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)

	rec = s.do(http.MethodDelete, "/api/allocations/"+first.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLayout(t *testing.T) {
	s := newTestServer(t, session.Options{})
	run := s.create(t, crossBody)

	rec := s.do(http.MethodGet, "/api/allocations/"+run.ID+"/layout", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		RunID    string             `json:"runId"`
		Strategy string             `json:"strategy"`
		Format   models.PlateFormat `json:"format"`
		Plates   []models.Plate     `json:"plates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, run.ID, resp.RunID)
	assert.Equal(t, "by_reagent", resp.Strategy)
	assert.Equal(t, models.Format96, resp.Format)
	require.Len(t, resp.Plates, 1)
	assert.Equal(t, &models.Placement{Sample: "s2", Reagent: "r1"}, resp.Plates[0].Wells[0][1])
	assert.Nil(t, resp.Plates[0].Wells[0][4])

	rec = s.do(http.MethodGet, "/api/allocations/missing/layout", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLayoutMsgpack(t *testing.T) {
	s := newTestServer(t, session.Options{})
	run := s.create(t, crossBody)

	rec := s.do(http.MethodGet, "/api/allocations/"+run.ID+"/layout/msgpack", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-msgpack", rec.Header().Get(echo.HeaderContentType))

	var resp map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, run.ID, resp["runId"])
	assert.Equal(t, "by_reagent", resp["strategy"])
	plates, ok := resp["plates"].([]interface{})
	require.True(t, ok)
	assert.Len(t, plates, 1)
}

func TestPlateImage(t *testing.T) {
	s := newTestServer(t, session.Options{})
	run := s.create(t, crossBody)

	rec := s.do(http.MethodGet, "/api/allocations/"+run.ID+"/plates/0/image?colorBy=sample", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 20+20*12+10, img.Bounds().Dx())

	cached, err := os.ReadFile(filepath.Join(s.rendersDir, run.ID+"_0_sample.png"))
	require.NoError(t, err)
	assert.Equal(t, rec.Body.Bytes(), cached)

	rec = s.do(http.MethodGet, "/api/allocations/"+run.ID+"/plates/0/image?colorBy=sample", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cached, rec.Body.Bytes())

	rec = s.do(http.MethodGet, "/api/allocations/"+run.ID+"/plates/1/image", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/allocations/"+run.ID+"/plates/x/image", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/allocations/"+run.ID+"/plates/0/image?colorBy=plate", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)

	rec = s.do(http.MethodDelete, "/api/allocations/"+run.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, err = os.Stat(filepath.Join(s.rendersDir, run.ID+"_0_sample.png"))
	assert.True(t, os.IsNotExist(err), "cached renders are removed with the run")
}

func TestQueryWells(t *testing.T) {
	archive, err := session.OpenArchive("", session.ArchiveOptions{Threads: 1})
	require.NoError(t, err)
	s := newTestServer(t, session.Options{Archive: archive})
	run := s.create(t, crossBody)

	rec := s.do(http.MethodGet, "/api/allocations/"+run.ID+"/wells?sample=s1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var wells []models.ArchivedWell
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wells))
	require.Len(t, wells, 2)
	assert.Equal(t, "A1", wells[0].Well)
	assert.Equal(t, "A3", wells[1].Well)

	rec = s.do(http.MethodGet, "/api/allocations/"+run.ID+"/wells?plate=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/allocations/missing/wells", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryWellsWithoutArchive(t *testing.T) {
	s := newTestServer(t, session.Options{})
	run := s.create(t, crossBody)

	rec := s.do(http.MethodGet, "/api/allocations/"+run.ID+"/wells", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func fileBody(name, content string, extra string) string {
	body := `{"name":"` + name + `","data":"` + base64.StdEncoding.EncodeToString([]byte(content)) + `"`
	if extra != "" {
		body += "," + extra
	}
	return body + "}"
}

func TestAllocateFile(t *testing.T) {
	s := newTestServer(t, session.Options{})

	doc := "plate_size: 96\nplates: 2\nexperiments:\n  - samples: [s1, s2]\n    reagents: [r1, r2]\n    replicas: 1\n"
	rec := s.do(http.MethodPost, "/api/allocations/file", fileBody("plan.yaml", doc, ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		File models.FileInfo      `json:"file"`
		Run  models.AllocationRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "plan.yaml", resp.File.Name)
	assert.Equal(t, resp.File.ID, resp.Run.FileID)
	assert.Equal(t, 2, resp.Run.PlateCount)
	assert.Equal(t, 4.5, resp.Run.Penalty)

	info, err := s.store.Get(resp.File.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusAllocated, info.Status)
}

func TestDeleteAllocationRemovesUploadedFile(t *testing.T) {
	s := newTestServer(t, session.Options{})

	doc := "experiments:\n  - samples: [s1, s2]\n    reagents: [r1, r2]\n    replicas: 1\n"
	rec := s.do(http.MethodPost, "/api/allocations/file", fileBody("plan.yaml", doc, ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		File models.FileInfo      `json:"file"`
		Run  models.AllocationRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, s.store.GetFileCount())
	path, err := s.store.GetFilePath(resp.File.ID)
	require.NoError(t, err)

	rec = s.do(http.MethodGet, "/api/files/"+resp.File.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, "/api/allocations/"+resp.Run.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err = s.store.Get(resp.File.ID)
	assert.ErrorIs(t, err, storage.ErrFileNotFound)
	assert.Equal(t, 0, s.store.GetFileCount())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "uploaded file is removed from disk")

	rec = s.do(http.MethodGet, "/api/files/"+resp.File.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvictedRunReleasesUploadedFile(t *testing.T) {
	s := newTestServer(t, session.Options{MaxRuns: 1})

	doc := "samples,reagents,replicas\ns1;s2,r1;r2,1\n"
	rec := s.do(http.MethodPost, "/api/allocations/file", fileBody("plan.csv", doc, ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, 1, s.store.GetFileCount())

	s.create(t, crossBody)
	assert.Equal(t, 0, s.store.GetFileCount(), "the evicted run takes its file along")
}

func TestFiles(t *testing.T) {
	s := newTestServer(t, session.Options{})

	doc := "samples,reagents,replicas\ns1;s2,r1;r2,1\n"
	for _, name := range []string{"first.csv", "second.csv"} {
		rec := s.do(http.MethodPost, "/api/allocations/file", fileBody(name, doc, ""))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := s.do(http.MethodGet, "/api/files", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var files []models.FileInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 2)

	rec = s.do(http.MethodGet, "/api/files?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 1)

	rec = s.do(http.MethodGet, "/api/files?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := files[0].ID
	rec = s.do(http.MethodGet, "/api/files/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info models.FileInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, storage.StatusAllocated, info.Status)

	rec = s.do(http.MethodDelete, "/api/files/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, s.store.GetFileCount())

	rec = s.do(http.MethodDelete, "/api/files/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestAllocateFileNamedFormat(t *testing.T) {
	s := newTestServer(t, session.Options{})

	doc := "samples,reagents,replicas\ns1;s2,r1;r2,1\n"
	rec := s.do(http.MethodPost, "/api/allocations/file", fileBody("plan.dat", doc, `"format":"csv"`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/allocations/file", fileBody("plan.dat", doc, `"format":"xlsx"`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllocateFileCSVWithOverrides(t *testing.T) {
	s := newTestServer(t, session.Options{})

	doc := "samples,reagents,replicas\ns1;s2,r1;r2,1\n"
	rec := s.do(http.MethodPost, "/api/allocations/file", fileBody("plan.csv", doc, `"plateSize":384,"plateCount":3`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"plateSize":384`)
	assert.Contains(t, rec.Body.String(), `"plateCount":3`)
	assert.Contains(t, rec.Body.String(), `"wellsAvailable":1152`)
}

func TestAllocateFileErrors(t *testing.T) {
	s := newTestServer(t, session.Options{})

	rec := s.do(http.MethodPost, "/api/allocations/file", `{"name":"plan.yaml","data":"***"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, s.store.GetFileCount())

	rec = s.do(http.MethodPost, "/api/allocations/file", fileBody("", "x", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	doc := "experiments:\n  - samples: [a, b, c]\n    reagents: [x, y, z]\n    replicas: 12\n"
	rec = s.do(http.MethodPost, "/api/allocations/file", fileBody("big.yaml", doc, ""))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	files, err := s.store.List(0)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, storage.StatusError, files[0].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	runs := session.NewManager(session.Options{Metrics: metrics.NewCollector(reg)})

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Store:    testutil.NewMockStorage(),
		Runs:     runs,
		Gatherer: reg,
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/allocations", strings.NewReader(crossBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `platefiller_allocation_runs_total{outcome="ok",strategy="by_reagent"} 1`)
}
