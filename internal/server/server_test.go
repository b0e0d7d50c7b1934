package server

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fiberplan/internal/config"
	"github.com/sells-group/fiberplan/internal/layer"
	"github.com/sells-group/fiberplan/internal/popup"
)

const designKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document><name>upload</name>
<Folder><name>HOMEPASS</name>
<Placemark><name>HP1</name><Point><coordinates>106.800,-6.200</coordinates></Point></Placemark>
<Placemark><name>HP2</name><Point><coordinates>106.810,-6.200</coordinates></Point></Placemark>
</Folder>
<Folder><name>FAT</name>
<Placemark><name>FAT-01</name><Point><coordinates>106.805,-6.200</coordinates></Point></Placemark>
</Folder>
<Folder><name>TIANG</name>
<Placemark><name>POLE-A</name><Point><coordinates>106.8005,-6.2002</coordinates></Point></Placemark>
</Folder>
</Document></kml>`

const noHomepassKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
<Folder><name>FAT</name>
<Placemark><name>FAT-01</name><Point><coordinates>106.805,-6.200</coordinates></Point></Placemark>
</Folder>
</Document></kml>`

const polarHomepassKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
<Folder><name>HOMEPASS</name>
<Placemark><name>HP-N</name><Point><coordinates>106.8,84.0</coordinates></Point></Placemark>
</Folder>
</Document></kml>`

func testConfig(t *testing.T) config.ServerConfig {
	t.Helper()
	return config.ServerConfig{
		TempDir:     t.TempDir(),
		MaxUploadMB: 1,
		TimeoutSecs: 30,
	}
}

func uploadRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(FormField, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, FailureMessage, resp.Message)
	assert.NotEmpty(t, resp.Error)
	return resp
}

func TestHealth(t *testing.T) {
	srv := New(testConfig(t), popup.Options{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestIndex(t *testing.T) {
	srv := New(testConfig(t), popup.Options{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), `action="/process"`)
	assert.Contains(t, rr.Body.String(), `name="file"`)
	assert.Contains(t, rr.Body.String(), `<option value="geojson">`)
}

func TestProcess_XLSXDefault(t *testing.T) {
	cfg := testConfig(t)
	srv := New(cfg, popup.Options{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "/process", "design.kml", []byte(designKML)))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "spreadsheetml")
	assert.Equal(t, `attachment; filename="MASTER_POP_UP_RESULT_design.kml.xlsx"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "2", rr.Header().Get(RecordCountHeader))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))

	entries, err := os.ReadDir(cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "request directory should be removed")
}

func TestProcess_CSVFormat(t *testing.T) {
	srv := New(testConfig(t), popup.Options{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "/process?format=csv", "design.kml", []byte(designKML)))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, `attachment; filename="MASTER_POP_UP_RESULT_design.kml.csv"`, rr.Header().Get("Content-Disposition"))

	rows, err := csv.NewReader(rr.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, popup.Columns, rows[0])
	assert.Equal(t, "HP1", rows[1][0])
	assert.Equal(t, "HP2", rows[2][0])
}

func TestProcess_KMZ(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("doc.kml")
	require.NoError(t, err)
	_, err = fw.Write([]byte(designKML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := New(testConfig(t), popup.Options{})
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "/process?format=geojson", "Design.KMZ", buf.Bytes()))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/geo+json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `"FeatureCollection"`)
}

func TestProcess_Errors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		filename string
		content  string
		status   int
		contains string
	}{
		{"unsupported extension", "/process", "design.txt", designKML, http.StatusBadRequest, "unsupported file type"},
		{"unknown format", "/process?format=pdf", "design.kml", designKML, http.StatusBadRequest, "unknown format"},
		{"invalid document", "/process", "design.kml", "not xml at all <", http.StatusBadRequest, "decode KML"},
		{"missing homepass", "/process", "design.kml", noHomepassKML, http.StatusBadRequest, "HOMEPASS"},
		{"homepass outside projection", "/process", "design.kml", polarHomepassKML, http.StatusBadRequest, "project HOMEPASS layer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(testConfig(t), popup.Options{})

			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, uploadRequest(t, tt.target, tt.filename, []byte(tt.content)))

			assert.Equal(t, tt.status, rr.Code)
			resp := decodeError(t, rr)
			assert.Contains(t, resp.Error, tt.contains)
		})
	}
}

func TestProcess_MissingFileField(t *testing.T) {
	srv := New(testConfig(t), popup.Options{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("format", "csv"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	decodeError(t, rr)
}

func TestProcess_TooLarge(t *testing.T) {
	srv := New(testConfig(t), popup.Options{})

	big := bytes.Repeat([]byte("x"), 2<<20)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "/process", "design.kml", big))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	decodeError(t, rr)
}

func TestProcess_RateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.RatePerSecond = 0.001
	cfg.RateBurst = 1
	srv := New(cfg, popup.Options{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "/process?format=csv", "design.kml", []byte(designKML)))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, uploadRequest(t, "/process?format=csv", "design.kml", []byte(designKML)))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	decodeError(t, rr)

	// Health is never limited.
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORS_Preflight(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowedOrigins = []string{"https://maps.example.com"}
	srv := New(cfg, popup.Options{})

	req := httptest.NewRequest(http.MethodOptions, "/process", nil)
	req.Header.Set("Origin", "https://maps.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "https://maps.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor_Default(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(os.ErrPermission))
}

func TestStatusFor_WrappedProjectionError(t *testing.T) {
	err := eris.Wrap(&popup.ProjectionError{Role: layer.RoleFAT, Err: os.ErrInvalid}, "server: process design")
	assert.Equal(t, http.StatusBadRequest, statusFor(err))
}
