package sheets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSheets is an in-memory Sheets API v4 covering the calls Client makes.
type fakeSheets struct {
	mu       sync.Mutex
	id       string
	title    string
	sheetID  int64
	values   [][]interface{}
	gridRows int
	gridCols int

	writeStatus int // non-zero fails every PUT with this status
	calls       []string
	lastQuery   map[string]string
}

var anchorRe = regexp.MustCompile(`^'((?:[^']|'')*)'!A(\d+)$`)

func newFakeSheets(t *testing.T, rows, cols int) (*fakeSheets, *httptest.Server) {
	t.Helper()
	f := &fakeSheets{id: "sheet-123", title: "Campaign Data", sheetID: 7, gridRows: rows, gridCols: cols}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeSheets) client(srv *httptest.Server) *Client {
	return NewClient(srv.Client(), ClientConfig{
		BaseURL:       srv.URL,
		SpreadsheetID: f.id,
		Worksheet:     f.title,
		MaxRetries:    1,
		RetryBackoff:  time.Millisecond,
	})
}

func (f *fakeSheets) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.values)
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.lastQuery = map[string]string{}
	for k := range r.URL.Query() {
		f.lastQuery[k] = r.URL.Query().Get(k)
	}

	prefix := "/v4/spreadsheets/" + f.id
	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == prefix:
		f.serveMeta(w)
	case r.Method == http.MethodPost && path == prefix+":batchUpdate":
		f.serveBatchUpdate(w, r)
	case strings.HasPrefix(path, prefix+"/values/"):
		rng := strings.TrimPrefix(path, prefix+"/values/")
		if r.Method == http.MethodGet {
			f.serveValues(w, rng)
		} else if r.Method == http.MethodPut {
			f.serveUpdate(w, r, rng)
		}
	default:
		apiError(w, http.StatusNotFound, "NOT_FOUND", "no route "+path)
	}
}

func (f *fakeSheets) serveMeta(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sheets": []interface{}{
			map[string]interface{}{"properties": map[string]interface{}{
				"sheetId": 0, "title": "Other",
				"gridProperties": map[string]int{"rowCount": 1000, "columnCount": 26},
			}},
			map[string]interface{}{"properties": map[string]interface{}{
				"sheetId": f.sheetID, "title": f.title,
				"gridProperties": map[string]int{"rowCount": f.gridRows, "columnCount": f.gridCols},
			}},
		},
	})
}

func (f *fakeSheets) serveBatchUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Requests []struct {
			AppendDimension struct {
				SheetID   int64  `json:"sheetId"`
				Dimension string `json:"dimension"`
				Length    int    `json:"length"`
			} `json:"appendDimension"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apiError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	for _, req := range body.Requests {
		ad := req.AppendDimension
		if ad.SheetID != f.sheetID {
			apiError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown sheet")
			return
		}
		switch ad.Dimension {
		case "ROWS":
			f.gridRows += ad.Length
		case "COLUMNS":
			f.gridCols += ad.Length
		}
	}
	w.Write([]byte(`{"replies":[{}]}`))
}

func (f *fakeSheets) serveValues(w http.ResponseWriter, rng string) {
	if rng != QuoteSheet(f.title) {
		apiError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unexpected range "+rng)
		return
	}
	resp := map[string]interface{}{"range": rng, "majorDimension": "ROWS"}
	if len(f.values) > 0 {
		resp["values"] = f.values
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeSheets) serveUpdate(w http.ResponseWriter, r *http.Request, rng string) {
	if f.writeStatus != 0 {
		apiError(w, f.writeStatus, "UNAVAILABLE", "write rejected")
		return
	}
	m := anchorRe.FindStringSubmatch(rng)
	if m == nil || strings.ReplaceAll(m[1], "''", "'") != f.title {
		apiError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "bad range "+rng)
		return
	}
	start, _ := strconv.Atoi(m[2])

	var body struct {
		Values [][]interface{} `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apiError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	last := start - 1 + len(body.Values)
	if last > f.gridRows {
		apiError(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("Range exceeds grid limits. Max rows: %d", f.gridRows))
		return
	}
	for _, row := range body.Values {
		if len(row) > f.gridCols {
			apiError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Range exceeds grid limits")
			return
		}
	}
	for len(f.values) < last {
		f.values = append(f.values, []interface{}{})
	}
	for i, row := range body.Values {
		f.values[start-1+i] = row
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"updatedRange": rng,
		"updatedRows":  len(body.Values),
	})
}

func apiError(w http.ResponseWriter, code int, status, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"code": code, "message": msg, "status": status},
	})
}
