package sheetsync_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/shopops_backend/sheetsync"
	"github.com/gin-gonic/gin"
)

// A malformed sheet inside a bulk import fails alone: the payload still
// binds, the broken sheets get error outcomes, and the rest of the run
// proceeds.
func TestBulkImportIsolatesMalformedSheets(t *testing.T) {
	t.Setenv("SHEETS_WEBHOOK_SECRET", "")
	gin.SetMode(gin.TestMode)
	router := gin.New()
	sheetsync.RegisterRoutes(router.Group("/api"), sheetsync.NewResolverWithOracle(&scriptedOracle{}))

	body := `{"sheets":[
		{"headers":["Mặt hàng"],"rows":[["áo thun"]]},
		{"sheetName":"Đợt 9","rows":[]},
		{"sheetName":"Hướng dẫn","headers":["A"],"rows":[["x"]]}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/sheets/bulk-import", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var response struct {
		Result sheetsync.BulkImportResult `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	result := response.Result
	if result.TotalSheets != 3 || result.FailedSheets != 2 || result.SkippedSheets != 1 || result.ImportedSheets != 0 {
		t.Fatalf("outcome counts = %+v", result)
	}
	for _, outcome := range result.Outcomes[:2] {
		if outcome.Status != sheetsync.SheetStatusError {
			t.Errorf("sheet %q status = %s, want error", outcome.SheetName, outcome.Status)
		}
	}
	if result.Outcomes[2].Status != sheetsync.SheetStatusSkipped {
		t.Errorf("guide sheet status = %s, want skipped", result.Outcomes[2].Status)
	}
}
