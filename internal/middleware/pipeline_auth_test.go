package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "middleware-test-secret")
}

const schedulerKey = "scheduler-key-0190a1b2"

// pipelineRoute is one of the scheduler endpoints mounted behind the API key.
type pipelineRoute struct {
	method string
	path   string
}

var pipelineRoutes = []pipelineRoute{
	{http.MethodGet, "/api/v1/pipeline/recurring/users"},
	{http.MethodPost, "/api/v1/pipeline/recurring/process"},
}

// newPipelineEngine mounts the scheduler routes the way the API does and
// counts the requests that reach a handler.
func newPipelineEngine(apiKey string, reached *int) *gin.Engine {
	r := gin.New()
	group := r.Group("/api/v1/pipeline", PipelineAuthMiddleware(apiKey))
	handler := func(c *gin.Context) {
		*reached++
		if _, ok := c.Get(UserIDKey); ok {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "unexpected user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	group.GET("/recurring/users", handler)
	group.POST("/recurring/process", handler)
	return r
}

func sendPipeline(r *gin.Engine, route pipelineRoute, prepare func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(route.method, route.path, http.NoBody)
	if prepare != nil {
		prepare(req)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func withKey(key string) func(*http.Request) {
	return func(req *http.Request) { req.Header.Set("X-API-Key", key) }
}

// parseBody decodes a JSON response body.
func parseBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response body: %v", err)
	}
	return result
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := parseBody(t, rec)["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestPipelineAuthMiddleware_SchedulerRoutes(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		prepare    func(*http.Request)
		wantStatus int
		wantCode   string
	}{
		{name: "matching_key", configured: schedulerKey, prepare: withKey(schedulerKey), wantStatus: http.StatusOK},
		{name: "no_key", configured: schedulerKey, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_API_KEY"},
		{name: "other_key", configured: schedulerKey, prepare: withKey("scheduler-key-ffffffff"), wantStatus: http.StatusUnauthorized, wantCode: "INVALID_API_KEY"},
		{name: "key_prefix", configured: schedulerKey, prepare: withKey(schedulerKey[:10]), wantStatus: http.StatusUnauthorized, wantCode: "INVALID_API_KEY"},
		{name: "key_with_suffix", configured: schedulerKey, prepare: withKey(schedulerKey + "0"), wantStatus: http.StatusUnauthorized, wantCode: "INVALID_API_KEY"},
		{name: "pipeline_disabled", configured: "", prepare: withKey(schedulerKey), wantStatus: http.StatusServiceUnavailable, wantCode: "PIPELINE_NOT_CONFIGURED"},
		{name: "pipeline_disabled_no_key", configured: "", wantStatus: http.StatusServiceUnavailable, wantCode: "PIPELINE_NOT_CONFIGURED"},
	}

	for _, tt := range tests {
		for _, route := range pipelineRoutes {
			t.Run(tt.name+" "+route.method, func(t *testing.T) {
				reached := 0
				rec := sendPipeline(newPipelineEngine(tt.configured, &reached), route, tt.prepare)

				if rec.Code != tt.wantStatus {
					t.Fatalf("%s %s: status = %d, want %d", route.method, route.path, rec.Code, tt.wantStatus)
				}
				if tt.wantCode != "" {
					if code := errorCode(t, rec); code != tt.wantCode {
						t.Errorf("error code = %q, want %q", code, tt.wantCode)
					}
					if reached != 0 {
						t.Error("rejected request must not reach the handler")
					}
					return
				}
				if reached != 1 {
					t.Errorf("expected handler to run once, ran %d times", reached)
				}
			})
		}
	}
}

// The key is accepted only from the X-API-Key header.
func TestPipelineAuthMiddleware_KeyOnlyFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*http.Request)
	}{
		{name: "bearer_token", prepare: func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+schedulerKey) }},
		{name: "query_param", prepare: func(req *http.Request) {
			q := req.URL.Query()
			q.Set("api_key", schedulerKey)
			req.URL.RawQuery = q.Encode()
		}},
		{name: "other_header", prepare: func(req *http.Request) { req.Header.Set("X-Api-Token", schedulerKey) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := 0
			rec := sendPipeline(newPipelineEngine(schedulerKey, &reached), pipelineRoutes[1], tt.prepare)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if reached != 0 {
				t.Error("request without X-API-Key must not reach the handler")
			}
		})
	}
}

// A valid key authenticates the scheduler, not a user.
func TestPipelineAuthMiddleware_SetsNoUser(t *testing.T) {
	reached := 0
	engine := newPipelineEngine(schedulerKey, &reached)
	for _, route := range pipelineRoutes {
		rec := sendPipeline(engine, route, withKey(schedulerKey))
		if rec.Code != http.StatusOK {
			t.Errorf("%s %s: status = %d, want 200 with no user in context", route.method, route.path, rec.Code)
		}
	}
	if reached != len(pipelineRoutes) {
		t.Errorf("expected %d handled requests, got %d", len(pipelineRoutes), reached)
	}
}
