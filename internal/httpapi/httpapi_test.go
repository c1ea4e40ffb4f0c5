package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/flowcore/internal/blueprint"
	"github.com/smilemakc/flowcore/internal/config"
	"github.com/smilemakc/flowcore/internal/engine"
	"github.com/smilemakc/flowcore/internal/events"
	"github.com/smilemakc/flowcore/internal/executor"
	"github.com/smilemakc/flowcore/internal/executor/builtin"
	"github.com/smilemakc/flowcore/internal/httpapi"
	"github.com/smilemakc/flowcore/internal/logger"
	"github.com/smilemakc/flowcore/internal/node"
	"github.com/smilemakc/flowcore/internal/registry"
)

func stringsReader(s string) io.Reader { return strings.NewReader(s) }

func testLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{Level: "error", Format: "json"}
}

type echoTool struct{}

func (echoTool) Name() string                 { return "echo" }
func (echoTool) Description() string          { return "echoes its input" }
func (echoTool) InputSchema() node.Schema      { return node.Schema{} }
func (echoTool) OutputSchema() node.Schema     { return node.Schema{} }
func (echoTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	return args, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *blueprint.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := blueprint.NewStore(client, blueprint.DefaultConfig())
	loader := blueprint.NewLoader(store)

	reg := registry.New()
	require.NoError(t, reg.Register(node.KindTool, "echo", echoTool{}, false))

	mgr := executor.NewManager()
	bus := events.NewBus(nil)
	checkpoints := engine.NewMemoryCheckpointStore()
	eng := engine.New(executor.NewDispatcher(mgr, executor.NewMemoryCache()), bus, checkpoints, loader, nil)
	builtin.RegisterAll(mgr, reg, eng)

	runs := httpapi.NewRunStore()
	log := logger.New(testLoggingConfig())
	router := httpapi.NewRouter(store, loader, eng, bus, runs, log)
	return router, store
}

func TestBlueprintCreateGetPutDeleteLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"schema_version":"1","nodes":[{"id":"a","kind":"tool","tool":{"tool_name":"echo"},"dependencies":[]}]}`

	req := httptest.NewRequest(http.MethodPost, "/v1/blueprints/bp1", stringsReader(body))
	req.Header.Set("X-Version-Lock", "__new__")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	lock := created["version_lock"].(string)
	require.NotEmpty(t, lock)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/blueprints/bp1", nil)
	getW := httptest.NewRecorder()
	router.ServeHTTP(getW, getReq)
	assert.Equal(t, http.StatusOK, getW.Code)
	assert.Equal(t, lock, getW.Header().Get("X-Version-Lock"))

	delReq := httptest.NewRequest(http.MethodDelete, "/v1/blueprints/bp1", nil)
	delReq.Header.Set("X-Version-Lock", "wrong-lock")
	delW := httptest.NewRecorder()
	router.ServeHTTP(delW, delReq)
	assert.Equal(t, http.StatusConflict, delW.Code)

	delReq2 := httptest.NewRequest(http.MethodDelete, "/v1/blueprints/bp1", nil)
	delReq2.Header.Set("X-Version-Lock", lock)
	delW2 := httptest.NewRecorder()
	router.ServeHTTP(delW2, delReq2)
	assert.Equal(t, http.StatusNoContent, delW2.Code)
}

func TestBlueprintCreateWithoutNewSentinelFails(t *testing.T) {
	router, _ := newTestRouter(t)
	body := `{"schema_version":"1","nodes":[{"id":"a","kind":"tool","tool":{"tool_name":"echo"},"dependencies":[]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/blueprints/bp1", stringsReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)
}

func TestRunStartAndGetReachesCompletion(t *testing.T) {
	router, _ := newTestRouter(t)

	startBody := `{
		"blueprint": {"schema_version":"1","nodes":[{"id":"a","kind":"tool","tool":{"tool_name":"echo"},"dependencies":[]}]},
		"options": {"max_parallel": 1}
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", stringsReader(startBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var started map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	runID := started["run_id"].(string)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		getReq := httptest.NewRequest(http.MethodGet, "/v1/runs/"+runID, nil)
		getW := httptest.NewRecorder()
		router.ServeHTTP(getW, getReq)
		return getW.Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunGetUnknownReturnsNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/does-not-exist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
