package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/code-100-precent/EchoDesk/internal/models"
	"github.com/code-100-precent/EchoDesk/pkg/audiometer"
	"github.com/code-100-precent/EchoDesk/pkg/backend"
	"github.com/code-100-precent/EchoDesk/pkg/callsession"
	"github.com/code-100-precent/EchoDesk/pkg/config"
	"github.com/code-100-precent/EchoDesk/pkg/recording"
	"github.com/code-100-precent/EchoDesk/pkg/signaling"
	stores "github.com/code-100-precent/EchoDesk/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
)

type stubDevice struct {
	events chan callsession.Event
}

func (d *stubDevice) Register(ctx context.Context, token string) error { return nil }
func (d *stubDevice) Connect(ctx context.Context, number string) error { return nil }
func (d *stubDevice) Accept(ctx context.Context) error                 { return nil }
func (d *stubDevice) Reject(ctx context.Context) error                 { return nil }
func (d *stubDevice) Disconnect() error                                { return nil }
func (d *stubDevice) Events() <-chan callsession.Event                 { return d.events }
func (d *stubDevice) Close() error                                     { return nil }

type stubTokens struct{}

func (stubTokens) GetToken(ctx context.Context) (string, error) { return "tok-test", nil }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	silent := glog.New(log.New(io.Discard, "", log.LstdFlags), glog.Config{LogLevel: glog.Silent})
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: silent})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CallLogRecord{}))
	return db
}

func newTestRouter(t *testing.T, backendURL string) (*gin.Engine, *Handlers, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if config.GlobalConfig == nil {
		require.NoError(t, config.Load())
	}

	db := openTestDB(t)
	client := backend.NewClient(backendURL, "", 5*time.Second)
	store := stores.NewLocalStore(t.TempDir())
	resolver := recording.NewResolver(client, store, time.Minute)
	meter := audiometer.NewMeter(audiometer.DefaultConfig())

	machine := callsession.NewMachine(nil)
	device := &stubDevice{events: make(chan callsession.Event, 4)}
	manager := signaling.NewManager(stubTokens{}, func() signaling.Device { return device }, machine)

	h := NewHandlers(db, machine, manager, meter, resolver, client, store)
	r := gin.New()
	h.Register(r)
	return r, h, db
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func TestStateEndpoint(t *testing.T) {
	r, _, _ := newTestRouter(t, "http://localhost:0")

	w, parsed := doJSON(t, r, http.MethodGet, "/api/state", "")

	require.Equal(t, http.StatusOK, w.Code)
	data := parsed["data"].(map[string]interface{})
	assert.Equal(t, "idle", data["phase"])
	assert.Contains(t, data, "volumeLevel")
	assert.Contains(t, data, "waveform")
	assert.Contains(t, data, "statusMessage")
}

func TestPlaceCallRejectsInvalidNumber(t *testing.T) {
	r, _, _ := newTestRouter(t, "http://localhost:0")

	w, parsed := doJSON(t, r, http.MethodPost, "/api/calls", `{"number":"555-1234"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, parsed["success"])
	assert.Equal(t, "无效的电话号码", parsed["message"])
}

func TestPlaceCallValidNumberRings(t *testing.T) {
	r, h, _ := newTestRouter(t, "http://localhost:0")

	w, _ := doJSON(t, r, http.MethodPost, "/api/calls", `{"number":"+14155550123"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, callsession.PhaseRinging, h.machine.Phase())
}

func TestListCallLogsFromMirror(t *testing.T) {
	r, _, db := newTestRouter(t, "http://localhost:0")

	require.NoError(t, db.Create(&models.CallLogRecord{
		ID:        "m-1",
		LeadID:    "lead-9",
		Direction: "outbound",
		Status:    "completed",
		StartedAt: time.Now().Add(-time.Hour),
	}).Error)

	w, parsed := doJSON(t, r, http.MethodGet, "/api/leads/lead-9/call-logs", "")

	require.Equal(t, http.StatusOK, w.Code)
	data := parsed["data"].(map[string]interface{})
	records := data["records"].([]interface{})
	require.Len(t, records, 1)
	assert.Equal(t, false, data["polling"])
}

func TestOpenLeadStartsReconciler(t *testing.T) {
	// Backend that answers an empty call-log list.
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer backendSrv.Close()

	r, h, _ := newTestRouter(t, backendSrv.URL)

	w, _ := doJSON(t, r, http.MethodPost, "/api/leads/lead-1/open", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, h.ActiveReconciler())

	// Opening a different lead replaces the session.
	first := h.ActiveReconciler()
	w, _ = doJSON(t, r, http.MethodPost, "/api/leads/lead-2/open", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotSame(t, first, h.ActiveReconciler())

	h.Teardown()
	assert.Nil(t, h.ActiveReconciler())
}

func TestRefreshWithoutOpenLeadFails(t *testing.T) {
	r, _, _ := newTestRouter(t, "http://localhost:0")

	w, parsed := doJSON(t, r, http.MethodPost, "/api/call-logs/refresh", "")

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, parsed["success"])
}

func TestOpenRecordingUnknownRecord(t *testing.T) {
	r, _, _ := newTestRouter(t, "http://localhost:0")

	w, parsed := doJSON(t, r, http.MethodGet, "/api/call-logs/nope/recording", "")

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, parsed["success"])
}

func TestOpenRecordingUnavailable(t *testing.T) {
	r, _, db := newTestRouter(t, "http://localhost:0")

	require.NoError(t, db.Create(&models.CallLogRecord{
		ID:        "r-1",
		LeadID:    "lead-9",
		Direction: "inbound",
		Status:    "missed",
		StartedAt: time.Now(),
	}).Error)

	w, parsed := doJSON(t, r, http.MethodGet, "/api/call-logs/r-1/recording", "")

	require.Equal(t, http.StatusOK, w.Code)
	data := parsed["data"].(map[string]interface{})
	assert.Equal(t, "unavailable", data["state"])
}
