package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/shiftfence/internal/adapters/http"
	"github.com/samirrijal/shiftfence/internal/adapters/memory"
	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/core/usecases"
)

var facility = domain.Coordinate{Lat: 40.7128, Lon: -74.0060}

// steppingClock advances by one minute on every read.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	store *memory.Store
	hub   *memory.Hub
	deps  *handler.Dependencies
	app   *fiber.App
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

// newEnv wires the handlers to in-memory adapters: org-a has a 100m perimeter
// around facility with workers w1 and w2, org-b has no perimeter.
func newEnv(opts ...func(*handler.Dependencies)) *testEnv {
	store := memory.NewStore()
	store.AddOrganization("org-a", &domain.Perimeter{
		OrganizationID: "org-a", Center: facility, RadiusMeters: 100,
	})
	store.AddOrganization("org-b", nil)
	store.AddWorker("w1", "org-a")
	store.AddWorker("w2", "org-a")
	store.AddWorker("w3", "org-b")

	hub := memory.NewHub(memory.DefaultSubscriberBuffer)
	notifier := usecases.NewNotifier(hub)
	clock := &steppingClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	perimeters := usecases.NewPerimeterService(store, nil, 60)

	deps := &handler.Dependencies{
		Shifts:     usecases.NewShiftService(store, store, perimeters, notifier, usecases.WithClock(clock.Now)),
		Perimeters: perimeters,
		Tracker:    usecases.NewGeofenceTracker(store, perimeters, store, notifier),
		Events:     hub,
	}
	for _, o := range opts {
		o(deps)
	}
	return &testEnv{store: store, hub: hub, deps: deps, app: setupApp(deps)}
}

func (e *testEnv) do(t *testing.T, method, path, userID, role, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(handler.HeaderUserID, userID)
		req.Header.Set(handler.HeaderOrganizationID, "org-a")
	}
	if role != "" {
		req.Header.Set(handler.HeaderUserRole, role)
	}
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, readBody(t, resp.Body)
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func decodeError(t *testing.T, body []byte) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error body %s: %v", body, err)
	}
	return apiErr
}

func TestHealth_Returns200(t *testing.T) {
	env := newEnv()

	status, body := env.do(t, "GET", "/v1/health", "", "", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var result map[string]interface{}
	_ = json.Unmarshal(body, &result)
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
}

func TestReady_InMemory(t *testing.T) {
	env := newEnv()

	status, _ := env.do(t, "GET", "/v1/ready", "", "", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestReady_DatabaseDown(t *testing.T) {
	env := newEnv(func(d *handler.Dependencies) { d.DB = failingPinger{} })

	status, body := env.do(t, "GET", "/v1/ready", "", "", "")
	if status != 503 {
		t.Fatalf("expected 503, got %d: %s", status, body)
	}
}

func TestMissingIdentity_Returns401(t *testing.T) {
	env := newEnv()

	status, body := env.do(t, "GET", "/v1/shifts/active", "", "", "")
	if status != 401 {
		t.Fatalf("expected 401, got %d", status)
	}
	if code := decodeError(t, body).Code; code != "unauthorized" {
		t.Errorf("expected unauthorized, got %s", code)
	}
}

func TestUnknownRole_Returns401(t *testing.T) {
	env := newEnv()

	status, _ := env.do(t, "GET", "/v1/shifts/active", "w1", "JANITOR", "")
	if status != 401 {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestClockInOut_Lifecycle(t *testing.T) {
	env := newEnv()
	events, unsubscribe, err := subscribe(env, domain.Principal{UserID: "m1", OrganizationID: "org-a", Role: domain.RoleManager})
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	status, body := env.do(t, "POST", "/v1/shifts/clock-in", "w1", "", `{"lat":40.7129,"lon":-74.0061,"note":"start"}`)
	if status != 201 {
		t.Fatalf("clock-in: expected 201, got %d: %s", status, body)
	}
	var opened domain.Shift
	if err := json.Unmarshal(body, &opened); err != nil {
		t.Fatal(err)
	}
	if opened.WorkerID != "w1" || opened.OrganizationID != "org-a" || !opened.IsOpen() {
		t.Fatalf("unexpected shift: %+v", opened)
	}
	if opened.ClockIn.Note != "start" {
		t.Errorf("expected note to be kept, got %q", opened.ClockIn.Note)
	}

	status, body = env.do(t, "GET", "/v1/shifts/active", "w1", "", "")
	if status != 200 {
		t.Fatalf("active: expected 200, got %d", status)
	}

	status, body = env.do(t, "POST", "/v1/shifts/clock-out", "w1", "", `{"lat":40.7128,"lon":-74.0060}`)
	if status != 200 {
		t.Fatalf("clock-out: expected 200, got %d: %s", status, body)
	}
	var closed domain.Shift
	if err := json.Unmarshal(body, &closed); err != nil {
		t.Fatal(err)
	}
	if closed.ID != opened.ID || closed.IsOpen() || closed.TotalHours == nil {
		t.Fatalf("expected closed shift %s, got %+v", opened.ID, closed)
	}

	status, _ = env.do(t, "GET", "/v1/shifts/active", "w1", "", "")
	if status != 404 {
		t.Errorf("active after clock-out: expected 404, got %d", status)
	}

	want := []domain.EventKind{
		domain.EventShiftUpdated, domain.EventStaffStatusChanged,
		domain.EventShiftUpdated, domain.EventStaffStatusChanged,
	}
	for i, kind := range want {
		select {
		case ev := <-events:
			if ev.Kind != kind {
				t.Errorf("event %d: expected %s, got %s", i, kind, ev.Kind)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d: timed out waiting for %s", i, kind)
		}
	}
}

func subscribe(env *testEnv, p domain.Principal) (<-chan *domain.Event, func(), error) {
	ch := make(chan *domain.Event, 16)
	unsubscribe, err := env.hub.Subscribe(context.Background(), p, nil, func(_ context.Context, ev *domain.Event) {
		ch <- ev
	})
	return ch, unsubscribe, err
}

func TestClockIn_OutsidePerimeter(t *testing.T) {
	env := newEnv()

	status, body := env.do(t, "POST", "/v1/shifts/clock-in", "w1", "", `{"lat":40.72,"lon":-74.006}`)
	if status != 403 {
		t.Fatalf("expected 403, got %d", status)
	}
	apiErr := decodeError(t, body)
	if apiErr.Code != "outside_perimeter" {
		t.Errorf("expected outside_perimeter, got %s", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "100m") {
		t.Errorf("expected radius in message, got %q", apiErr.Message)
	}
}

func TestClockIn_Twice(t *testing.T) {
	env := newEnv()
	body := `{"lat":40.7128,"lon":-74.0060}`

	if status, _ := env.do(t, "POST", "/v1/shifts/clock-in", "w1", "", body); status != 201 {
		t.Fatalf("first clock-in: expected 201, got %d", status)
	}
	status, resp := env.do(t, "POST", "/v1/shifts/clock-in", "w1", "", body)
	if status != 409 {
		t.Fatalf("second clock-in: expected 409, got %d", status)
	}
	if code := decodeError(t, resp).Code; code != "already_clocked_in" {
		t.Errorf("expected already_clocked_in, got %s", code)
	}
}

func TestClockOut_NoActiveShift(t *testing.T) {
	env := newEnv()

	status, body := env.do(t, "POST", "/v1/shifts/clock-out", "w2", "", `{"lat":40.7128,"lon":-74.0060}`)
	if status != 409 {
		t.Fatalf("expected 409, got %d", status)
	}
	if code := decodeError(t, body).Code; code != "no_active_shift" {
		t.Errorf("expected no_active_shift, got %s", code)
	}
}

func TestClockIn_BadRequests(t *testing.T) {
	env := newEnv()

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"lat":`, "bad_request"},
		{"missing lon", `{"lat":40.7}`, "bad_request"},
		{"latitude out of range", `{"lat":91,"lon":0}`, "invalid_coordinate"},
		{"note too long", `{"lat":40.7128,"lon":-74.006,"note":"` + strings.Repeat("x", 501) + `"}`, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, "POST", "/v1/shifts/clock-in", "w1", "", tt.body)
			if status != 400 {
				t.Fatalf("expected 400, got %d: %s", status, body)
			}
			if code := decodeError(t, body).Code; code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, code)
			}
		})
	}
}

func TestClockIn_OrganizationWithoutPerimeter(t *testing.T) {
	env := newEnv()

	req := httptest.NewRequest("POST", "/v1/shifts/clock-in", strings.NewReader(`{"lat":40.7128,"lon":-74.0060}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.HeaderUserID, "w3")
	req.Header.Set(handler.HeaderOrganizationID, "org-b")
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if code := decodeError(t, readBody(t, resp.Body)).Code; code != "organization_not_found" {
		t.Errorf("expected organization_not_found, got %s", code)
	}
}

func TestListShifts_Pagination(t *testing.T) {
	env := newEnv()
	ctx := context.Background()
	base := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		in := base.Add(time.Duration(i) * 24 * time.Hour)
		s := &domain.Shift{
			ID: "s" + string(rune('a'+i)), WorkerID: "w1", OrganizationID: "org-a",
			ClockIn: domain.ClockStamp{Time: in, Location: facility},
		}
		if err := env.store.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
		if err := env.store.Close(ctx, s.ID, domain.ClockStamp{Time: in.Add(8 * time.Hour), Location: facility}, 8); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest("GET", "/v1/shifts?offset=1&limit=2", nil)
	req.Header.Set(handler.HeaderUserID, "w1")
	req.Header.Set(handler.HeaderOrganizationID, "org-a")
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, `rel="next"`) || !strings.Contains(link, `rel="prev"`) {
		t.Errorf("expected prev and next links, got %q", link)
	}

	var page struct {
		Data       []domain.Shift     `json:"data"`
		Pagination handler.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(readBody(t, resp.Body), &page); err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Total != 5 || page.Pagination.Offset != 1 || page.Pagination.Limit != 2 {
		t.Errorf("unexpected pagination: %+v", page.Pagination)
	}
	if len(page.Data) != 2 || page.Data[0].ID != "sd" || page.Data[1].ID != "sc" {
		t.Errorf("expected newest first [sd sc], got %+v", page.Data)
	}
}

func TestListShifts_LimitClamped(t *testing.T) {
	env := newEnv()

	status, body := env.do(t, "GET", "/v1/shifts?limit=1000&offset=-4", "w1", "", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var page handler.PaginatedResponse
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Limit != handler.DefaultPageLimit || page.Pagination.Offset != 0 {
		t.Errorf("expected clamped page, got %+v", page.Pagination)
	}
}

func TestPerimeter_GetAndUpdate(t *testing.T) {
	env := newEnv()

	status, body := env.do(t, "GET", "/v1/organizations/org-a/perimeter", "w1", "", "")
	if status != 200 {
		t.Fatalf("get: expected 200, got %d", status)
	}
	var p domain.Perimeter
	_ = json.Unmarshal(body, &p)
	if p.RadiusMeters != 100 {
		t.Errorf("expected radius 100, got %v", p.RadiusMeters)
	}

	update := `{"lat":40.72,"lon":-74.006,"radius_meters":250}`
	if status, _ := env.do(t, "PUT", "/v1/organizations/org-a/perimeter", "w1", "", update); status != 403 {
		t.Fatalf("worker update: expected 403, got %d", status)
	}

	status, body = env.do(t, "PUT", "/v1/organizations/org-a/perimeter", "m1", "MANAGER", update)
	if status != 200 {
		t.Fatalf("manager update: expected 200, got %d: %s", status, body)
	}

	// The moved perimeter now admits a clock-in at its new center.
	status, body = env.do(t, "POST", "/v1/shifts/clock-in", "w1", "", `{"lat":40.72,"lon":-74.006}`)
	if status != 201 {
		t.Fatalf("clock-in at new center: expected 201, got %d: %s", status, body)
	}
}

func TestPerimeter_Invalid(t *testing.T) {
	env := newEnv()

	status, body := env.do(t, "PUT", "/v1/organizations/org-a/perimeter", "m1", "ADMIN", `{"lat":40.72,"lon":-74.006,"radius_meters":0}`)
	if status != 422 {
		t.Fatalf("expected 422, got %d", status)
	}
	if code := decodeError(t, body).Code; code != "invalid_perimeter" {
		t.Errorf("expected invalid_perimeter, got %s", code)
	}
}

func TestPerimeter_OtherOrganizationForbidden(t *testing.T) {
	env := newEnv()

	status, _ := env.do(t, "GET", "/v1/organizations/org-b/perimeter", "m1", "MANAGER", "")
	if status != 403 {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestOnShift(t *testing.T) {
	env := newEnv()
	if status, _ := env.do(t, "POST", "/v1/shifts/clock-in", "w1", "", `{"lat":40.7128,"lon":-74.0060}`); status != 201 {
		t.Fatalf("clock-in: expected 201, got %d", status)
	}

	if status, _ := env.do(t, "GET", "/v1/organizations/org-a/on-shift", "w2", "", ""); status != 403 {
		t.Fatalf("worker: expected 403, got %d", status)
	}

	status, body := env.do(t, "GET", "/v1/organizations/org-a/on-shift", "m1", "MANAGER", "")
	if status != 200 {
		t.Fatalf("manager: expected 200, got %d", status)
	}
	var result struct {
		Data  []domain.Shift `json:"data"`
		Count int            `json:"count"`
	}
	_ = json.Unmarshal(body, &result)
	if result.Count != 1 || result.Data[0].WorkerID != "w1" {
		t.Errorf("expected w1 on shift, got %+v", result)
	}
}

func TestIngestLocation_ExitWhileOnShift(t *testing.T) {
	env := newEnv()
	if status, _ := env.do(t, "POST", "/v1/shifts/clock-in", "w1", "", `{"lat":40.7128,"lon":-74.0060}`); status != 201 {
		t.Fatalf("clock-in: expected 201, got %d", status)
	}

	status, body := env.do(t, "POST", "/v1/locations", "w1", "", `{"lat":40.7128,"lon":-74.0060,"timestamp":"2024-03-01T10:00:00Z"}`)
	if status != 202 {
		t.Fatalf("first sample: expected 202, got %d: %s", status, body)
	}
	var first handler.IngestResponse
	_ = json.Unmarshal(body, &first)
	if len(first.Events) != 0 {
		t.Fatalf("first sample must not emit events, got %+v", first.Events)
	}

	status, body = env.do(t, "POST", "/v1/locations", "w1", "", `{"lat":40.72,"lon":-74.006,"timestamp":"2024-03-01T10:01:00Z","accuracy":12}`)
	if status != 202 {
		t.Fatalf("exit sample: expected 202, got %d: %s", status, body)
	}
	var exit handler.IngestResponse
	_ = json.Unmarshal(body, &exit)
	if len(exit.Events) != 2 {
		t.Fatalf("expected EXITED and AUTO_CLOCK_OUT, got %+v", exit.Events)
	}
	if exit.Events[0].Kind != domain.GeofenceExited || exit.Events[1].Kind != domain.GeofenceAutoClockOut {
		t.Errorf("unexpected events: %+v", exit.Events)
	}

	// The alert never closes the shift.
	if status, _ := env.do(t, "GET", "/v1/shifts/active", "w1", "", ""); status != 200 {
		t.Errorf("shift must stay open after AUTO_CLOCK_OUT, got %d", status)
	}

	status, body = env.do(t, "GET", "/v1/workers/w1/location", "m1", "MANAGER", "")
	if status != 200 {
		t.Fatalf("worker location: expected 200, got %d", status)
	}
	var last domain.LocationSample
	_ = json.Unmarshal(body, &last)
	if last.Location.Lat != 40.72 {
		t.Errorf("expected last known lat 40.72, got %v", last.Location.Lat)
	}
}

func TestIngestLocation_Stale(t *testing.T) {
	env := newEnv()

	if status, _ := env.do(t, "POST", "/v1/locations", "w1", "", `{"lat":40.7128,"lon":-74.0060,"timestamp":"2024-03-01T10:00:00Z"}`); status != 202 {
		t.Fatalf("expected 202, got %d", status)
	}
	status, body := env.do(t, "POST", "/v1/locations", "w1", "", `{"lat":40.7128,"lon":-74.0060,"timestamp":"2024-03-01T09:00:00Z"}`)
	if status != 422 {
		t.Fatalf("expected 422, got %d", status)
	}
	if code := decodeError(t, body).Code; code != "stale_sample" {
		t.Errorf("expected stale_sample, got %s", code)
	}
}

func TestIngestLocation_InvalidSample(t *testing.T) {
	env := newEnv()

	status, body := env.do(t, "POST", "/v1/locations", "w1", "", `{"lat":40.7128,"lon":-74.0060,"accuracy":-1}`)
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	if code := decodeError(t, body).Code; code != "invalid_sample" {
		t.Errorf("expected invalid_sample, got %s", code)
	}
}

func TestWorkerLocation_Forbidden(t *testing.T) {
	env := newEnv()

	if status, _ := env.do(t, "GET", "/v1/workers/w2/location", "w1", "", ""); status != 403 {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newEnv()

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("expected no-store, got %q", got)
	}
	if got := resp.Header.Get("X-API-Version"); got != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", got)
	}
	if resp.Header.Get(fiber.HeaderXRequestID) == "" {
		t.Error("expected a request ID")
	}
}

func TestDocs_ServesOpenAPI(t *testing.T) {
	env := newEnv()

	status, body := env.do(t, "GET", "/docs/openapi.yaml", "", "", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(string(body), "Shiftfence API") {
		t.Error("expected OpenAPI document")
	}
}
