package http_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message    string                 `json:"message"`
		Extensions map[string]interface{} `json:"extensions"`
	} `json:"errors"`
}

type gqlShift struct {
	ID       string `json:"id"`
	WorkerID string `json:"worker_id"`
	ClockIn  struct {
		Time     string            `json:"time"`
		Note     string            `json:"note"`
		Location domain.Coordinate `json:"location"`
	} `json:"clock_in"`
	ClockOut   *struct{ Time string } `json:"clock_out"`
	TotalHours *float64               `json:"total_hours"`
}

func (e *testEnv) graphql(t *testing.T, userID, role, query string) gqlResponse {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"query": query})
	status, resp := e.do(t, "POST", "/graphql", userID, role, string(body))
	if status != 200 {
		t.Fatalf("graphql: expected 200, got %d: %s", status, resp)
	}
	var out gqlResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		t.Fatalf("decode graphql response %s: %v", resp, err)
	}
	return out
}

func (r gqlResponse) field(t *testing.T, name string, v interface{}) {
	t.Helper()
	if len(r.Errors) > 0 {
		t.Fatalf("unexpected graphql errors: %+v", r.Errors)
	}
	if err := json.Unmarshal(r.Data[name], v); err != nil {
		t.Fatalf("decode %s: %v", name, err)
	}
}

const shiftFields = `{ id worker_id clock_in { time note location { lat lon } } clock_out { time } total_hours }`

func TestGraphQL_ClockInAndOut(t *testing.T) {
	env := newEnv()

	var opened gqlShift
	env.graphql(t, "w1", "", `mutation { clockIn(lat: 40.7128, lon: -74.0060, note: "gql") `+shiftFields+` }`).
		field(t, "clockIn", &opened)
	if opened.ID == "" || opened.WorkerID != "w1" {
		t.Fatalf("unexpected shift: %+v", opened)
	}
	if _, err := time.Parse(time.RFC3339, opened.ClockIn.Time); err != nil {
		t.Errorf("clock_in.time %q is not RFC3339: %v", opened.ClockIn.Time, err)
	}
	if opened.ClockIn.Note != "gql" || opened.ClockIn.Location.Lat != 40.7128 {
		t.Errorf("unexpected clock-in stamp: %+v", opened.ClockIn)
	}
	if opened.ClockOut != nil || opened.TotalHours != nil {
		t.Errorf("open shift must not have clock-out fields: %+v", opened)
	}

	var active gqlShift
	env.graphql(t, "w1", "", `{ activeShift { id } }`).field(t, "activeShift", &active)
	if active.ID != opened.ID {
		t.Errorf("expected active shift %s, got %s", opened.ID, active.ID)
	}

	var closed gqlShift
	env.graphql(t, "w1", "", `mutation { clockOut(lat: 40.7128, lon: -74.0060) `+shiftFields+` }`).
		field(t, "clockOut", &closed)
	if closed.ID != opened.ID || closed.ClockOut == nil || closed.TotalHours == nil {
		t.Fatalf("expected closed shift, got %+v", closed)
	}

	resp := env.graphql(t, "w1", "", `{ activeShift { id } }`)
	if len(resp.Errors) > 0 || string(resp.Data["activeShift"]) != "null" {
		t.Errorf("expected null active shift, got %s %+v", resp.Data["activeShift"], resp.Errors)
	}
}

func TestGraphQL_ClockInOutsidePerimeter(t *testing.T) {
	env := newEnv()

	resp := env.graphql(t, "w1", "", `mutation { clockIn(lat: 40.72, lon: -74.006) { id } }`)
	if len(resp.Errors) != 1 {
		t.Fatalf("expected one error, got %+v", resp.Errors)
	}
	if code := resp.Errors[0].Extensions["code"]; code != "outside_perimeter" {
		t.Errorf("expected outside_perimeter, got %v", code)
	}
	if !strings.Contains(resp.Errors[0].Message, "100m") {
		t.Errorf("expected radius in message, got %q", resp.Errors[0].Message)
	}
	if string(resp.Data["clockIn"]) != "null" {
		t.Errorf("expected null clockIn, got %s", resp.Data["clockIn"])
	}
}

func TestGraphQL_ClockInTwice(t *testing.T) {
	env := newEnv()

	env.graphql(t, "w1", "", `mutation { clockIn(lat: 40.7128, lon: -74.0060) { id } }`).field(t, "clockIn", &gqlShift{})
	resp := env.graphql(t, "w1", "", `mutation { clockIn(lat: 40.7128, lon: -74.0060) { id } }`)
	if len(resp.Errors) != 1 || resp.Errors[0].Extensions["code"] != "already_clocked_in" {
		t.Fatalf("expected already_clocked_in, got %+v", resp.Errors)
	}
}

func TestGraphQL_IngestLocation(t *testing.T) {
	env := newEnv()

	var shift gqlShift
	env.graphql(t, "w1", "", `mutation { clockIn(lat: 40.7128, lon: -74.0060) { id } }`).field(t, "clockIn", &shift)

	var first []domain.GeofenceEvent
	env.graphql(t, "w1", "", `mutation { ingestLocation(lat: 40.7128, lon: -74.0060, timestamp: "2024-03-01T10:00:00Z") { kind } }`).
		field(t, "ingestLocation", &first)
	if len(first) != 0 {
		t.Fatalf("first sample must not emit events, got %+v", first)
	}

	var exit []domain.GeofenceEvent
	env.graphql(t, "w1", "", `mutation { ingestLocation(lat: 40.72, lon: -74.006, timestamp: "2024-03-01T10:01:00Z", accuracy: 8) {
		kind worker_id organization_id shift_id timestamp location { lat lon } } }`).
		field(t, "ingestLocation", &exit)
	if len(exit) != 2 || exit[0].Kind != domain.GeofenceExited || exit[1].Kind != domain.GeofenceAutoClockOut {
		t.Fatalf("expected [EXITED AUTO_CLOCK_OUT], got %+v", exit)
	}
	alert := exit[1]
	if alert.ShiftID != shift.ID || alert.WorkerID != "w1" || alert.OrganizationID != "org-a" {
		t.Errorf("unexpected alert: %+v", alert)
	}
	if !alert.Timestamp.Equal(time.Date(2024, 3, 1, 10, 1, 0, 0, time.UTC)) {
		t.Errorf("expected the sample timestamp, got %s", alert.Timestamp)
	}

	var loc domain.LocationSample
	env.graphql(t, "m1", "MANAGER", `{ workerLocation(worker_id: "w1") { worker_id accuracy_meters location { lat lon } } }`).
		field(t, "workerLocation", &loc)
	if loc.Location.Lat != 40.72 || loc.AccuracyMeters == nil || *loc.AccuracyMeters != 8 {
		t.Errorf("unexpected last known location: %+v", loc)
	}
}

func TestGraphQL_UpdatePerimeter(t *testing.T) {
	env := newEnv()

	var p domain.Perimeter
	env.graphql(t, "m1", "MANAGER", `mutation { updatePerimeter(lat: 40.7130, lon: -74.0050, radius_meters: 250) {
		organization_id radius_meters center { lat lon } } }`).
		field(t, "updatePerimeter", &p)
	if p.OrganizationID != "org-a" || p.RadiusMeters != 250 || p.Center.Lat != 40.7130 {
		t.Errorf("unexpected perimeter: %+v", p)
	}

	resp := env.graphql(t, "w1", "", `mutation { updatePerimeter(lat: 40.7130, lon: -74.0050, radius_meters: 250) { radius_meters } }`)
	if len(resp.Errors) != 1 || resp.Errors[0].Extensions["code"] != "forbidden" {
		t.Errorf("expected forbidden for a worker, got %+v", resp.Errors)
	}

	resp = env.graphql(t, "m1", "MANAGER", `mutation { updatePerimeter(lat: 40.7130, lon: -74.0050, radius_meters: 0) { radius_meters } }`)
	if len(resp.Errors) != 1 || resp.Errors[0].Extensions["code"] != "invalid_perimeter" {
		t.Errorf("expected invalid_perimeter, got %+v", resp.Errors)
	}
}

func TestGraphQL_OnShiftRequiresManager(t *testing.T) {
	env := newEnv()
	env.graphql(t, "w1", "", `mutation { clockIn(lat: 40.7128, lon: -74.0060) { id } }`).field(t, "clockIn", &gqlShift{})

	var shifts []gqlShift
	env.graphql(t, "m1", "MANAGER", `{ onShift { worker_id } }`).field(t, "onShift", &shifts)
	if len(shifts) != 1 || shifts[0].WorkerID != "w1" {
		t.Errorf("expected w1 on shift, got %+v", shifts)
	}

	resp := env.graphql(t, "w2", "", `{ onShift { worker_id } }`)
	if len(resp.Errors) != 1 || resp.Errors[0].Extensions["code"] != "forbidden" {
		t.Errorf("expected forbidden for a worker, got %+v", resp.Errors)
	}
}

func TestGraphQL_RequestErrors(t *testing.T) {
	env := newEnv()

	if status, _ := env.do(t, "POST", "/graphql", "", "", `{"query":"{ activeShift { id } }"}`); status != 401 {
		t.Errorf("missing identity: expected 401, got %d", status)
	}

	status, body := env.do(t, "POST", "/graphql", "w1", "", `{"query":""}`)
	if status != 400 {
		t.Fatalf("empty query: expected 400, got %d", status)
	}
	if code := decodeError(t, body).Code; code != "bad_request" {
		t.Errorf("expected bad_request, got %s", code)
	}

	if status, _ := env.do(t, "POST", "/graphql", "w1", "JANITOR", `{"query":"{ activeShift { id } }"}`); status != 401 {
		t.Errorf("unknown role: expected 401, got %d", status)
	}
}
