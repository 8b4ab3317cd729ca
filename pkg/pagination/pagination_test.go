package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/medications/m1/logs"+query, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", DefaultLimit, 0},
		{"custom", "?limit=5&offset=10", 5, 10},
		{"max limit", "?limit=1000", MaxLimit, 0},
		{"negative offset", "?offset=-3", DefaultLimit, 0},
		{"garbage", "?limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := paramsFor(t, tt.query)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got %+v, want limit %d offset %d", p, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestParams_Navigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 5}
	if !p.HasNext(20) {
		t.Error("expected next page for total 20")
	}
	if p.HasNext(15) {
		t.Error("expected no next page for total 15")
	}
	if !p.HasPrevious() {
		t.Error("expected previous page")
	}
	if p.NextOffset() != 15 {
		t.Errorf("NextOffset = %d", p.NextOffset())
	}
	if p.PreviousOffset() != 0 {
		t.Errorf("PreviousOffset = %d, want clamp to 0", p.PreviousOffset())
	}
}

func TestNewResponse(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	r := NewResponse([]string{"a"}, 25, p, "/logs")
	if !r.HasMore {
		t.Error("expected has_more")
	}
	if r.Links["self"] != "/logs?offset=10&limit=10" {
		t.Errorf("self = %q", r.Links["self"])
	}
	if r.Links["next"] != "/logs?offset=20&limit=10" {
		t.Errorf("next = %q", r.Links["next"])
	}
	if r.Links["previous"] != "/logs?offset=0&limit=10" {
		t.Errorf("previous = %q", r.Links["previous"])
	}

	first := NewResponse(nil, 3, Params{Limit: 10}, "")
	if first.HasMore || first.Links != nil {
		t.Errorf("unexpected single-page response: %+v", first)
	}
}
