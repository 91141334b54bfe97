package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVerifyBuildsQueryAndParsesHit(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path=%q, want /search", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		if r.URL.Query().Get("format") != "jsonv2" {
			t.Errorf("format=%q, want jsonv2", r.URL.Query().Get("format"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{
			"lat": "12.9352",
			"lon": "77.6245",
			"display_name": "4th Block, Koramangala, Bengaluru, Karnataka, 560034, India",
			"address": {"suburb": "Koramangala", "city": "Bengaluru", "postcode": "560034"}
		}]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Verify(context.Background(), Request{
		Description: "4th block koramangala",
		Landmark:    "near the water tank",
		Pincode:     "560034",
	})
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}

	if gotQuery != "4th block koramangala, near the water tank, 560034" {
		t.Fatalf("q=%q, want combined description, landmark, pincode", gotQuery)
	}
	if res.Lat != 12.9352 || res.Lng != 77.6245 {
		t.Fatalf("coords=(%v,%v), want (12.9352,77.6245)", res.Lat, res.Lng)
	}
	if res.FormattedAddress == "" {
		t.Fatal("formatted address should be set")
	}
	if res.Components["city"] != "Bengaluru" {
		t.Fatalf("components=%v, want city Bengaluru", res.Components)
	}
}

func TestVerifyNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Verify(context.Background(), Request{Description: "nowhere at all"})
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("err=%v, want ErrNoMatch", err)
	}
}

func TestVerifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Verify(context.Background(), Request{Description: "somewhere"})
	if err == nil {
		t.Fatal("expected an error for a 503 response")
	}
	if errors.Is(err, ErrNoMatch) {
		t.Fatal("server failure must not read as no-match")
	}
}

func TestVerifyEmptyDescriptionRejected(t *testing.T) {
	_, err := New("http://unused.invalid").Verify(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected an error for an empty description")
	}
}
