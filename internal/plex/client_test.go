package plex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL, Token: "plex-token"})
}

func TestSections(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Token") != "plex-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"MediaContainer":{"size":2,"Directory":[
			{"key":"1","title":"Films","type":"movie"},
			{"key":"2","title":"Series","type":"show"}]}}`))
	}))

	sections, err := c.Sections(context.Background())
	if err != nil {
		t.Fatalf("Sections: %v", err)
	}
	if len(sections) != 2 || sections[1].Type != "show" {
		t.Errorf("unexpected sections %+v", sections)
	}
}

func TestSectionSize_UsesTotalSize(t *testing.T) {
	var gotPath, gotSize string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSize = r.Header.Get("X-Plex-Container-Size")
		w.Write([]byte(`{"MediaContainer":{"size":0,"totalSize":1234}}`))
	}))

	n, err := c.SectionSize(context.Background(), "1")
	if err != nil {
		t.Fatalf("SectionSize: %v", err)
	}
	if n != 1234 {
		t.Errorf("expected 1234, got %d", n)
	}
	if gotPath != "/library/sections/1/all" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotSize != "0" {
		t.Errorf("expected empty page request, got size %q", gotSize)
	}
}

func TestSearch_EscapesQuery(t *testing.T) {
	var gotQuery string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Write([]byte(`{"MediaContainer":{"Metadata":[{"type":"movie","title":"Heat","year":1995,"rating":8.3}]}}`))
	}))

	items, err := c.Search(context.Background(), "heat & dust")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "heat & dust" {
		t.Errorf("query not round-tripped: %q", gotQuery)
	}
	if len(items) != 1 || items[0].Year != 1995 {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestRecentlyAdded_Error(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	if _, err := c.RecentlyAdded(context.Background()); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestNoToken(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := c.Sections(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}
