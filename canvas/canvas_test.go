package canvas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMemoryStoreCreateGetListCards(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.CreateCard(ctx, Card{CanvasID: "canvas-1", Title: "Go channels", CardType: CardTypeRichText})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected an id to be assigned")
	}

	got, err := store.GetCard(ctx, "canvas-1", created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "Go channels" {
		t.Errorf("expected title to round-trip, got %q", got.Title)
	}

	if _, err := store.GetCard(ctx, "canvas-2", created.ID); err == nil {
		t.Error("expected an error fetching a card under the wrong canvas")
	}

	list, err := store.ListCards(ctx, "canvas-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 card, got %d", len(list))
	}
}

func TestMemoryStoreUpdateCardAppliesOnlySetFields(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	created, _ := store.CreateCard(ctx, Card{CanvasID: "canvas-1", Title: "Draft", Content: "v1"})

	newTitle := "Final"
	updated, err := store.UpdateCard(ctx, "canvas-1", created.ID, CardPatch{Title: &newTitle})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Title != "Final" || updated.Content != "v1" {
		t.Errorf("expected only title to change, got %+v", updated)
	}
}

func TestMemoryStoreConnectionSelfLoopRejected(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreateConnection(ctx, Connection{CanvasID: "c1", SourceID: "a", TargetID: "a"})
	if err == nil {
		t.Fatal("expected an error for a self-loop connection")
	}
}

func TestMemoryStoreListConnectionsFiltersByCanvas(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _ = store.CreateConnection(ctx, Connection{CanvasID: "c1", SourceID: "a", TargetID: "b", ConnectionType: ConnectionRelated})
	_, _ = store.CreateConnection(ctx, Connection{CanvasID: "c2", SourceID: "x", TargetID: "y", ConnectionType: ConnectionRelated})

	conns, err := store.ListConnections(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conns) != 1 || conns[0].SourceID != "a" {
		t.Fatalf("expected only canvas c1's connection, got %+v", conns)
	}
}

func TestHTTPStoreCreateCardRoundTripsThroughJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/canvases/canvas-1/cards" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var card Card
		if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		card.ID = "generated-id"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(card)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, srv.Client())
	created, err := store.CreateCard(context.Background(), Card{CanvasID: "canvas-1", Title: "From HTTP"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "generated-id" || created.Title != "From HTTP" {
		t.Errorf("unexpected round-trip result: %+v", created)
	}
}

func TestHTTPStoreNonSuccessStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, srv.Client())
	if _, err := store.GetCard(context.Background(), "canvas-1", "card-1"); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}
