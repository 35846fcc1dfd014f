package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orbita-service/internal/app"
	"orbita-service/internal/domain"
	"orbita-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func TestWebSocketQuestionnaireFlow(t *testing.T) {
	sessions := memory.NewSessionStore()
	tests := memory.NewTestRepository(memory.NewStaticTestLoader(sampleCatalog()), time.Minute)
	service := app.NewOrientationService(sessions, tests, memory.NewResultStore())
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?testId=intereses&userId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the started event up front (the initial progress snapshot may
	// arrive interleaved with it).
	startedSeen := false
	for i := 0; i < 3; i++ {
		msgType, payload := readNext(conn, t, "")
		if msgType == "started" {
			if payload == nil {
				t.Fatalf("expected started payload, got nil")
			}
			startedSeen = true
			break
		}
	}
	if !startedSeen {
		t.Fatalf("started message never arrived")
	}

	// Answer question 1, skip question 2: the test completes.
	if err := conn.WriteJSON(map[string]any{
		"type":    "select",
		"payload": map[string]any{"label": "Sí"},
	}); err != nil {
		t.Fatalf("write select: %v", err)
	}
	if err := conn.WriteJSON(map[string]any{"type": "skip"}); err != nil {
		t.Fatalf("write skip: %v", err)
	}

	// Expect progress updates and finally a completed record.
	var completed map[string]any
	for i := 0; i < 5; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == "completed" {
			completed = payload
			break
		}
	}
	if completed == nil {
		t.Fatalf("expected completed message")
	}
	results, ok := completed["results"].(map[string]any)
	if !ok {
		t.Fatalf("expected results in completed payload, got %+v", completed)
	}
	if results["realista"] != float64(50) {
		t.Fatalf("expected realista=50, got %v", results["realista"])
	}

	// History should contain the fresh record.
	if err := conn.WriteJSON(map[string]any{"type": "history"}); err != nil {
		t.Fatalf("write history: %v", err)
	}
	for i := 0; i < 5; i++ {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read history: %v", err)
		}
		if msg.Type != "history" {
			continue
		}
		var entries []map[string]any
		if err := json.Unmarshal(msg.Payload, &entries); err != nil {
			t.Fatalf("decode history: %v", err)
		}
		if len(entries) != 1 || entries[0]["testId"] != "intereses" {
			t.Fatalf("expected one history entry for intereses, got %+v", entries)
		}
		return
	}
	t.Fatalf("history message never arrived")
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func sampleCatalog() map[string]domain.Test {
	yesNo := []domain.Option{
		{Label: "Sí", Score: 1},
		{Label: "No", Score: 0},
	}
	return map[string]domain.Test{
		"intereses": {
			ID:         1,
			Name:       "Test de Intereses",
			Route:      "intereses",
			Dimensions: []string{"realista"},
			Questions: []domain.Question{
				{ID: 1, Text: "¿Te gustaría reparar aparatos eléctricos?", Dimension: "realista", Options: yesNo},
				{ID: 2, Text: "¿Te gustaría construir muebles?", Dimension: "realista", Options: yesNo},
			},
		},
	}
}
