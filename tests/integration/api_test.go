package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/gridstonehq/gridstone/backend/internal/access"
	"github.com/gridstonehq/gridstone/backend/internal/auth"
	"github.com/gridstonehq/gridstone/backend/internal/database"
	"github.com/gridstonehq/gridstone/backend/internal/realtime"
	"github.com/gridstonehq/gridstone/backend/internal/records"
	"github.com/gridstonehq/gridstone/backend/internal/schema"
	"github.com/gridstonehq/gridstone/backend/internal/server"
	"github.com/gridstonehq/gridstone/backend/internal/users"
	"github.com/gridstonehq/gridstone/backend/internal/views"
	"gorm.io/gorm"
)

func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	dsn := fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db, nil); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("integration-secret"),
		Issuer:        "gridstone-auth",
		Audience:      "gridstone-api",
		TokenTTL:      time.Hour,
	})
	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	schemaService, err := schema.NewService(schema.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build schema service: %v", err)
	}
	accessService, err := access.NewService(access.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build access service: %v", err)
	}
	broadcaster := realtime.NewBroadcaster(nil)
	t.Cleanup(broadcaster.Close)
	recordsService, err := records.NewService(records.ServiceConfig{
		Database:  db,
		Access:    accessService,
		Publisher: broadcaster,
	})
	if err != nil {
		t.Fatalf("failed to build records service: %v", err)
	}
	viewsService, err := views.NewService(views.ServiceConfig{Database: db, Access: accessService})
	if err != nil {
		t.Fatalf("failed to build views service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenIssuer: tokenIssuer,
		Users:       usersService,
		Schema:      schemaService,
		Access:      accessService,
		Records:     recordsService,
		Views:       viewsService,
		Broadcaster: broadcaster,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	httpServer := httptest.NewServer(handler)
	t.Cleanup(httpServer.Close)
	return httpServer
}

func call(t *testing.T, httpServer *httptest.Server, method, path, token string, body any) map[string]any {
	t.Helper()
	recorder := callRaw(t, httpServer, method, path, token, body)
	defer recorder.Body.Close()
	if recorder.StatusCode >= 300 {
		t.Fatalf("%s %s failed with status %d", method, path, recorder.StatusCode)
	}
	if recorder.StatusCode == http.StatusNoContent {
		return nil
	}
	var payload map[string]any
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
	}
	return payload
}

func callRaw(t *testing.T, httpServer *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, httpServer.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return response
}

func registerAndLogin(t *testing.T, httpServer *httptest.Server, email string) string {
	t.Helper()
	call(t, httpServer, http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "password": "hunter2",
	})
	payload := call(t, httpServer, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": "hunter2",
	})
	token, _ := payload["access_token"].(string)
	if token == "" {
		t.Fatalf("missing access token in %v", payload)
	}
	return token
}

func asID(t *testing.T, payload map[string]any) int64 {
	t.Helper()
	raw, ok := payload["id"].(float64)
	if !ok {
		t.Fatalf("missing id in %v", payload)
	}
	return int64(raw)
}

func TestCollaborationScenario(t *testing.T) {
	httpServer := startServer(t)

	ownerToken := registerAndLogin(t, httpServer, "owner@example.com")
	editorToken := registerAndLogin(t, httpServer, "editor@example.com")

	base := call(t, httpServer, http.MethodPost, "/bases", ownerToken, map[string]string{"name": "Inventory"})
	table := call(t, httpServer, http.MethodPost,
		fmt.Sprintf("/bases/%d/tables", asID(t, base)), ownerToken, map[string]string{"name": "Items"})
	tableID := asID(t, table)

	price := call(t, httpServer, http.MethodPost,
		fmt.Sprintf("/tables/%d/fields", tableID), ownerToken,
		map[string]any{"name": "Price", "type": "number"})
	quantity := call(t, httpServer, http.MethodPost,
		fmt.Sprintf("/tables/%d/fields", tableID), ownerToken,
		map[string]any{"name": "Quantity", "type": "number"})
	total := call(t, httpServer, http.MethodPost,
		fmt.Sprintf("/tables/%d/fields", tableID), ownerToken,
		map[string]any{
			"name": "Total", "type": "formula",
			"options": map[string]any{
				"formula_string": fmt.Sprintf("{%d} * {%d}", asID(t, price), asID(t, quantity)),
			},
		})

	// The collaborator has no access yet.
	denied := callRaw(t, httpServer, http.MethodPost,
		fmt.Sprintf("/tables/%d/records", tableID), editorToken,
		map[string]any{"values": map[string]any{}})
	_ = denied.Body.Close()
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 before grant, got %d", denied.StatusCode)
	}

	call(t, httpServer, http.MethodPost,
		fmt.Sprintf("/tables/%d/permissions", tableID), ownerToken,
		map[string]string{"user_email": "editor@example.com", "permission_level": "editor"})

	// The owner watches the table over a websocket.
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") +
		fmt.Sprintf("/ws/tables/%d?token=%s", tableID, ownerToken)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	// The collaborator creates a record; the stored values and the computed
	// formula come back in one payload.
	record := call(t, httpServer, http.MethodPost,
		fmt.Sprintf("/tables/%d/records", tableID), editorToken,
		map[string]any{"values": map[string]any{
			fmt.Sprint(asID(t, price)):    2.5,
			fmt.Sprint(asID(t, quantity)): 4,
		}})
	recordID := asID(t, record)

	values, ok := record["values"].([]any)
	if !ok {
		t.Fatalf("missing values in %v", record)
	}
	foundTotal := false
	for _, raw := range values {
		value, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if int64(value["field_id"].(float64)) != asID(t, total) {
			continue
		}
		foundTotal = true
		if value["value_number"].(float64) != 10 {
			t.Fatalf("unexpected formula result: %v", value)
		}
	}
	if !foundTotal {
		t.Fatalf("expected a computed total in %v", values)
	}

	// The websocket observer sees the create.
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	var envelope struct {
		Event   string         `json:"event"`
		Payload map[string]any `json:"payload"`
	}
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	if envelope.Event != "record_created" {
		t.Fatalf("unexpected event: %s", envelope.Event)
	}
	if int64(envelope.Payload["id"].(float64)) != recordID {
		t.Fatalf("unexpected broadcast payload: %v", envelope.Payload)
	}

	// Delete broadcasts too, with the bare identifiers.
	call(t, httpServer, http.MethodDelete, fmt.Sprintf("/records/%d", recordID), editorToken, nil)
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("failed to read delete broadcast: %v", err)
	}
	if envelope.Event != "record_deleted" {
		t.Fatalf("unexpected event: %s", envelope.Event)
	}
	if int64(envelope.Payload["record_id"].(float64)) != recordID {
		t.Fatalf("unexpected delete payload: %v", envelope.Payload)
	}
}

func TestLinkedTablesScenario(t *testing.T) {
	httpServer := startServer(t)
	token := registerAndLogin(t, httpServer, "owner@example.com")

	base := call(t, httpServer, http.MethodPost, "/bases", token, map[string]string{"name": "CRM"})
	companies := call(t, httpServer, http.MethodPost,
		fmt.Sprintf("/bases/%d/tables", asID(t, base)), token, map[string]string{"name": "Companies"})
	contacts := call(t, httpServer, http.MethodPost,
		fmt.Sprintf("/bases/%d/tables", asID(t, base)), token, map[string]string{"name": "Contacts"})

	employer := call(t, httpServer, http.MethodPost,
		fmt.Sprintf("/tables/%d/fields", asID(t, contacts)), token,
		map[string]any{
			"name": "Employer", "type": "linkToRecord",
			"options": map[string]any{"linked_table_id": asID(t, companies)},
		})

	company := call(t, httpServer, http.MethodPost,
		fmt.Sprintf("/tables/%d/records", asID(t, companies)), token,
		map[string]any{"values": map[string]any{}})
	contact := call(t, httpServer, http.MethodPost,
		fmt.Sprintf("/tables/%d/records", asID(t, contacts)), token,
		map[string]any{"values": map[string]any{
			fmt.Sprint(asID(t, employer)): []any{asID(t, company)},
		}})

	// The company sees the contact through its backlinks.
	backlinksResp := callRaw(t, httpServer, http.MethodGet,
		fmt.Sprintf("/records/%d/backlinks", asID(t, company)), token, nil)
	defer backlinksResp.Body.Close()
	if backlinksResp.StatusCode != http.StatusOK {
		t.Fatalf("backlinks failed: %d", backlinksResp.StatusCode)
	}
	var backlinks []map[string]any
	if err := json.NewDecoder(backlinksResp.Body).Decode(&backlinks); err != nil {
		t.Fatalf("failed to decode backlinks: %v", err)
	}
	if len(backlinks) != 1 {
		t.Fatalf("expected one backlink, got %d", len(backlinks))
	}
	if int64(backlinks[0]["source_record_id"].(float64)) != asID(t, contact) {
		t.Fatalf("unexpected backlink: %v", backlinks[0])
	}
}
