package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/callengine/livekit"
	"github.com/vovakirdan/wirecall/internal/callengine/loopback"
	"github.com/vovakirdan/wirecall/internal/config"
	"github.com/vovakirdan/wirecall/internal/core"
	"github.com/vovakirdan/wirecall/internal/metrics"
	"github.com/vovakirdan/wirecall/internal/proto"
	"github.com/vovakirdan/wirecall/internal/service/calls"
	"github.com/vovakirdan/wirecall/internal/store/sqlite"
)

type testEnv struct {
	ts      *httptest.Server
	phone   *core.Phone
	engine  *loopback.Engine
	bridge  *Bridge
	history *calls.Service
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	cfg.JWTSecret = "test-secret"
	cfg.AuxViews = []string{"aux-1", "aux-2"}
	return cfg
}

// startTestServer wires a registered phone on the loopback engine behind the HTTP server.
func startTestServer(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()

	disabledLogger := zerolog.Nop()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	eng := loopback.New()
	t.Cleanup(eng.Close)

	history := calls.New(st, &disabledLogger)
	bridge := NewBridge(cfg.AuxViews, cfg.EventBuffer, &disabledLogger)
	m := metrics.New()
	phone := core.NewPhone(eng, core.MultiHandler{bridge, history, m}, &disabledLogger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go phone.Run(ctx)

	if _, err := phone.Register(ctx); err != nil {
		t.Fatalf("register: %v", err)
	}

	opts := []Option{WithInjector(eng), WithMetrics(m.Handler())}
	if cfg.LiveKitAPIKey != "" {
		opts = append(opts, WithWebhook(
			livekit.NewWebhookReceiver(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret),
			livekit.NewRoster(cfg.LiveKitIdentity),
		))
	}
	server := NewServer(phone, bridge, history, &cfg, &disabledLogger, opts...)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, phone: phone, engine: eng, bridge: bridge, history: history}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func dialWS(t *testing.T, ts *httptest.Server) (context.Context, *websocket.Conn) {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return ctx, conn
}

// readUntil reads outbound messages until one matches typ and event.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ, event string) json.RawMessage {
	t.Helper()
	for {
		var out struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read outbound waiting for %s/%s: %v", typ, event, err)
		}
		if out.Type == typ && (event == "" || out.Event == event) {
			if out.Error != nil {
				raw, _ := json.Marshal(out.Error)
				return raw
			}
			return out.Data
		}
	}
}
