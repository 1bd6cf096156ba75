package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lkproto "github.com/livekit/protocol/livekit"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/vovakirdan/wirecall/internal/callengine"
	"github.com/vovakirdan/wirecall/internal/callengine/livekit"
	"github.com/vovakirdan/wirecall/internal/core"
)

func liveKitCredentials() (key, secret string) {
	return "devkey", "secret-secret-secret-secret-secret"
}

func postWebhook(t *testing.T, env *testEnv, ev *lkproto.WebhookEvent, secret string) *http.Response {
	t.Helper()
	key, _ := liveKitCredentials()

	body, err := protojson.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	sum := sha256.Sum256(body)
	claims := jwt.MapClaims{
		"iss":    key,
		"exp":    time.Now().Add(5 * time.Minute).Unix(),
		"sha256": base64.StdEncoding.EncodeToString(sum[:]),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign webhook: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/livekit/webhook", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/webhook+json")
	req.Header.Set("Authorization", token)
	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLiveKitWebhookDrivesCall(t *testing.T) {
	cfg := testConfig()
	cfg.LiveKitAPIKey, cfg.LiveKitAPISecret = liveKitCredentials()
	cfg.LiveKitIdentity = "me"
	cfg.JWTRequired = true
	env := startTestServer(t, cfg)

	env.engine.Inject(callengine.Notification{Kind: callengine.NotifyCallIncoming, CallID: "lk-1", Address: "bob"})
	waitStatus(t, env, core.StatusInitiated)

	room := &lkproto.Room{Name: livekit.RoomName("lk-1"), MaxParticipants: 8}
	resp := postWebhook(t, env, &lkproto.WebhookEvent{
		Event:       livekit.EventParticipantJoined,
		Room:        room,
		Participant: &lkproto.ParticipantInfo{Sid: "PA_b", Identity: "bob", State: lkproto.ParticipantInfo_ACTIVE},
	}, cfg.LiveKitAPISecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		call, err := env.phone.Current(context.Background())
		if err != nil {
			t.Fatalf("current: %v", err)
		}
		if call != nil {
			if _, ok := call.Membership("bob"); ok {
				if call.OneToOne {
					t.Fatalf("group room reported as one-to-one")
				}
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("membership from webhook never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp = postWebhook(t, env, &lkproto.WebhookEvent{Event: livekit.EventRoomFinished, Room: room}, cfg.LiveKitAPISecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	deadline = time.Now().Add(2 * time.Second)
	for {
		if rec, err := env.history.Get(context.Background(), "lk-1"); err == nil {
			if rec.Reason != "remote_cancel" {
				t.Fatalf("expected remote_cancel, got %q", rec.Reason)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("call never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveKitWebhookRejectsBadSignature(t *testing.T) {
	cfg := testConfig()
	cfg.LiveKitAPIKey, cfg.LiveKitAPISecret = liveKitCredentials()
	env := startTestServer(t, cfg)

	resp := postWebhook(t, env, &lkproto.WebhookEvent{Event: livekit.EventRoomFinished, Room: &lkproto.Room{Name: "wirecall-x"}}, "not-the-secret-not-the-secret")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLiveKitWebhookDisabled(t *testing.T) {
	env := startTestServer(t, testConfig())

	resp := postWebhook(t, env, &lkproto.WebhookEvent{Event: livekit.EventRoomFinished}, "whatever")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}
