package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirecall/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "bearer token sent in hello (required when the bridge enforces JWT)")
	view := flag.String("view", "", "aux view to offer to the bridge")
	count := flag.Int("events", 1, "number of events to print before exiting")
	timeout := flag.Duration("timeout", 30*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if *token != "" {
		if err := send(proto.InboundTypeHello, proto.HelloData{Token: *token, Protocol: proto.ProtocolVersion}); err != nil {
			return err
		}
	}

	seen := 0
	for seen < *count {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch outbound.Type {
		case proto.OutboundTypeReady:
			var ready proto.Ready
			if err := json.Unmarshal(outbound.Data, &ready); err != nil {
				return fmt.Errorf("unmarshal ready: %w", err)
			}
			fmt.Printf("Ready: client=%s protocol=%d\n", ready.ClientID, ready.Protocol)
			if *view != "" {
				if err := send(proto.InboundTypeAux, proto.AuxViewData{View: *view}); err != nil {
					return err
				}
			}
		case proto.OutboundTypeError:
			if outbound.Error != nil {
				return fmt.Errorf("bridge error %s: %s", outbound.Error.Code, outbound.Error.Msg)
			}
		case proto.OutboundTypeEvent:
			seen++
			fmt.Printf("Event: %s %s\n", outbound.Event, string(outbound.Data))
		default:
			fmt.Printf("Received outbound: type=%s\n", outbound.Type)
		}
	}
	return nil
}
