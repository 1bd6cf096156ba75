package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirecall/internal/core"
	"github.com/vovakirdan/wirecall/internal/store"
)

// Common errors for history operations.
var (
	ErrCallNotFound = errors.New("call not found")
)

// DefaultHistoryLimit caps history queries that do not name a limit.
const DefaultHistoryLimit = 50

const saveTimeout = 5 * time.Second

// Service records finished calls and serves the call history.
// It is a core.Handler; it records calls from OnDisconnected and from
// OnVideoActivationDeclined.
type Service struct {
	core.NopHandler

	store store.CallStore
	log   *zerolog.Logger
}

var _ core.Handler = (*Service)(nil)

// New creates a new history Service.
func New(st store.CallStore, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, log: logger}
}

// OnDisconnected persists the finished call.
func (s *Service) OnDisconnected(call *core.Call, reason core.DisconnectReason) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.Record(ctx, call, reason); err != nil {
		s.log.Error().Err(err).Str("call_id", string(call.ID)).Msg("failed to save call record")
	}
}

// OnVideoActivationDeclined persists a call discarded because video was not
// activated.
func (s *Service) OnVideoActivationDeclined(err *core.CallError) {
	if err == nil || err.Call == nil {
		return
	}
	s.OnDisconnected(err.Call, core.ActivationDeclinedReason(err.Call))
}

// Record stores a call record built from the final call snapshot.
func (s *Service) Record(ctx context.Context, call *core.Call, reason core.DisconnectReason) error {
	rec := RecordFromCall(call, reason)
	if err := s.store.SaveCallRecord(ctx, rec); err != nil {
		return fmt.Errorf("save call record: %w", err)
	}
	s.log.Debug().
		Str("call_id", rec.ID).
		Str("reason", reason.String()).
		Msg("call recorded")
	return nil
}

// History returns finished calls, most recent first.
func (s *Service) History(ctx context.Context, limit int) ([]*store.CallRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	records, err := s.store.ListCallRecords(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	return records, nil
}

// Get returns one finished call.
func (s *Service) Get(ctx context.Context, id string) (*store.CallRecord, error) {
	rec, err := s.store.GetCallRecord(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("get call record: %w", err)
	}
	return rec, nil
}

// RecordFromCall converts a call snapshot into its history record.
func RecordFromCall(call *core.Call, reason core.DisconnectReason) *store.CallRecord {
	rec := &store.CallRecord{
		ID:         string(call.ID),
		Direction:  call.Direction.String(),
		Address:    call.Address,
		OneToOne:   call.OneToOne,
		Reason:     reason.Kind.String(),
		ReasonCode: reason.Code,
		CreatedAt:  call.CreatedAt,
		EndedAt:    call.EndedAt,
	}
	if !call.ConnectedAt.IsZero() {
		t := call.ConnectedAt
		rec.ConnectedAt = &t
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now()
	}
	return rec
}
