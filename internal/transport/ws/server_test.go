package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"
	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/event"
)

// dispatch с кривым payload: сервисы не трогаются, клиенту уходит
// error с кодом валидации — не retryable-классом.
func TestDispatchMalformedPayload(t *testing.T) {
	s := &Server{opTimeout: time.Second}

	cases := []struct {
		name string
		ev   event.Event
	}{
		{"message:send", event.Event{
			Type:    event.TypeMessageSend,
			Payload: map[string]any{"receiver_id": "not-a-number"},
		}},
		{"message:markRead", event.Event{
			Type:    event.TypeMessageMarkRead,
			Payload: map[string]any{"message_id": 42},
		}},
		{"messages:sync", event.Event{
			Type:    event.TypeMessagesSync,
			Payload: map[string]any{"since_timestamp": "yesterday"},
		}},
		{"call:offer", event.Event{
			Type:    event.TypeCallOffer,
			Payload: map[string]any{"callee_id": "abc"},
		}},
	}

	for _, tc := range cases {
		c := newWsConn(nil, 1, 4)
		s.dispatch(context.Background(), c, "conn-1", tc.ev)

		select {
		case out := <-c.out:
			if out.Type != event.TypeError {
				t.Fatalf("%s: expected error event, got %q", tc.name, out.Type)
			}
			p, ok := out.Payload.(event.ErrorPayload)
			if !ok {
				t.Fatalf("%s: unexpected payload %+v", tc.name, out.Payload)
			}
			if p.Code != "ValidationFailed" {
				t.Fatalf("%s: expected ValidationFailed, got %q", tc.name, p.Code)
			}
			if p.RefType != tc.ev.Type {
				t.Fatalf("%s: ref_type mismatch: %q", tc.name, p.RefType)
			}
		default:
			t.Fatalf("%s: no error event sent", tc.name)
		}
	}
}

func TestErrCodeMapping(t *testing.T) {
	for err, want := range map[error]string{
		errMalformedPayload:             "ValidationFailed",
		domain.ErrEmptyContent:          "ValidationFailed",
		domain.ErrContentTooLong:        "ValidationFailed",
		domain.ErrRecipientNotFound:     "RecipientNotFound",
		domain.ErrMessageNotFound:       "NotFound",
		domain.ErrNotReceiver:           "NotReceiver",
		domain.ErrCallerBusy:            "CallerBusy",
		domain.ErrCalleeUnreachable:     "CalleeUnreachable",
		domain.ErrInvalidCallTransition: "InvalidCallTransition",
		domain.ErrAuthRequired:          "AuthenticationRequired",
		errors.New("pg down"):           "PersistenceFailure",
	} {
		if got := errCode(err); got != want {
			t.Fatalf("errCode(%v) = %q, want %q", err, got, want)
		}
	}
}
