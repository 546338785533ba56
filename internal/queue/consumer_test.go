package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/herdbook/internal/mail"
)

type fakeSender struct {
	sent []mail.Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg mail.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("send called without a deadline")
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

var testCfg = ConsumerConfig{FrontendURL: "http://front.test", SendTimeout: time.Second}

func TestHandleDelivery_Sends(t *testing.T) {
	s := &fakeSender{}
	body := []byte(`{"email":"a@b.c","name":"Ann","token":"tkn","requested_at":"2024-01-01T00:00:00Z"}`)
	if err := HandleDelivery(context.Background(), body, testCfg, s); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0].To != "a@b.c" {
		t.Fatalf("sent = %+v", s.sent)
	}
	if !strings.Contains(s.sent[0].HTML, "http://front.test/verify-email/tkn") {
		t.Fatal("verification link missing")
	}
}

func TestHandleDelivery_Malformed(t *testing.T) {
	for _, body := range []string{`not json`, `{"email":"a@b.c"}`, `{"token":"x"}`} {
		err := HandleDelivery(context.Background(), []byte(body), testCfg, &fakeSender{})
		if !IsMalformed(err) {
			t.Errorf("%s: err = %v, want malformed", body, err)
		}
	}
}

func TestHandleDelivery_SendFailure(t *testing.T) {
	boom := errors.New("relay down")
	err := HandleDelivery(context.Background(), []byte(`{"email":"a@b.c","token":"t"}`), testCfg, &fakeSender{err: boom})
	if !errors.Is(err, boom) || IsMalformed(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, time.Hour) {
		t.Fatal("sleep should return false on a cancelled context")
	}
}
