package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abd3rr/workflow-api/internal/bus"
	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/sirupsen/logrus"
)

// Email is the outbox payload published by send_email.
type Email struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Subject  string `json:"subject"`
	Content  string `json:"content"`
}

// SMS is the outbox payload published by send_sms.
type SMS struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

func stringParams(names ...string) []models.Parameter {
	params := make([]models.Parameter, len(names))
	for i, n := range names {
		params[i] = models.Parameter{Name: n, Type: "string"}
	}
	return params
}

// Builtins returns the stock actions. Email and SMS are handed to the
// outbox on pub under <prefix>.outbox.email and <prefix>.outbox.sms.
func Builtins(pub bus.Publisher, prefix string, log logrus.FieldLogger) []Action {
	return []Action{
		Define("send_email", stringParams("sender", "receiver", "subject", "content"),
			func(ctx context.Context, args Args) error {
				v, err := args.Strings()
				if err != nil {
					return err
				}
				if v[1] == "" {
					return fmt.Errorf("receiver is required")
				}
				return publishJSON(ctx, pub, prefix+".outbox.email", Email{Sender: v[0], Receiver: v[1], Subject: v[2], Content: v[3]})
			}),
		Define("send_sms", stringParams("from", "to", "text"),
			func(ctx context.Context, args Args) error {
				v, err := args.Strings()
				if err != nil {
					return err
				}
				if v[1] == "" {
					return fmt.Errorf("recipient is required")
				}
				return publishJSON(ctx, pub, prefix+".outbox.sms", SMS{From: v[0], To: v[1], Text: v[2]})
			}),
		Define("log_message", stringParams("level", "message"),
			func(_ context.Context, args Args) error {
				v, err := args.Strings()
				if err != nil {
					return err
				}
				level, err := logrus.ParseLevel(v[0])
				if err != nil {
					return err
				}
				if level < logrus.ErrorLevel {
					return fmt.Errorf("level %s is not allowed", level)
				}
				log.WithField("action", "log_message").Log(level, v[1])
				return nil
			}),
	}
}

func publishJSON(ctx context.Context, pub bus.Publisher, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	return pub.Publish(ctx, subject, data)
}
