package gmail

import (
	"context"
	"time"
)

// Message is one mail relevant to transaction extraction: headers plus the
// decoded plain-text body.
type Message struct {
	ID      string
	Subject string
	Body    string
	Date    time.Time
}

// Mailbox is the inbound port for notification mail. The production
// implementation lives in the google subpackage.
type Mailbox interface {
	Search(ctx context.Context, query string, maxResults int64) ([]Message, error)
}
