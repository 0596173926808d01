package services

import (
	"fmt"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/argus-sec/argus/internal/logger"
)

// NotificationService delivers operator alerts over shoutrrr URLs
// (discord, slack, smtp, ...). Delivery is strictly best effort: failures
// are logged and dropped so the pipeline never waits on a webhook.
type NotificationService struct {
	urls    []string
	timeout time.Duration
}

func NewNotificationService(urls []string) *NotificationService {
	return &NotificationService{urls: urls, timeout: 10 * time.Second}
}

// NotifyAsync sends the alert from a goroutine and returns immediately.
func (s *NotificationService) NotifyAsync(title, message string) {
	if len(s.urls) == 0 {
		return
	}
	go s.send(title, message)
}

func (s *NotificationService) send(title, message string) {
	body := fmt.Sprintf("%s\n%s", title, message)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, url := range s.urls {
			if err := shoutrrr.Send(url, body); err != nil {
				logger.Alert().WithError(err).Warn("operator notification failed")
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(s.timeout):
		logger.Alert().Warn("operator notification timed out")
	}
}
