package fallback

import (
	"encoding/json"
	"fmt"
	"io"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Subscription is a browser's push subscription, supplied by whoever
// constructs the WebPusher; nothing in this repository stores or collects
// subscriptions (it is the natural headless-daemon counterpart to
// beeep's desktop notification).
type Subscription struct {
	Endpoint string `json:"endpoint"`
	P256DH   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// WebPusher sends VAPID-signed web-push notifications to one subscriber,
// grounded on the teacher's internal/web/push_service.go vapidPushSender.
type WebPusher struct {
	Subject    string
	PublicKey  string
	PrivateKey string
	Sub        Subscription
}

func (w WebPusher) Send(title, body string) error {
	payload, err := json.Marshal(struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}{title, body})
	if err != nil {
		return err
	}

	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: w.Sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: w.Sub.P256DH,
			Auth:   w.Sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      w.Subject,
		VAPIDPublicKey:  w.PublicKey,
		VAPIDPrivateKey: w.PrivateKey,
		TTL:             3600,
	})
	if resp != nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	if err != nil {
		return err
	}
	if resp != nil && resp.StatusCode >= 400 {
		return fmt.Errorf("push gateway status %d", resp.StatusCode)
	}
	return nil
}
