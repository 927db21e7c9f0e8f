package server

import "context"

// HubNotifier delivers notifications to websocket subscribers.
type HubNotifier struct {
	Hub *Hub
}

type notificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (n HubNotifier) Notify(ctx context.Context, title, body string) error {
	n.Hub.Broadcast("notification", notificationPayload{Title: title, Body: body})
	return nil
}
