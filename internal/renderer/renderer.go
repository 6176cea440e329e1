// Package renderer mirrors reputation state into an external credential
// display. The core only ever pushes to it; failures are logged and never
// block a ledger transition.
package renderer

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Notifier receives push updates about an actor's reputation state.
type Notifier interface {
	OnReputationChanged(actor string, score int64, status string)
	OnStakeChanged(actor string, staked int64, asset string)
	OnCategoryScoreChanged(actor, category string, claimed, pending int64)
	OnMint(actor string)
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) OnReputationChanged(string, int64, string)       {}
func (Noop) OnStakeChanged(string, int64, string)            {}
func (Noop) OnCategoryScoreChanged(string, string, int64, int64) {}
func (Noop) OnMint(string)                                   {}

const defaultWebhookTimeout = 5 * time.Second

// Webhook posts each notification as JSON to a configured URL.
type Webhook struct {
	URL    string
	Client *http.Client
	Logger *log.Logger
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:    url,
		Client: &http.Client{Timeout: defaultWebhookTimeout},
	}
}

func (w *Webhook) post(kind string, payload map[string]any) {
	payload["kind"] = kind
	body, err := json.Marshal(payload)
	if err != nil {
		w.logf("renderer: marshal %s: %v", kind, err)
		return
	}
	resp, err := w.Client.Post(w.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		w.logf("renderer: post %s: %v", kind, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logf("renderer: post %s: status %d", kind, resp.StatusCode)
	}
}

func (w *Webhook) logf(format string, args ...any) {
	if w.Logger != nil {
		w.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (w *Webhook) OnReputationChanged(actor string, score int64, status string) {
	w.post("reputation.changed", map[string]any{"actor": actor, "score": score, "status": status})
}

func (w *Webhook) OnStakeChanged(actor string, staked int64, asset string) {
	w.post("stake.changed", map[string]any{"actor": actor, "staked": staked, "asset": asset})
}

func (w *Webhook) OnCategoryScoreChanged(actor, category string, claimed, pending int64) {
	w.post("category_score.changed", map[string]any{"actor": actor, "category": category, "claimed": claimed, "pending": pending})
}

func (w *Webhook) OnMint(actor string) {
	w.post("mint", map[string]any{"actor": actor})
}
