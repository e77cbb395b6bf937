package whatsapp

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"WaDesk/internal/lib/sl"
	"WaDesk/internal/service/session"
)

const graphAPIURL = "https://graph.facebook.com/v21.0"

// Gateway bridges WhatsApp Cloud API webhooks to session transports. Each
// line maps to one phone number ID; incoming webhook payloads are routed to
// the owning line's event stream.
type Gateway struct {
	log         *slog.Logger
	accessToken string
	verifyToken string
	appSecret   string

	mu    sync.Mutex
	lines map[string]*Transport
}

// WebhookPayload is the incoming webhook body from WhatsApp.
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Metadata         struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text,omitempty"`
				} `json:"messages"`
			} `json:"value"`
			Field string `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

// SendMessageRequest is the request body for sending a text message.
type SendMessageRequest struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

func NewGateway(accessToken, verifyToken, appSecret string, log *slog.Logger) *Gateway {
	return &Gateway{
		log:         log.With(sl.Module("whatsapp")),
		accessToken: accessToken,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		lines:       make(map[string]*Transport),
	}
}

// New builds the transport for a line. The line ID doubles as the Cloud API
// phone number ID. Cloud API lines need no pairing, so the transport reports
// authenticated and ready right after creation.
func (g *Gateway) New(lineID string, events func(session.TransportEvent)) (session.Transport, error) {
	if g.accessToken == "" {
		return nil, fmt.Errorf("whatsapp access token not configured")
	}

	t := &Transport{
		gateway:       g,
		phoneNumberID: lineID,
		events:        events,
	}

	g.mu.Lock()
	g.lines[lineID] = t
	g.mu.Unlock()

	go func() {
		events(session.TransportEvent{Kind: session.EventAuthenticated})
		events(session.TransportEvent{Kind: session.EventReady})
	}()

	return t, nil
}

// HandleWebhookVerification handles the GET request for webhook verification.
func (g *Gateway) HandleWebhookVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == g.verifyToken {
		g.log.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	g.log.Warn("webhook verification failed",
		slog.String("mode", mode),
		slog.Bool("token_match", token == g.verifyToken),
	)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleWebhook handles incoming webhook POST requests.
func (g *Gateway) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.log.Error("failed to read request body", sl.Err(err))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if g.appSecret != "" {
		signature := r.Header.Get("X-Hub-Signature-256")
		if !g.verifySignature(body, signature) {
			g.log.Warn("invalid webhook signature")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		g.log.Error("failed to parse webhook payload", sl.Err(err))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Always acknowledge with 200 so Meta does not retry.
	w.WriteHeader(http.StatusOK)

	go g.routePayload(payload)
}

// routePayload dispatches webhook messages to the transport owning the
// phone number ID.
func (g *Gateway) routePayload(payload WebhookPayload) {
	if payload.Object != "whatsapp_business_account" {
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}

			g.mu.Lock()
			t := g.lines[change.Value.Metadata.PhoneNumberID]
			g.mu.Unlock()
			if t == nil {
				g.log.Warn("webhook for unknown line",
					slog.String("phone_number_id", change.Value.Metadata.PhoneNumberID),
				)
				continue
			}

			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			for _, message := range change.Value.Messages {
				if message.Type != "text" || message.Text == nil || message.Text.Body == "" {
					continue
				}

				t.events(session.TransportEvent{
					Kind:        session.EventMessageReceived,
					From:        message.From,
					ContactName: names[message.From],
					Text:        message.Text.Body,
				})
			}
		}
	}
}

func (g *Gateway) sendMessage(phoneNumberID, recipientPhone, text string) error {
	reqBody := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipientPhone,
		Type:             "text",
	}
	reqBody.Text.PreviewURL = false
	reqBody.Text.Body = text

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", graphAPIURL, phoneNumberID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

func (g *Gateway) unregister(phoneNumberID string) {
	g.mu.Lock()
	delete(g.lines, phoneNumberID)
	g.mu.Unlock()
}

// verifySignature verifies the X-Hub-Signature-256 header.
func (g *Gateway) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	// Signature format: "sha256=<hex_signature>"
	if len(signature) < 8 || signature[:7] != "sha256=" {
		return false
	}

	expectedSig := signature[7:]
	mac := hmac.New(sha256.New, []byte(g.appSecret))
	mac.Write(body)
	actualSig := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expectedSig), []byte(actualSig))
}

// Transport is one line's view of the gateway.
type Transport struct {
	gateway       *Gateway
	phoneNumberID string
	events        func(session.TransportEvent)
}

func (t *Transport) SendMessage(destination, text string) error {
	return t.gateway.sendMessage(t.phoneNumberID, destination, text)
}

// GetState reports the connection state. Cloud API lines have no socket of
// their own, so a registered line is always connected.
func (t *Transport) GetState() string {
	return "CONNECTED"
}

func (t *Transport) Logout() error {
	t.gateway.unregister(t.phoneNumberID)
	t.events(session.TransportEvent{Kind: session.EventDisconnected, Reason: "logout"})
	return nil
}

func (t *Transport) Destroy() error {
	t.gateway.unregister(t.phoneNumberID)
	return nil
}
