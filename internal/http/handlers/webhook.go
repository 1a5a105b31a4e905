package handlers

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/interpreter"
)

const apologyReply = "Sorry, there was an error processing your message. Please try again."

// twiml is the Twilio messaging response body.
type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// WebhookHandler receives inbound SMS callbacks from the provider.
type WebhookHandler struct {
	interp *interpreter.Interpreter
	logger *zap.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(interp *interpreter.Interpreter, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{interp: interp, logger: logger}
}

// HandleSMS handles POST /webhook/sms. Twilio posts form-encoded From and
// Body parameters and expects a TwiML reply.
func (h *WebhookHandler) HandleSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if from == "" || body == "" {
		http.Error(w, "missing required parameters", http.StatusBadRequest)
		return
	}

	reply, err := h.interp.HandleMessage(r.Context(), from, body)
	if err != nil {
		// Storage faults never leak detail to the sender.
		h.logger.Error("message handling failed",
			zap.String("from", from),
			zap.Error(err))
		reply = apologyReply
	}

	writeTwiML(w, reply)
}

// HandleHealth handles GET /webhook/health.
func (h *WebhookHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleRoot handles GET /: service identification.
func (h *WebhookHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"name":        "Daily Grain",
		"description": "SMS-based habit tracking platform",
		"version":     "1.1.0",
	})
}

func writeTwiML(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(twiml{Message: message})
}
