package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/bot"
	"github.com/vivars7/skillrelay/internal/ctxkeys"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
)

// DefaultMaxBodySize bounds inbound activity payloads when none is configured.
const DefaultMaxBodySize int64 = 1 << 20

var errMethodNotAllowed = &relayerrors.RelayError{Code: http.StatusMethodNotAllowed, Message: "Method not allowed", Hint: "Activities are delivered with POST"}

// CloudAdapter is the HTTP ingress for channel traffic. Authentication
// happens upstream: the security middleware leaves a ClaimsIdentity in the
// request context.
type CloudAdapter struct {
	*CloudAdapterBase
	maxBodySize int64
}

// NewCloudAdapter wraps base. maxBodySize <= 0 selects DefaultMaxBodySize.
func NewCloudAdapter(base *CloudAdapterBase, maxBodySize int64) *CloudAdapter {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &CloudAdapter{CloudAdapterBase: base, maxBodySize: maxBodySize}
}

// Process decodes one activity from r, runs a turn for b and writes the
// synchronous result: the invoke or expectReplies body when there is one,
// otherwise an empty 200.
func (a *CloudAdapter) Process(w http.ResponseWriter, r *http.Request, b bot.Bot) {
	if r.Method != http.MethodPost {
		relayerrors.WriteHTTPError(w, errMethodNotAllowed)
		return
	}

	act, err := a.decode(w, r)
	if err != nil {
		relayerrors.WriteError(w, err)
		return
	}

	claims, _ := ctxkeys.ClaimsIdentityFrom(r.Context())
	if entry, ok := ctxkeys.AuditEntryFrom(r.Context()); ok {
		entry.ChannelID = act.ChannelID
		entry.ActivityType = string(act.Type)
		entry.ConversationID = act.Conversation.ID
	}

	resp, err := a.ProcessActivity(r.Context(), claims, act, b.OnTurn)
	if err != nil {
		a.logger.Error("turn failed", "error", err, "channel_id", act.ChannelID)
		relayerrors.WriteError(w, err)
		return
	}
	WriteInvokeResponse(w, resp)
}

// Handler returns an http.Handler running b for every POSTed activity.
func (a *CloudAdapter) Handler(b bot.Bot) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.Process(w, r, b)
	})
}

func (a *CloudAdapter) decode(w http.ResponseWriter, r *http.Request) (*activity.Activity, error) {
	body := http.MaxBytesReader(w, r.Body, a.maxBodySize)
	defer body.Close()

	var act activity.Activity
	if err := json.NewDecoder(body).Decode(&act); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, relayerrors.ErrBodyTooLarge
		}
		return nil, fmt.Errorf("%w: %v", relayerrors.ErrInvalidActivity, err)
	}
	if err := ValidateInbound(&act); err != nil {
		return nil, err
	}
	return &act, nil
}

// ValidateInbound checks the fields every inbound activity must carry.
func ValidateInbound(act *activity.Activity) error {
	switch {
	case act.Type == "":
		return fmt.Errorf("%w: type is required", relayerrors.ErrInvalidActivity)
	case act.Conversation == nil || act.Conversation.ID == "":
		return fmt.Errorf("%w: conversation.id is required", relayerrors.ErrInvalidActivity)
	case act.ServiceURL == "":
		return fmt.Errorf("%w: serviceUrl is required", relayerrors.ErrInvalidActivity)
	}
	return nil
}

// WriteInvokeResponse writes resp as the HTTP response. A nil resp is an
// empty 200.
func WriteInvokeResponse(w http.ResponseWriter, resp *activity.InvokeResponse) {
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if resp.Body == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp.Body)
}
