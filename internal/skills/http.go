package skills

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/ctxkeys"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
)

// DefaultMaxBodySize bounds activity bodies posted by skills.
const DefaultMaxBodySize = 1 << 20

// Routes exposes a Handler as the channel-service REST surface skills call
// back on. Mount it under the skills callback path with http.StripPrefix.
type Routes struct {
	h           *Handler
	maxBodySize int64
	mux         *http.ServeMux
}

// NewRoutes builds the route table. maxBodySize <= 0 selects DefaultMaxBodySize.
func NewRoutes(h *Handler, maxBodySize int64) *Routes {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	rt := &Routes{h: h, maxBodySize: maxBodySize, mux: http.NewServeMux()}

	rt.mux.HandleFunc("POST /v3/conversations/{conversationID}/activities", rt.sendToConversation)
	rt.mux.HandleFunc("POST /v3/conversations/{conversationID}/activities/{activityID}", rt.replyToActivity)
	rt.mux.HandleFunc("PUT /v3/conversations/{conversationID}/activities/{activityID}", rt.updateActivity)
	rt.mux.HandleFunc("DELETE /v3/conversations/{conversationID}/activities/{activityID}", rt.deleteActivity)
	rt.mux.HandleFunc("GET /v3/conversations/{conversationID}/members", rt.getMembers)
	rt.mux.HandleFunc("GET /v3/conversations/{conversationID}/members/{memberID}", rt.getMember)

	for _, pattern := range []string{
		"POST /v3/conversations",
		"GET /v3/conversations",
		"GET /v3/conversations/{conversationID}/activities/{activityID}/members",
		"GET /v3/conversations/{conversationID}/pagedmembers",
		"DELETE /v3/conversations/{conversationID}/members/{memberID}",
		"POST /v3/conversations/{conversationID}/activities/history",
		"POST /v3/conversations/{conversationID}/attachments",
	} {
		rt.mux.HandleFunc(pattern, rt.unsupported(pattern))
	}
	return rt
}

// ServeHTTP implements http.Handler.
func (rt *Routes) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

func (rt *Routes) sendToConversation(w http.ResponseWriter, r *http.Request) {
	claims, a, ok := rt.prepare(w, r)
	if !ok {
		return
	}
	resp, err := rt.h.OnSendToConversation(r.Context(), claims, r.PathValue("conversationID"), a)
	writeResult(w, resp, err)
}

func (rt *Routes) replyToActivity(w http.ResponseWriter, r *http.Request) {
	claims, a, ok := rt.prepare(w, r)
	if !ok {
		return
	}
	resp, err := rt.h.OnReplyToActivity(r.Context(), claims, r.PathValue("conversationID"), r.PathValue("activityID"), a)
	writeResult(w, resp, err)
}

func (rt *Routes) updateActivity(w http.ResponseWriter, r *http.Request) {
	claims, a, ok := rt.prepare(w, r)
	if !ok {
		return
	}
	resp, err := rt.h.OnUpdateActivity(r.Context(), claims, r.PathValue("conversationID"), r.PathValue("activityID"), a)
	writeResult(w, resp, err)
}

func (rt *Routes) deleteActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}
	err := rt.h.OnDeleteActivity(r.Context(), claims, r.PathValue("conversationID"), r.PathValue("activityID"))
	writeResult[any](w, nil, err)
}

func (rt *Routes) getMembers(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}
	members, err := rt.h.OnGetConversationMembers(r.Context(), claims, r.PathValue("conversationID"))
	writeResult(w, members, err)
}

func (rt *Routes) getMember(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}
	member, err := rt.h.OnGetConversationMember(r.Context(), claims, r.PathValue("conversationID"), r.PathValue("memberID"))
	writeResult(w, member, err)
}

func (rt *Routes) unsupported(pattern string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		relayerrors.WriteError(w, Unsupported(pattern))
	}
}

// prepare extracts the caller identity and decodes the activity body.
func (rt *Routes) prepare(w http.ResponseWriter, r *http.Request) (*auth.ClaimsIdentity, *activity.Activity, bool) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return nil, nil, false
	}

	body := http.MaxBytesReader(w, r.Body, rt.maxBodySize)
	defer body.Close()

	var a activity.Activity
	if err := json.NewDecoder(body).Decode(&a); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			relayerrors.WriteHTTPError(w, relayerrors.ErrBodyTooLarge)
			return nil, nil, false
		}
		relayerrors.WriteError(w, fmt.Errorf("%w: %v", relayerrors.ErrInvalidActivity, err))
		return nil, nil, false
	}

	if entry, ok := ctxkeys.AuditEntryFrom(r.Context()); ok {
		entry.ActivityType = string(a.Type)
		entry.ConversationID = r.PathValue("conversationID")
		entry.CallerID = activity.CallerIDBotToBotPrefix + claims.AppID()
	}
	return claims, &a, true
}

func claimsFrom(w http.ResponseWriter, r *http.Request) (*auth.ClaimsIdentity, bool) {
	claims, ok := ctxkeys.ClaimsIdentityFrom(r.Context())
	if !ok || claims == nil {
		relayerrors.WriteHTTPError(w, relayerrors.ErrAuthRequired)
		return nil, false
	}
	return claims, true
}

func writeResult[T any](w http.ResponseWriter, v T, err error) {
	if err != nil {
		relayerrors.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
