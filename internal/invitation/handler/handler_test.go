package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	connectionmodels "homeledger/internal/connection/models"
	invitationmodels "homeledger/internal/invitation/models"
	"homeledger/internal/invitation/service"
	propertymodels "homeledger/internal/property/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/requestcontext"
)

type stubService struct {
	created   service.CreateRequest
	accepted  service.AcceptRequest
	inv       *invitationmodels.Invitation
	acceptErr error
	closeErr  error
}

func (s *stubService) Create(_ context.Context, _ requestcontext.Identity, req service.CreateRequest) (*service.Result, error) {
	s.created = req
	return &service.Result{Invitation: s.inv}, nil
}

func (s *stubService) Get(_ context.Context, actor requestcontext.Identity, _ id.InvitationID) (*invitationmodels.Invitation, error) {
	if actor.UserID != s.inv.InvitedBy {
		return nil, dErrors.New(dErrors.CodeNotFound, "invitation not found")
	}
	return s.inv, nil
}

func (s *stubService) Accept(_ context.Context, actor requestcontext.Identity, _ id.InvitationID, req service.AcceptRequest) (*service.AcceptResult, error) {
	s.accepted = req
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	home := &propertymodels.Home{ID: id.NewHomeID()}
	return &service.AcceptResult{
		Invitation: s.inv,
		Home:       home,
		Connection: &connectionmodels.Connection{ID: id.NewConnectionID(), HomeID: home.ID, HomeownerID: actor.UserID},
	}, nil
}

func (s *stubService) Decline(context.Context, requestcontext.Identity, id.InvitationID) (*service.Result, error) {
	return s.close()
}

func (s *stubService) Cancel(context.Context, requestcontext.Identity, id.InvitationID) (*service.Result, error) {
	return s.close()
}

func (s *stubService) close() (*service.Result, error) {
	if s.closeErr != nil {
		return nil, s.closeErr
	}
	return &service.Result{Invitation: s.inv}, nil
}

func setup(t *testing.T) (*stubService, http.Handler, requestcontext.Identity, time.Time) {
	t.Helper()
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	inviter := requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleContractor, Email: "ace@example.com"}
	inv, err := invitationmodels.New(id.NewInvitationID(), "olive@example.com", inviter.UserID, inviter.Role, time.Hour, now)
	require.NoError(t, err)

	stub := &stubService{inv: inv}
	r := chi.NewRouter()
	New(stub, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return stub, r, inviter, now
}

func send(r http.Handler, ident requestcontext.Identity, now time.Time, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := requestcontext.WithTime(req.Context(), now)
	if !ident.UserID.IsNil() {
		ctx = requestcontext.WithIdentity(ctx, ident)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestHandleCreate(t *testing.T) {
	stub, r, inviter, now := setup(t)

	rec := send(r, inviter, now, http.MethodPost, "/invitations",
		`{"email":" olive@example.com ","address":{"street":"1 Main St","city":"Springfield"},"message":"  Hi  "}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, "olive@example.com", stub.created.Email)
	assert.Equal(t, "Hi", stub.created.Message)
	require.NotNil(t, stub.created.Address)
	assert.Nil(t, stub.created.HomeID)

	var body InvitationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "PENDING", body.Status)
	assert.Equal(t, "HOMEOWNER", body.InvitedRole)

	t.Run("invalid body", func(t *testing.T) {
		rec := send(r, inviter, now, http.MethodPost, "/invitations", `{"email":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = send(r, inviter, now, http.MethodPost, "/invitations", `{"email":"a@b.co","home_id":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = send(r, inviter, now, http.MethodPost, "/invitations", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := send(r, requestcontext.Identity{}, now, http.MethodPost, "/invitations", `{"email":"a@b.co"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandleGetReportsLazyExpiry(t *testing.T) {
	stub, r, inviter, now := setup(t)
	path := "/invitations/" + stub.inv.ID.String()

	rec := send(r, inviter, now.Add(2*time.Hour), http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body InvitationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "EXPIRED", body.Status)

	stranger := requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleHomeowner}
	rec = send(r, stranger, now, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(r, inviter, now, http.MethodGet, "/invitations/not-an-id", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAccept(t *testing.T) {
	stub, r, _, now := setup(t)
	invitee := requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleHomeowner, Email: "olive@example.com"}
	path := "/invitations/" + stub.inv.ID.String() + "/accept"

	rec := send(r, invitee, now, http.MethodPost, path, `{"address":{"street":"1 Main St","city":"Springfield"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, stub.accepted.Address)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.NotEmpty(t, body["connection_id"])
	assert.NotEmpty(t, body["home_id"])

	t.Run("empty body accepts without confirmation", func(t *testing.T) {
		rec := send(r, invitee, now, http.MethodPost, path, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, stub.accepted.Address)
	})

	t.Run("partial address is rejected", func(t *testing.T) {
		rec := send(r, invitee, now, http.MethodPost, path, `{"address":{"city":"Springfield"}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"expired", dErrors.New(dErrors.CodeExpired, "invitation has expired"), http.StatusGone},
		{"email mismatch", dErrors.New(dErrors.CodeEmailMismatch, "wrong email"), http.StatusForbidden},
		{"home claimed", dErrors.New(dErrors.CodeHomeAlreadyClaimed, "claimed"), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub.acceptErr = tt.err
			rec := send(r, invitee, now, http.MethodPost, path, "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandleDeclineAndCancel(t *testing.T) {
	stub, r, inviter, now := setup(t)
	base := "/invitations/" + stub.inv.ID.String()

	stub.inv.ApplyCancel(inviter.UserID, now)
	rec := send(r, inviter, now, http.MethodPost, base+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body InvitationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "CANCELLED", body.Status)

	stub.closeErr = dErrors.New(dErrors.CodeInvalidStateTransition, "invitation is CANCELLED")
	rec = send(r, inviter, now, http.MethodPost, base+"/decline", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
