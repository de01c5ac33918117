package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdesk/internal/complaint/catalog"
	"civicdesk/internal/complaint/models"
	"civicdesk/internal/complaint/moderation"
	"civicdesk/internal/complaint/routing"
	"civicdesk/internal/complaint/service"
	"civicdesk/internal/complaint/store/auditlog"
	complaintstore "civicdesk/internal/complaint/store/complaint"
	"civicdesk/internal/platform/middleware"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/testutil"
)

func newRouter(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	snap, err := catalog.NewYAMLSource("").Load(context.Background())
	require.NoError(t, err)
	cache := catalog.NewStaticCache(snap)
	svc := service.New(
		complaintstore.NewInMemory(),
		auditlog.NewInMemory(),
		service.NewMemoryTx(0),
		cache,
		moderation.New(nil, 0),
		routing.New(cache),
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	New(svc, logger, opts...).Register(r)
	return r
}

func submit(t *testing.T, router http.Handler, actor id.UserID, body any) *service.SubmitResult {
	t.Helper()
	req := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/complaints", body), actor)
	rr := testutil.DoRequest(router, req)
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, rr.Code, string(rr.Body.Bytes()))
	return testutil.UnmarshalResponse[service.SubmitResult](t, rr)
}

func TestSubmitAndGet(t *testing.T) {
	router := newRouter(t)
	actor := id.UserID(uuid.New())

	testutil.Given(t, "a clean pothole complaint", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/complaints", map[string]string{
			"type_id":     "pothole",
			"description": "it's fine",
		}), actor)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		assert.NotEmpty(t, rr.Header().Get(middleware.HeaderRequestID))
		res := testutil.UnmarshalResponse[service.SubmitResult](t, rr)
		assert.False(t, res.Merged)

		testutil.Then(t, "it can be fetched in submitted", func(t *testing.T) {
			get := testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/complaints/"+res.ComplaintID.String()), actor)
			rr := testutil.DoRequest(router, get)
			testutil.AssertStatus(t, rr, http.StatusOK)
			c := testutil.UnmarshalResponse[map[string]any](t, rr)
			assert.Equal(t, "submitted", (*c)["status"])
			assert.Equal(t, "public-works", (*c)["assigned_unit"])
			assert.Equal(t, false, (*c)["has_profanity"])
		})
	})
}

func TestSubmitDuplicateReturnsOK(t *testing.T) {
	router := newRouter(t)
	actor := id.UserID(uuid.New())

	first := submit(t, router, actor, map[string]string{"type_id": "water-leak", "description": "water leak near school"})

	req := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/complaints", map[string]string{
		"type_id":     "water-leak",
		"description": "Water Leak Near School!!",
	}), actor)
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	second := testutil.UnmarshalResponse[service.SubmitResult](t, rr)
	assert.True(t, second.Merged)
	assert.Equal(t, first.ComplaintID, second.ComplaintID)
}

func TestSubmitErrors(t *testing.T) {
	router := newRouter(t)
	actor := id.UserID(uuid.New())

	cases := []struct {
		name   string
		actor  bool
		body   any
		status int
		code   string
	}{
		{"missing actor header", false, map[string]string{"type_id": "pothole", "description": "x"}, http.StatusBadRequest, "malformed"},
		{"unknown field", true, map[string]string{"type_id": "pothole", "description": "x", "priority": "high"}, http.StatusBadRequest, "bad_request"},
		{"blank description", true, map[string]string{"type_id": "pothole", "description": "  "}, http.StatusBadRequest, "malformed"},
		{"unknown type", true, map[string]string{"type_id": "volcano", "description": "lava"}, http.StatusUnprocessableEntity, "unknown_type"},
		{"profanity", true, map[string]string{"type_id": "noise", "description": "fuck fuck fuck"}, http.StatusUnprocessableEntity, "profanity_rejected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/complaints", tc.body)
			if tc.actor {
				req = testutil.WithActor(req, actor)
			}
			rr := testutil.DoRequest(router, req)
			testutil.AssertStatusAndError(t, rr, tc.status, tc.code)
		})
	}
}

func TestTransitionEndpoints(t *testing.T) {
	router := newRouter(t)
	citizen := id.UserID(uuid.New())
	operator := id.UserID(uuid.New())
	res := submit(t, router, citizen, map[string]string{"type_id": "pothole", "description": "deep hole"})
	path := "/complaints/" + res.ComplaintID.String()

	transition := func(t *testing.T, body any) *httptest.ResponseRecorder {
		req := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, path+"/transitions", body), operator)
		return testutil.DoRequest(router, req)
	}

	t.Run("illegal jump is a conflict", func(t *testing.T) {
		rr := transition(t, map[string]string{"to": "resolved"})
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "invalid_transition")
	})

	t.Run("unknown status is malformed", func(t *testing.T) {
		rr := transition(t, map[string]string{"to": "teleported"})
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "malformed")
	})

	t.Run("validated then assigned with reassignment", func(t *testing.T) {
		rr := transition(t, map[string]string{"to": "validated", "note": "confirmed on site"})
		testutil.AssertStatus(t, rr, http.StatusOK)

		rr = transition(t, map[string]string{"to": "assigned", "unit_id": "roads-dept"})
		testutil.AssertStatus(t, rr, http.StatusOK)
		c := testutil.UnmarshalResponse[models.Complaint](t, rr)
		assert.Equal(t, models.StatusAssigned, c.Status)
		assert.Equal(t, "roads-dept", c.AssignedUnit)
	})

	t.Run("logs are listed oldest first", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewRequest(t, http.MethodGet, path+"/logs"), operator)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		body := testutil.UnmarshalResponse[logsResponse](t, rr)
		require.Len(t, body.Entries, 3)
		assert.Equal(t, models.LogKindCreated, body.Entries[0].Kind)
		assert.Equal(t, "confirmed on site", body.Entries[1].Note)
		assert.Equal(t, models.StatusAssigned, body.Entries[2].To)
		assert.True(t, models.ValidStatusPath(body.Entries))
	})
}

func TestPathErrors(t *testing.T) {
	router := newRouter(t)
	actor := id.UserID(uuid.New())

	t.Run("malformed id", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/complaints/not-a-uuid"), actor))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})

	t.Run("unknown id", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/complaints/"+id.NewComplaintID().String()+"/logs"), actor))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}

func TestSubmitMiddlewareOnlyGuardsSubmit(t *testing.T) {
	gate := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	router := newRouter(t, WithSubmitMiddleware(gate))
	actor := id.UserID(uuid.New())

	rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/complaints",
		map[string]string{"type_id": "pothole", "description": "deep hole"}), actor))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = testutil.DoRequest(router, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/complaints/"+id.NewComplaintID().String()), actor))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/complaints",
		map[string]string{"type_id": "pothole", "description": "deep hole"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code, "actor check runs before the gate")
}
