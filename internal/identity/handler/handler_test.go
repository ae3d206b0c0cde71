package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	id "persona/pkg/domain"

	"persona/internal/audit"
	auditmemory "persona/internal/audit/store/memory"
	"persona/internal/identity/cache"
	"persona/internal/identity/models"
	"persona/internal/identity/propagation"
	"persona/internal/identity/propagation/adapters"
	"persona/internal/identity/registry"
	memorystore "persona/internal/identity/store/memory"
	"persona/internal/identity/switcher"
)

type HandlerSuite struct {
	suite.Suite
	router   *chi.Mux
	registry *registry.Registry
	switcher *switcher.Switcher
	root     *models.Identity
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	trail := audit.NewTrail(auditmemory.New())
	cacheManager := cache.NewManager(memorystore.New(), 24*time.Hour, 100)
	s.registry = registry.New(trail, registry.WithCache(cacheManager))

	root, err := s.registry.Bootstrap(context.Background(), "primary")
	s.Require().NoError(err)
	s.root = root

	propagator := propagation.New([]propagation.ModuleAdapter{
		adapters.NewConsent(),
		adapters.NewKeyManagement(),
	})
	s.switcher = switcher.New(s.registry, propagator, trail, switcher.WithCache(cacheManager))
	s.switcher.Activate(root.ID)

	h := New(s.registry, s.switcher, cacheManager, trail, slog.Default())
	s.router = chi.NewRouter()
	h.Routes(s.router)
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestCreateIdentity() {
	s.Run("creates under the root", func() {
		rec := s.do(http.MethodPost, "/identities", createIdentityRequest{
			ParentID: s.root.ID.String(),
			Name:     "work",
			Type:     "enterprise",
		})
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

		var created models.Identity
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &created))
		s.Equal("work", created.Name)
		s.Equal(models.TypeEnterprise, created.Type)
		s.Equal(1, created.Depth)
	})

	s.Run("bad parent id is a 400", func() {
		rec := s.do(http.MethodPost, "/identities", createIdentityRequest{
			ParentID: "not-a-uuid", Name: "x", Type: "dao",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown parent is a 404", func() {
		rec := s.do(http.MethodPost, "/identities", createIdentityRequest{
			ParentID: id.NewIdentityID().String(), Name: "x", Type: "dao",
		})
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("unknown type is a 400", func() {
		rec := s.do(http.MethodPost, "/identities", createIdentityRequest{
			ParentID: s.root.ID.String(), Name: "x", Type: "ghost",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown privacy level is a 400", func() {
		rec := s.do(http.MethodPost, "/identities", createIdentityRequest{
			ParentID: s.root.ID.String(), Name: "x", Type: "dao", Privacy: "banana",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("malformed body is a 400", func() {
		req := httptest.NewRequest(http.MethodPost, "/identities", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestSwitchIdentity() {
	created, err := s.registry.Create(context.Background(), s.root.ID, models.Metadata{Name: "work", Type: models.TypeDAO})
	s.Require().NoError(err)

	s.Run("switch commits", func() {
		rec := s.do(http.MethodPost, "/identities/switch", switchIdentityRequest{TargetID: created.ID.String()})
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		var result models.ContextSwitchResult
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &result))
		s.True(result.Success)
		s.Equal(created.ID, result.NewID)
		s.Equal(created.ID, s.switcher.Active())
	})

	s.Run("unknown target is a 404", func() {
		rec := s.do(http.MethodPost, "/identities/switch", switchIdentityRequest{TargetID: id.NewIdentityID().String()})
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestDeleteIdentity() {
	created, err := s.registry.Create(context.Background(), s.root.ID, models.Metadata{Name: "doomed", Type: models.TypeDAO})
	s.Require().NoError(err)

	s.Run("delete reports the cascade", func() {
		rec := s.do(http.MethodDelete, "/identities/"+created.ID.String(), nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp deleteIdentityResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(1, resp.Count)
	})

	s.Run("root delete is forbidden", func() {
		rec := s.do(http.MethodDelete, "/identities/"+s.root.ID.String(), nil)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *HandlerSuite) TestGetTree() {
	_, err := s.registry.Create(context.Background(), s.root.ID, models.Metadata{Name: "work", Type: models.TypeDAO})
	s.Require().NoError(err)

	rec := s.do(http.MethodGet, "/identities/tree/"+s.root.ID.String(), nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var tree models.IdentityTree
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &tree))
	s.Equal(2, tree.TotalNodes)
	s.Equal(1, tree.MaxDepth)
}

func (s *HandlerSuite) TestAuditHistory() {
	created, err := s.registry.Create(context.Background(), s.root.ID, models.Metadata{Name: "work", Type: models.TypeDAO})
	s.Require().NoError(err)

	rec := s.do(http.MethodGet, "/identities/"+created.ID.String()+"/audit", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var entries []audit.Entry
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &entries))
	s.Require().NotEmpty(entries)
	s.Equal(audit.ActionCreated, entries[0].Action)
}

func (s *HandlerSuite) TestSubmitKYC() {
	created, err := s.registry.Create(context.Background(), s.root.ID, models.Metadata{Name: "corp", Type: models.TypeEnterprise})
	s.Require().NoError(err)

	rec := s.do(http.MethodPost, "/identities/"+created.ID.String()+"/kyc", submitKYCRequest{Level: "enhanced", Approved: true})
	s.Require().Equal(http.StatusOK, rec.Code)

	var updated models.Identity
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &updated))
	s.True(updated.KYC.Submitted)
	s.True(updated.KYC.Approved)
}

func (s *HandlerSuite) TestCacheStats() {
	rec := s.do(http.MethodGet, "/cache/stats", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var stats cache.Stats
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &stats))
	s.Equal(1, stats.TotalEntries, "bootstrap snapshot cached")
}
