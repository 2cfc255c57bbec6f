package handler_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/gin-gonic/gin"

	"github.com/vins-anity/trailpack/internal/http/handler"
	"github.com/vins-anity/trailpack/internal/model"
	"github.com/vins-anity/trailpack/internal/service"
)

var _ = Describe("WorkspaceHandler", func() {
	var (
		workspaces *mockWorkspaceService
		router     *gin.Engine
	)

	BeforeEach(func() {
		workspaces = &mockWorkspaceService{}
		router = gin.New()
		h := handler.NewWorkspaceHandler(workspaces)
		router.PUT("/api/v1/workspaces/:workspace_id/secrets/:provider", h.SetSecret)
	})

	put := func(path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, path, bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("stores a provider secret with 200", func() {
		workspaces.setSecretFn = func(ctx context.Context, workspaceID int64, provider model.Provider, secret string) error {
			Expect(workspaceID).To(Equal(int64(7)))
			Expect(provider).To(Equal(model.ProviderGitHub))
			Expect(secret).To(Equal("hush-hush-2"))
			return nil
		}

		rec := put("/api/v1/workspaces/7/secrets/github", []byte(`{"secret":"hush-hush-2"}`))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"status":"stored"`))
	})

	It("maps an unknown provider to 400", func() {
		workspaces.setSecretFn = func(ctx context.Context, workspaceID int64, provider model.Provider, secret string) error {
			return service.ErrUnknownProvider
		}
		rec := put("/api/v1/workspaces/7/secrets/gitlab", []byte(`{"secret":"s3cret"}`))
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("maps a blank secret to 400", func() {
		workspaces.setSecretFn = func(ctx context.Context, workspaceID int64, provider model.Provider, secret string) error {
			return service.ErrEmptySecret
		}
		rec := put("/api/v1/workspaces/7/secrets/slack", []byte(`{"secret":""}`))
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("maps an unknown workspace to 404", func() {
		workspaces.setSecretFn = func(ctx context.Context, workspaceID int64, provider model.Provider, secret string) error {
			return service.ErrWorkspaceNotFound
		}
		rec := put("/api/v1/workspaces/404/secrets/jira", []byte(`{"secret":"s3cret"}`))
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("rejects a non-numeric workspace id", func() {
		rec := put("/api/v1/workspaces/nope/secrets/github", []byte(`{"secret":"s3cret"}`))
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})
