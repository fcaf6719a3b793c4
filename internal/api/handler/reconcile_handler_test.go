package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"follow-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	err error
	ran []string
}

func (s *stubRunner) Steps() []string {
	return []string{service.StepPendingIncrease, service.StepCancelledDecrease, service.StepFailedCleanup}
}

func (s *stubRunner) RunStep(_ context.Context, step string) (*service.StepReport, error) {
	s.ran = append(s.ran, step)
	if s.err != nil {
		return nil, s.err
	}
	return &service.StepReport{Step: step, Status: service.StepStatusFinished, Total: 2, Succeeded: 2}, nil
}

func newReconcileRouter(runner StepRunner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewReconcileHandler(runner)
	r.GET("/reconcile", h.ListSteps)
	r.POST("/reconcile/:step", h.RunStep)
	return r
}

func TestRunStepReturnsReport(t *testing.T) {
	runner := &stubRunner{}
	w := serve(newReconcileRouter(runner), http.MethodPost, "/reconcile/"+service.StepPendingIncrease)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{service.StepPendingIncrease}, runner.ran)

	var body struct {
		Data service.StepReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, service.StepStatusFinished, body.Data.Status)
	assert.Equal(t, 2, body.Data.Succeeded)
}

func TestRunStepErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unknown", fmt.Errorf("%w: nope", service.ErrUnknownStep), http.StatusNotFound},
		{"busy", service.ErrStepBusy, http.StatusConflict},
		{"scan failed", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newReconcileRouter(&stubRunner{err: tt.err}), http.MethodPost, "/reconcile/x")
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestListSteps(t *testing.T) {
	w := serve(newReconcileRouter(&stubRunner{}), http.MethodGet, "/reconcile")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), service.StepFailedCleanup)
}
