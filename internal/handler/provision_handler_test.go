package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/provision"
)

// --- モック定義 ---

type mockProvisioner struct {
	provisionStaffFn func(ctx context.Context, params provision.StaffParams) (*model.StaffProfile, error)
}

func (m *mockProvisioner) ProvisionStaff(ctx context.Context, params provision.StaffParams) (*model.StaffProfile, error) {
	if m.provisionStaffFn != nil {
		return m.provisionStaffFn(ctx, params)
	}
	return nil, errors.New("not configured")
}

func validProvisionBody() []byte {
	body, _ := json.Marshal(map[string]string{
		"full_name":   "山田 教員",
		"email":       "yamada@example.ac.jp",
		"password":    "staffpass123",
		"department":  "情報工学科",
		"designation": "准教授",
		"subject":     "アルゴリズム",
	})
	return body
}

// --- テスト ---

func TestProvisionHandler_ProvisionStaff_Success(t *testing.T) {
	var gotParams provision.StaffParams
	provisioner := &mockProvisioner{
		provisionStaffFn: func(ctx context.Context, params provision.StaffParams) (*model.StaffProfile, error) {
			gotParams = params
			return &model.StaffProfile{
				ID:          "staff-profile-1",
				UserID:      "user-1",
				Department:  params.Department,
				Designation: params.Designation,
				Subject:     params.Subject,
			}, nil
		},
	}
	metrics := &mockHandlerMetrics{}
	h := NewProvisionHandler(provisioner, metrics)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/staff", bytes.NewReader(validProvisionBody()))
	w := httptest.NewRecorder()

	h.ProvisionStaff(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if gotParams.Email != "yamada@example.ac.jp" {
		t.Errorf("email = %q, want %q", gotParams.Email, "yamada@example.ac.jp")
	}
	if gotParams.FullName != "山田 教員" {
		t.Errorf("full_name = %q, want %q", gotParams.FullName, "山田 教員")
	}

	var resp staffProfileResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "staff-profile-1" || resp.UserID != "user-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Department != "情報工学科" {
		t.Errorf("department = %q, want %q", resp.Department, "情報工学科")
	}
	if len(metrics.provisionSteps) != 0 {
		t.Errorf("provisionSteps = %v, want empty", metrics.provisionSteps)
	}
}

// IdPステップの失敗は元のエラーで報告される
func TestProvisionHandler_ProvisionStaff_EmailTakenAtIdentityStep_Returns409(t *testing.T) {
	provisioner := &mockProvisioner{
		provisionStaffFn: func(ctx context.Context, params provision.StaffParams) (*model.StaffProfile, error) {
			return nil, &provision.StepError{Step: provision.StepIdentity, Err: model.NewEmailTakenError()}
		},
	}
	metrics := &mockHandlerMetrics{}
	h := NewProvisionHandler(provisioner, metrics)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/staff", bytes.NewReader(validProvisionBody()))
	w := httptest.NewRecorder()

	h.ProvisionStaff(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeEmailTaken {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeEmailTaken)
	}
	if len(metrics.provisionSteps) != 1 || metrics.provisionSteps[0] != provision.StepIdentity {
		t.Errorf("provisionSteps = %v, want [identity]", metrics.provisionSteps)
	}
}

// 後続ステップの失敗はどのステップで止まったかをPROVISION_FAILEDで報告する
func TestProvisionHandler_ProvisionStaff_StaffStepFailure_Returns500WithStep(t *testing.T) {
	provisioner := &mockProvisioner{
		provisionStaffFn: func(ctx context.Context, params provision.StaffParams) (*model.StaffProfile, error) {
			return nil, &provision.StepError{Step: provision.StepStaff, Err: errors.New("insert failed")}
		},
	}
	metrics := &mockHandlerMetrics{}
	h := NewProvisionHandler(provisioner, metrics)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/staff", bytes.NewReader(validProvisionBody()))
	w := httptest.NewRecorder()

	h.ProvisionStaff(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeProvisionFailed {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeProvisionFailed)
	}
	if len(metrics.provisionSteps) != 1 || metrics.provisionSteps[0] != provision.StepStaff {
		t.Errorf("provisionSteps = %v, want [staff]", metrics.provisionSteps)
	}
}

func TestProvisionHandler_ProvisionStaff_ShortPassword_Returns400(t *testing.T) {
	provisioner := &mockProvisioner{
		provisionStaffFn: func(ctx context.Context, params provision.StaffParams) (*model.StaffProfile, error) {
			t.Fatal("provisioner should not run for invalid request")
			return nil, nil
		},
	}
	h := NewProvisionHandler(provisioner, &mockHandlerMetrics{})

	body, _ := json.Marshal(map[string]string{
		"full_name": "山田 教員",
		"email":     "yamada@example.ac.jp",
		"password":  "short",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/staff", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.ProvisionStaff(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeValidationFailed {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeValidationFailed)
	}
}

func TestProvisionHandler_ProvisionStaff_InvalidJSON_Returns400(t *testing.T) {
	h := NewProvisionHandler(&mockProvisioner{}, &mockHandlerMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/staff", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()

	h.ProvisionStaff(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
