package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRunStatus(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   string
	}{
		{RunStatusRunning, "running"},
		{RunStatusSuccess, "success"},
		{RunStatusSuccessWithWarning, "success_with_warning"},
		{RunStatusFailed, "failed"},
		{RunStatusTimeout, "timeout"},
		{RunStatusCancelled, "cancelled"},
	}

	for _, tt := range tests {
		if string(tt.status) != tt.want {
			t.Errorf("RunStatus = %v, want %v", tt.status, tt.want)
		}
	}
}

func TestRunIsTerminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunStatusRunning, false},
		{RunStatusSuccess, true},
		{RunStatusSuccessWithWarning, true},
		{RunStatusFailed, true},
		{RunStatusTimeout, true},
		{RunStatusCancelled, true},
	}

	for _, tt := range tests {
		r := &Run{Status: tt.status}
		if got := r.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRunCanRetry(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunStatusFailed, true},
		{RunStatusTimeout, true},
		{RunStatusSuccess, false},
		{RunStatusSuccessWithWarning, false},
		{RunStatusCancelled, false},
		{RunStatusRunning, false},
	}

	for _, tt := range tests {
		r := &Run{Status: tt.status}
		if got := r.CanRetry(); got != tt.want {
			t.Errorf("CanRetry(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRunIsPrimary(t *testing.T) {
	tests := []struct {
		trigger TriggerType
		attempt int
		want    bool
	}{
		{TriggerTypeScheduled, 1, true},
		{TriggerTypeScheduled, 2, false},
		{TriggerTypeManual, 1, false},
	}

	for _, tt := range tests {
		r := &Run{TriggerType: tt.trigger, Attempt: tt.attempt}
		if got := r.IsPrimary(); got != tt.want {
			t.Errorf("IsPrimary(%s, attempt=%d) = %v, want %v", tt.trigger, tt.attempt, got, tt.want)
		}
	}
}

func TestRunFinalStatus(t *testing.T) {
	r := &Run{WarningCount: 0}
	if got := r.FinalStatus(); got != RunStatusSuccess {
		t.Errorf("FinalStatus() = %v, want success", got)
	}
	r.WarningCount = 2
	if got := r.FinalStatus(); got != RunStatusSuccessWithWarning {
		t.Errorf("FinalStatus() = %v, want success_with_warning", got)
	}
}

func TestRunJSONSerialization(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	errMsg := "upload rejected"
	run := &Run{
		ID:           "run-abc123",
		Status:       RunStatusFailed,
		TriggerType:  TriggerTypeScheduled,
		Attempt:      2,
		Steps:        Steps{StepParse: {Status: StepStatusSuccess}},
		ErrorMessage: &errMsg,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	data, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("Failed to marshal run: %v", err)
	}

	var decoded Run
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal run: %v", err)
	}

	if decoded.ID != run.ID {
		t.Errorf("ID = %v, want %v", decoded.ID, run.ID)
	}
	if decoded.Status != run.Status {
		t.Errorf("Status = %v, want %v", decoded.Status, run.Status)
	}
	if decoded.Attempt != run.Attempt {
		t.Errorf("Attempt = %v, want %v", decoded.Attempt, run.Attempt)
	}
	if decoded.ErrorMessage == nil || *decoded.ErrorMessage != errMsg {
		t.Errorf("ErrorMessage = %v, want %v", decoded.ErrorMessage, errMsg)
	}
	if st, ok := decoded.Steps[StepParse]; !ok || st.Status != StepStatusSuccess {
		t.Errorf("Steps[parse] = %+v, want success", decoded.Steps[StepParse])
	}
}

func TestEventIsProgress(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{EventRunStarted, true},
		{EventStepCompleted, true},
		{EventStepProgress, true},
		{EventRunYielded, true},
		{EventResumeTriggered, true},
		{EventResumeSkippedActive, false},
		{EventResumeSkippedStall, false},
		{EventResumeSkippedRetryWait, false},
		{EventTickAuthFailed, false},
		{EventTickError, false},
	}

	for _, tt := range tests {
		e := &Event{Message: tt.message}
		if got := e.IsProgress(); got != tt.want {
			t.Errorf("IsProgress(%s) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestNewEventDetails(t *testing.T) {
	e := NewEvent("run-1", EventLevelInfo, EventSyncStarted, map[string]any{"attempt": 1})
	if e.RunID != "run-1" || e.Level != EventLevelInfo {
		t.Fatalf("unexpected event: %+v", e)
	}

	var details map[string]any
	if err := json.Unmarshal(e.Details, &details); err != nil {
		t.Fatalf("Failed to unmarshal details: %v", err)
	}
	if details["attempt"] != float64(1) {
		t.Errorf("details.attempt = %v, want 1", details["attempt"])
	}

	empty := NewEvent("run-1", EventLevelWarn, EventTickAuthFailed, nil)
	if empty.Details != nil {
		t.Errorf("Details = %s, want nil for empty map", empty.Details)
	}
}
