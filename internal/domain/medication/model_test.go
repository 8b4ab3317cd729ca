package medication

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func validInput() MedicationInput {
	return MedicationInput{
		Name:      "Aspirin",
		Dosage:    "100mg",
		PillColor: "#FFFFFF",
		PillShape: PillShapeRound,
		Quantity:  1,
		Timing:    TimingAfterMeal,
	}
}

func TestMedicationInput_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*MedicationInput)
		wantField string
	}{
		{"valid", func(*MedicationInput) {}, ""},
		{"empty name", func(in *MedicationInput) { in.Name = "" }, "name"},
		{"blank name", func(in *MedicationInput) { in.Name = "   " }, "name"},
		{"zero quantity", func(in *MedicationInput) { in.Quantity = 0 }, "quantity"},
		{"bad shape", func(in *MedicationInput) { in.PillShape = "triangle" }, "pill_shape"},
		{"bad timing", func(in *MedicationInput) { in.Timing = "bedtime" }, "timing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			err := in.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestScheduleInput_Validate(t *testing.T) {
	tests := []struct {
		name     string
		in       ScheduleInput
		wantDays []int
		wantErr  string
	}{
		{"normalises days", ScheduleInput{Time: "08:00", DaysOfWeek: []int{5, 1, 3, 1}}, []int{1, 3, 5}, ""},
		{"all days", ScheduleInput{Time: "23:59", DaysOfWeek: []int{6, 5, 4, 3, 2, 1, 0}}, []int{0, 1, 2, 3, 4, 5, 6}, ""},
		{"empty days", ScheduleInput{Time: "08:00"}, nil, "days_of_week"},
		{"day out of range", ScheduleInput{Time: "08:00", DaysOfWeek: []int{7}}, nil, "days_of_week"},
		{"negative day", ScheduleInput{Time: "08:00", DaysOfWeek: []int{-1}}, nil, "days_of_week"},
		{"unpadded time", ScheduleInput{Time: "8:00", DaysOfWeek: []int{1}}, nil, "time"},
		{"bad hour", ScheduleInput{Time: "24:00", DaysOfWeek: []int{1}}, nil, "time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			err := in.Validate()
			if tt.wantErr != "" {
				var ve *ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.wantErr {
					t.Fatalf("expected ValidationError on %s, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(in.DaysOfWeek, tt.wantDays) {
				t.Errorf("days = %v, want %v", in.DaysOfWeek, tt.wantDays)
			}
		})
	}
}

func TestScheduleInput_ActiveDefault(t *testing.T) {
	in := ScheduleInput{}
	if !in.active() {
		t.Error("nil IsActive should mean active")
	}
	off := false
	in.IsActive = &off
	if in.active() {
		t.Error("explicit false should be inactive")
	}
}

func TestLogInput_Validate(t *testing.T) {
	in := LogInput{ScheduleID: "s1", ScheduledTime: "08:00", Status: LogTaken}
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := in
	bad.Status = "forgotten"
	var ve *ValidationError
	if err := bad.Validate(); !errors.As(err, &ve) || ve.Field != "status" {
		t.Errorf("expected status ValidationError, got %v", err)
	}

	bad = in
	bad.ScheduleID = ""
	if err := bad.Validate(); !errors.As(err, &ve) || ve.Field != "schedule_id" {
		t.Errorf("expected schedule_id ValidationError, got %v", err)
	}
}

func TestMedication_Unit(t *testing.T) {
	tests := []struct {
		shape    PillShape
		quantity int
		want     string
	}{
		{PillShapeRound, 1, "pill"},
		{PillShapeRound, 2, "pills"},
		{PillShapeCapsule, 1, "capsule"},
		{PillShapeCapsule, 3, "capsules"},
	}
	for _, tt := range tests {
		m := Medication{PillShape: tt.shape, Quantity: tt.quantity}
		if got := m.Unit(); got != tt.want {
			t.Errorf("Unit(%s, %d) = %q, want %q", tt.shape, tt.quantity, got, tt.want)
		}
	}
}

func TestTiming_Label(t *testing.T) {
	if got := TimingBeforeMeal.Label(); got != "before meal" {
		t.Errorf("Label = %q", got)
	}
}

func TestSchedule_DueOn(t *testing.T) {
	monday := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s := Schedule{Time: "08:00", DaysOfWeek: []int{1, 3}, IsActive: true}
	if !s.DueOn(monday) {
		t.Error("expected due on Monday")
	}
	if s.DueOn(monday.AddDate(0, 0, 1)) {
		t.Error("expected not due on Tuesday")
	}
	s.IsActive = false
	if s.DueOn(monday) {
		t.Error("inactive schedule is never due")
	}
}

func TestPersistenceError_Unwrap(t *testing.T) {
	err := persistErr("toggle schedule", ErrNotFound)
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is through PersistenceError")
	}
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "toggle schedule" {
		t.Errorf("unexpected error: %v", err)
	}
	if again := persistErr("outer", err); again != err {
		t.Error("persistErr must not double wrap")
	}
	if persistErr("noop", nil) != nil {
		t.Error("nil stays nil")
	}
}
