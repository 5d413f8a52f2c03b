package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStatusTransitions(t *testing.T) {
	allowed := map[SessionStatus][]SessionStatus{
		SessionStatusPlanned:     {SessionStatusInProgress, SessionStatusCancelled, SessionStatusRescheduled},
		SessionStatusInProgress:  {SessionStatusCompleted, SessionStatusCancelled, SessionStatusRescheduled},
		SessionStatusRescheduled: {SessionStatusCancelled},
	}
	all := []SessionStatus{SessionStatusPlanned, SessionStatusInProgress, SessionStatusCompleted, SessionStatusCancelled, SessionStatusRescheduled}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, SessionStatusCompleted.Terminal())
	assert.True(t, SessionStatusCancelled.Terminal())
	assert.False(t, SessionStatusRescheduled.Terminal())
	assert.False(t, SessionStatus("Done").Valid())
}

func TestSessionNormalizeDefaults(t *testing.T) {
	s := &Session{
		StartTime:     "09:00",
		EndTime:       "10:30",
		ResourcesUsed: ResourceUsages{{ResourceID: "r1"}},
		Outcomes:      &SessionOutcomes{StudentsEngaged: 140, ObjectivesAchieved: -3},
		Attendance:    AttendanceRecords{{StudentID: "s1"}},
	}
	require.NoError(t, s.Normalize())

	assert.Equal(t, SessionStatusPlanned, s.Status)
	assert.Equal(t, SessionTypeRegular, s.SessionType)
	assert.Equal(t, 90, s.PlannedDuration)
	assert.Equal(t, 1, s.ResourcesUsed[0].Quantity)
	assert.Equal(t, ConditionGood, s.ResourcesUsed[0].ConditionBefore)
	assert.Equal(t, 100, s.Outcomes.StudentsEngaged)
	assert.Equal(t, 0, s.Outcomes.ObjectivesAchieved)
	assert.Equal(t, OutcomeSatisfactory, s.Outcomes.OverallSuccess)
	assert.Equal(t, PaceJustRight, s.Outcomes.PaceRating)
	assert.Equal(t, AttendancePresent, s.Attendance[0].Status)
	assert.NotNil(t, s.AssistantIDs)
	assert.NotNil(t, s.Objectives)
}

func TestSessionNormalizeRejects(t *testing.T) {
	cases := map[string]*Session{
		"bad time":      {StartTime: "9am", EndTime: "10:00"},
		"end first":     {StartTime: "10:00", EndTime: "09:00"},
		"bad type":      {StartTime: "09:00", EndTime: "10:00", SessionType: "Lecture"},
		"bad status":    {StartTime: "09:00", EndTime: "10:00", Status: "Done"},
		"bad pace":      {StartTime: "09:00", EndTime: "10:00", Outcomes: &SessionOutcomes{PaceRating: "Glacial"}},
		"bad condition": {StartTime: "09:00", EndTime: "10:00", ResourcesUsed: ResourceUsages{{ResourceID: "r", ConditionAfter: "Broken"}}},
		"no resource":   {StartTime: "09:00", EndTime: "10:00", ResourcesUsed: ResourceUsages{{Quantity: 2}}},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Normalize())
		})
	}
}

func TestSessionStaffAndRoster(t *testing.T) {
	s := &Session{TutorID: "t1", AssistantIDs: []string{"a1"}, EnrolledStudentIDs: []string{"s1"}}
	assert.True(t, s.IsStaff("t1"))
	assert.True(t, s.IsStaff("a1"))
	assert.False(t, s.IsStaff("x"))
	assert.False(t, s.IsStaff(""))
	assert.True(t, s.OnRoster("s1"))
	assert.False(t, s.OnRoster("s2"))

	var nilSession *Session
	assert.False(t, nilSession.IsStaff("t1"))
	assert.False(t, nilSession.OnRoster("s1"))
}

func TestJSONBScan(t *testing.T) {
	var objs Objectives
	require.NoError(t, objs.Scan([]byte(`[{"description":"fractions","achieved":true}]`)))
	require.Len(t, objs, 1)
	assert.True(t, objs[0].Achieved)

	var att AttendanceRecords
	require.NoError(t, att.Scan(nil))
	assert.NotNil(t, att)
	assert.Empty(t, att)

	assert.Error(t, objs.Scan(42))

	val, err := Agenda(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), val)
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("13:45")
	require.NoError(t, err)
	assert.Equal(t, 13*60+45, m)
	_, err = ParseClock("25:00")
	assert.Error(t, err)
}
