package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceRecordNormalizeDefaults(t *testing.T) {
	rec := AttendanceRecord{
		StudentID:      "s1",
		SkillsAssessed: []SkillAssessment{{Skill: "addition"}},
		Homework:       &Homework{Assigned: "p. 12"},
	}
	require.NoError(t, rec.Normalize())
	assert.Equal(t, AttendancePresent, rec.Status)
	assert.Equal(t, ParticipationNotAssessed, rec.Participation.Level)
	assert.Equal(t, BehaviourGood, rec.Behaviour.Rating)
	assert.Equal(t, SkillNotYet, rec.SkillsAssessed[0].Level)
	assert.Equal(t, HomeworkNotSubmitted, rec.Homework.Quality)
}

func TestAttendanceRecordNormalizeHomeworkQuality(t *testing.T) {
	done := AttendanceRecord{StudentID: "s1", Homework: &Homework{Assigned: "p. 12", Completed: true}}
	require.NoError(t, done.Normalize())
	assert.Empty(t, done.Homework.Quality)

	graded := AttendanceRecord{StudentID: "s1", Homework: &Homework{Completed: true, Quality: HomeworkFair}}
	require.NoError(t, graded.Normalize())
	assert.Equal(t, HomeworkFair, graded.Homework.Quality)
}

func TestAttendanceRecordNormalizeRejects(t *testing.T) {
	bad := []AttendanceRecord{
		{},
		{StudentID: "s", Status: "Sick"},
		{StudentID: "s", Participation: Participation{Level: "Great"}},
		{StudentID: "s", Behaviour: Behaviour{Rating: "Bad"}},
		{StudentID: "s", SkillsAssessed: []SkillAssessment{{Skill: "x", Level: "Expert"}}},
		{StudentID: "s", SkillsAssessed: []SkillAssessment{{Level: SkillMastered}}},
		{StudentID: "s", Homework: &Homework{Quality: "Superb"}},
	}
	for i := range bad {
		assert.Error(t, bad[i].Normalize(), "case %d", i)
	}
	late := "9:75"
	assert.Error(t, (&AttendanceRecord{StudentID: "s", ArrivalTime: &late}).Normalize())
}

func TestAttendanceRecordsUpsert(t *testing.T) {
	records := AttendanceRecords{{StudentID: "a", Status: AttendancePresent}}
	records = records.Upsert(AttendanceRecord{StudentID: "a", Status: AttendanceLate})
	records = records.Upsert(AttendanceRecord{StudentID: "b", Status: AttendanceAbsent})

	require.Len(t, records, 2)
	assert.Equal(t, AttendanceLate, records[0].Status)
	assert.Equal(t, 1, records.Find("b"))
	assert.Equal(t, -1, records.Find("c"))
}
