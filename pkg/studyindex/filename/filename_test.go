package filename

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/studyindex/pkg/studyindex/records"
)

var clock2024 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestParseDate(t *testing.T) {
	tests := []struct {
		token string
		want  time.Time
	}{
		{"14MAR24", time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"01JAN99", time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"05DEC23", time.Date(2023, 12, 5, 0, 0, 0, 0, time.UTC)},
		{"5SEPT19", time.Date(2019, 9, 5, 0, 0, 0, 0, time.UTC)},
		{"12APL2021", time.Date(2021, 4, 12, 0, 0, 0, 0, time.UTC)},
		{"30june24", time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)},
		{"01JAN25", time.Date(1925, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseDate(tt.token, clock2024)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v", got)
		})
	}
}

func TestParseDateRejectsNonsense(t *testing.T) {
	_, err := parseMonthToken("31FEB24", clock2024)
	assert.Error(t, err)
	_, err = parseMonthToken("14XYZ24", clock2024)
	assert.Error(t, err)
	_, err = ParseDate("NODATE", clock2024)
	assert.Error(t, err)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "14MAR24", FormatDate(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "05SEPT19", FormatDate(time.Date(2019, 9, 5, 0, 0, 0, 0, time.UTC)))
}

func TestParseFullName(t *testing.T) {
	p := New(nil).WithClock(func() time.Time { return clock2024 })
	got := p.Parse("Proposal pfz_07_14MAR24_FST_R2.1", `/mnt/BizDev/2024`)

	require.True(t, got.Matched)
	assert.Equal(t, "PFZ_07_14MAR24", got.StudyID)
	assert.Equal(t, "PFZ", got.ClientCode)
	require.NotNil(t, got.StudyNumber)
	assert.Equal(t, 7, *got.StudyNumber)
	require.NotNil(t, got.StudyDate)
	assert.True(t, got.StudyDate.Equal(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "FST", got.MethodCode)
	assert.Equal(t, 2.1, got.Version)
	assert.False(t, got.ChangeOrder)
	assert.Equal(t, records.Proposal, got.DocType)
}

func TestMethodCodeSkipsRevisionMarker(t *testing.T) {
	assert.Equal(t, "", methodCode("_R2"))
	assert.Equal(t, "", methodCode("_FSTR2"))
	assert.Equal(t, "FST", methodCode("_FST_R1"))
	assert.Equal(t, "Tail-Susp", methodCode("_Tail-Susp_v3"))
}

func TestChangeOrderAndDirectory(t *testing.T) {
	p := New(nil).WithClock(func() time.Time { return clock2024 })

	got := p.Parse("MRK_12_05DEC23_FST CO", "/o-drive/reports")
	assert.True(t, got.ChangeOrder)
	assert.Equal(t, records.ChangeOrder, got.DocType)
	assert.Equal(t, 0.0, got.Version)

	got = p.Parse("MRK_12_05DEC23_NOR_COLOR", "/o-drive/reports")
	assert.False(t, got.ChangeOrder)
	assert.Equal(t, records.Report, got.DocType)
}

func TestNoPatternKeepsDirectoryType(t *testing.T) {
	p := New([]DirKeyword{{Keyword: "Reports", Type: records.Report}})
	got := p.Parse("Final study writeup", "/share/reports/2020")
	assert.False(t, got.Matched)
	assert.Empty(t, got.StudyID)
	assert.Nil(t, got.StudyDate)
	assert.Equal(t, records.Report, got.DocType)
}
