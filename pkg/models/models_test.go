package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageCursorOffsets(t *testing.T) {
	c := NewPageCursor(1, 2, PageSize(KindAccount, false))

	assert.Equal(t, 0, c.OffsetStart())
	assert.Equal(t, 48, c.OffsetStop())

	c.Advance()
	assert.Equal(t, 24, c.OffsetStart())
	assert.False(t, c.PastEnd())

	c.Advance()
	assert.True(t, c.PastEnd())

	c.Reset()
	assert.Equal(t, 1, c.Page)
}

func TestPageCursorUnbounded(t *testing.T) {
	c := NewPageCursor(0, 0, 20)
	assert.Equal(t, 1, c.Page)
	assert.Equal(t, -1, c.OffsetStop())
	c.Page = 5000
	assert.False(t, c.PastEnd())
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, 24, PageSize(KindAccount, false))
	assert.Equal(t, 50, PageSize(KindAccount, true))
	assert.Equal(t, 20, PageSize(KindTagQuery, false))
	assert.Equal(t, 50, PageSize(KindTagQuery, true))
	assert.Equal(t, 20, PageSize(KindBookmarks, true))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "skip_local_larger", SkipLocalLarger.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())

	assert.True(t, SkipDuplicate.Satisfied())
	assert.True(t, SkipLocalLarger.Satisfied())
	assert.False(t, SkipBlacklist.Satisfied())
	assert.False(t, SkipOlder.Satisfied())
	assert.False(t, OK.Satisfied())

	assert.True(t, OK.Persist())
	assert.False(t, NotOK.Persist())
}

func TestArtifactRecordSaved(t *testing.T) {
	assert.False(t, ArtifactRecord{SaveName: NotSaved}.Saved())
	assert.False(t, ArtifactRecord{SaveName: Blacklisted}.Saved())
	assert.True(t, ArtifactRecord{SaveName: "/art/1.png"}.Saved())
}

func TestSubjectMemberID(t *testing.T) {
	id, err := Subject{Kind: KindAccount, ID: "42"}.MemberID()
	assert.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = Subject{Kind: KindTagQuery, ID: "landscape"}.MemberID()
	assert.Error(t, err)
}
