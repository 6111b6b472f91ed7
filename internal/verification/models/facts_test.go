package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "trustscore/pkg/domain"
	dErrors "trustscore/pkg/domain-errors"
)

func ptr[T any](v T) *T { return &v }

var (
	created = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	later   = created.Add(time.Hour)
)

func TestParseCategory(t *testing.T) {
	for _, c := range Categories {
		got, err := ParseCategory(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCategory("fax")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCategory)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = ParseCategory("Email")
	assert.ErrorIs(t, err, ErrInvalidCategory, "category names are case-sensitive")
}

func TestFacts_Validate(t *testing.T) {
	t.Run("accepts fields of the addressed category", func(t *testing.T) {
		cases := map[Category]Facts{
			CategoryEmail:      {Verified: ptr(true), Address: ptr("ada@example.com"), VerifiedAt: ptr(created)},
			CategoryPhone:      {Verified: ptr(true), Number: ptr("+447700900123")},
			CategoryIdentity:   {Verified: ptr(true), DocumentType: ptr("passport")},
			CategoryEducation:  {Verified: ptr(true), InstitutionCount: ptr(2)},
			CategoryEmployment: {Verified: ptr(false), CompanyCount: ptr(0)},
			CategorySkills:     {VerifiedCount: ptr(2), Total: ptr(5), LastVerifiedAt: ptr(created)},
		}
		for c, f := range cases {
			assert.NoError(t, f.Validate(c), "category %s", c)
		}
	})

	t.Run("rejects fields of another category", func(t *testing.T) {
		err := Facts{Verified: ptr(true), Number: ptr("+447700900123")}.Validate(CategoryEmail)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidFactShape)
		assert.Contains(t, err.Error(), `"number"`)

		err = Facts{Verified: ptr(true)}.Validate(CategorySkills)
		assert.ErrorIs(t, err, ErrInvalidFactShape)
	})

	t.Run("rejects negative counts", func(t *testing.T) {
		err := Facts{VerifiedCount: ptr(-1)}.Validate(CategorySkills)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidFactShape)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), "verified_count")

		err = Facts{CompanyCount: ptr(-3)}.Validate(CategoryEmployment)
		assert.ErrorIs(t, err, ErrInvalidFactShape)
	})

	t.Run("rejects malformed formats", func(t *testing.T) {
		assert.ErrorIs(t, Facts{Address: ptr("not-an-email")}.Validate(CategoryEmail), ErrInvalidFactShape)
		assert.ErrorIs(t, Facts{Number: ptr("0770 090")}.Validate(CategoryPhone), ErrInvalidFactShape)
		assert.ErrorIs(t, Facts{DocumentType: ptr("library_card")}.Validate(CategoryIdentity), ErrInvalidFactShape)
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		err := Facts{}.Validate(Category("fax"))
		assert.ErrorIs(t, err, ErrInvalidCategory)
	})

	t.Run("empty facts are valid", func(t *testing.T) {
		assert.NoError(t, Facts{}.Validate(CategoryEmail))
		assert.True(t, Facts{}.IsEmpty())
	})
}

func TestFacts_Supplied(t *testing.T) {
	f := Facts{Verified: ptr(false), Total: ptr(0)}
	assert.Equal(t, []string{"verified", "total"}, f.Supplied())
}

func TestFacts_Apply(t *testing.T) {
	newRecord := func() *Record {
		return NewRecord(id.SubjectID(uuid.New()), created)
	}

	t.Run("merges only supplied fields", func(t *testing.T) {
		r := newRecord()
		r.Email.Address = "old@example.com"

		changed := Facts{Verified: ptr(true), VerifiedAt: ptr(created)}.Apply(r, CategoryEmail, later)
		assert.True(t, changed)
		assert.True(t, r.Email.Verified)
		assert.Equal(t, "old@example.com", r.Email.Address)
		require.NotNil(t, r.Email.VerifiedAt)
		assert.True(t, created.Equal(*r.Email.VerifiedAt))
		assert.Equal(t, later, r.UpdatedAt)
		assert.False(t, r.Phone.Verified, "other categories untouched")
	})

	t.Run("stamps verified_at when none supplied", func(t *testing.T) {
		r := newRecord()
		Facts{Verified: ptr(true), DocumentType: ptr("passport")}.Apply(r, CategoryIdentity, later)
		require.NotNil(t, r.Identity.VerifiedAt)
		assert.True(t, later.Equal(*r.Identity.VerifiedAt))
		assert.Equal(t, "passport", r.Identity.DocumentType)
	})

	t.Run("reapplying identical facts is a no-op", func(t *testing.T) {
		r := newRecord()
		f := Facts{Verified: ptr(true), Number: ptr("+15550001111")}
		assert.True(t, f.Apply(r, CategoryPhone, later))
		once := r.Clone()

		assert.False(t, f.Apply(r, CategoryPhone, later.Add(time.Hour)))
		assert.Equal(t, once, r)
	})

	t.Run("un-verifying clears the stamp", func(t *testing.T) {
		r := newRecord()
		Facts{Verified: ptr(true)}.Apply(r, CategoryEducation, later)
		require.NotNil(t, r.Education.VerifiedAt)

		Facts{Verified: ptr(false)}.Apply(r, CategoryEducation, later)
		assert.False(t, r.Education.Verified)
		assert.Nil(t, r.Education.VerifiedAt)
	})

	t.Run("informational counts do not verify", func(t *testing.T) {
		r := newRecord()
		Facts{CompanyCount: ptr(4)}.Apply(r, CategoryEmployment, later)
		assert.Equal(t, 4, r.Employment.CompanyCount)
		assert.False(t, r.Employment.Verified)
		assert.Nil(t, r.Employment.VerifiedAt)
	})

	t.Run("rising skill count stamps last_verified_at", func(t *testing.T) {
		r := newRecord()
		Facts{Total: ptr(5)}.Apply(r, CategorySkills, created)
		assert.Nil(t, r.Skills.LastVerifiedAt)

		Facts{VerifiedCount: ptr(2)}.Apply(r, CategorySkills, later)
		assert.Equal(t, SkillsFacts{VerifiedCount: 2, Total: 5, LastVerifiedAt: &later}, r.Skills)

		assert.False(t, Facts{VerifiedCount: ptr(2), Total: ptr(5)}.Apply(r, CategorySkills, later.Add(time.Hour)))
	})
}

func TestRecord_Clone(t *testing.T) {
	r := NewRecord(id.SubjectID(uuid.New()), created)
	Facts{Verified: ptr(true)}.Apply(r, CategoryEmail, later)

	c := r.Clone()
	require.Equal(t, r, c)

	*c.Email.VerifiedAt = created
	assert.True(t, later.Equal(*r.Email.VerifiedAt), "clone must not share timestamps")
	assert.Nil(t, (*Record)(nil).Clone())
}

func TestProgressRatio(t *testing.T) {
	assert.InDelta(t, 0.5, Progress{Completed: 3, Total: 6}.Ratio(), 1e-9)
	assert.Zero(t, Progress{}.Ratio())
}

func TestPriorityRank(t *testing.T) {
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Zero(t, Priority("urgent").Rank())
}
