package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmxfpv/admin-api/internal/models"
)

var memberRowColumns = []string{"id", "name", "email", "phone", "status", "password_hash", "attributes", "created_at", "updated_at"}

func TestMemberRepositoryListSearch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM pilots WHERE status = $1 AND (LOWER(name) LIKE $2 OR LOWER(email) LIKE $2 OR phone LIKE $2) ORDER BY name ASC")).
		WithArgs("active", "%asha%").
		WillReturnRows(sqlmock.NewRows(memberRowColumns).
			AddRow(1, "Asha Rao", "asha@example.com", "555-0101", "active", "hash", []byte(`{"drone_model":"DJI Avata"}`), now, now))

	members, err := repo.List(context.Background(), models.RosterPilots, models.MemberFilter{Search: "Asha", Status: "active"})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, models.RosterPilots, members[0].Roster)
	assert.Equal(t, "DJI Avata", members[0].Attributes.String("drone_model"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepositoryRejectsUnknownRoster(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	_, err := repo.List(context.Background(), models.Roster("students; DROP TABLE pilots"), models.MemberFilter{})
	assert.Error(t, err)
}

func TestMemberRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO referrals (name, email, phone, status, password_hash, attributes)")).
		WithArgs("Kiran", "kiran@example.com", "555-0199", "active", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(31, now, now))

	member := &models.Member{Roster: models.RosterReferrals, Name: "Kiran", Email: "kiran@example.com", Phone: "555-0199"}
	require.NoError(t, repo.Create(context.Background(), member))
	assert.Equal(t, int64(31), member.ID)
	assert.Equal(t, models.MemberStatusActive, member.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepositoryExistsByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM editors WHERE LOWER(email) = LOWER($1) AND id <> $2)")).
		WithArgs("ed@example.com", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByEmail(context.Background(), models.RosterEditors, "ed@example.com", 0)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM clients WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), models.RosterClients, 9)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepositoryActivateUpserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (email) DO UPDATE SET status = EXCLUDED.status")).
		WithArgs("Asha Rao", "asha@example.com", "555-0101", "active", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(4, now, now))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	member := &models.Member{Roster: models.RosterPilots, Name: "Asha Rao", Email: "asha@example.com", Phone: "555-0101"}
	require.NoError(t, repo.Activate(context.Background(), tx, member))
	require.NoError(t, tx.Commit())
	assert.Equal(t, int64(4), member.ID)
	assert.Equal(t, models.MemberStatusActive, member.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
