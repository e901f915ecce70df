package account

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/account/entity"
)

func newService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(sqlx.NewDb(db, "postgres")), mock
}

var accountCols = []string{"id", "email", "name", "subscription", "created_at", "updated_at"}

func strp(s string) *string { return &s }

func TestCreateProfile(t *testing.T) {
	svc, mock := newService(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO accounts").
		WithArgs("id1", "ana@x.com", "Ana", "").
		WillReturnRows(sqlmock.NewRows([]string{"subscription", "created_at", "updated_at"}).AddRow("free", now, now))

	a := &entity.Account{ID: "id1", Email: " Ana@X.com", Name: "Ana"}
	require.NoError(t, svc.CreateProfile(context.Background(), a))
	assert.Equal(t, "free", a.Subscription)
	assert.Equal(t, now, a.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProfileDuplicateEmail(t *testing.T) {
	svc, mock := newService(t)
	mock.ExpectQuery("INSERT INTO accounts").WillReturnError(&pq.Error{Code: "23505"})
	err := svc.CreateProfile(context.Background(), &entity.Account{ID: "id1", Email: "ana@x.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestUpdateProfile(t *testing.T) {
	svc, mock := newService(t)
	now := time.Now()
	mock.ExpectQuery(`UPDATE accounts SET updated_at=NOW\(\), name=\$2, email=\$3 WHERE id=\$1`).
		WithArgs("id1", "Ana B", "ana.b@x.com").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow("id1", "ana.b@x.com", "Ana B", "free", now, now))

	a, err := svc.UpdateProfile(context.Background(), "id1", entity.ProfileUpdate{Name: strp("Ana B"), Email: strp("Ana.B@x.com ")})
	require.NoError(t, err)
	assert.Equal(t, "ana.b@x.com", a.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfileErrors(t *testing.T) {
	svc, mock := newService(t)

	_, err := svc.UpdateProfile(context.Background(), "id1", entity.ProfileUpdate{})
	assert.ErrorIs(t, err, ErrNoChanges)

	_, err = svc.UpdateProfile(context.Background(), "id1", entity.ProfileUpdate{Email: strp("not-an-email")})
	assert.Error(t, err)

	mock.ExpectQuery("UPDATE accounts").WillReturnRows(sqlmock.NewRows(accountCols))
	_, err = svc.UpdateProfile(context.Background(), "missing", entity.ProfileUpdate{Name: strp("X")})
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery("UPDATE accounts").WillReturnError(&pq.Error{Code: "23505"})
	_, err = svc.UpdateProfile(context.Background(), "id1", entity.ProfileUpdate{Email: strp("taken@x.com")})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestTier(t *testing.T) {
	svc, mock := newService(t)
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id").
		WithArgs("id1").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow("id1", "ana@x.com", "Ana", "monthly", now, now))
	tier, err := svc.Tier(context.Background(), "id1")
	require.NoError(t, err)
	assert.Equal(t, "monthly", tier)
}
