//go:build !integration

package integration

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSource_Get_Unit(t *testing.T) {
	ctx := context.Background()

	t.Run("success - found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		rows := sqlmock.NewRows([]string{"id", "tenant_id", "shop_domain", "secret", "active"}).
			AddRow("int-1", "tenant-1", "acme.myshopify.com", "secret", true)
		mock.ExpectQuery(regexp.QuoteMeta("FROM integrations WHERE shop_domain = $1")).
			WithArgs("acme.myshopify.com").
			WillReturnRows(rows)

		source := &PostgresSource{DB: db}
		in, err := source.Get(ctx, "ACME.myshopify.com")

		require.NoError(t, err)
		assert.Equal(t, "int-1", in.ID)
		assert.True(t, in.Active)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("FROM integrations WHERE shop_domain = $1")).
			WithArgs("nobody.myshopify.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "shop_domain", "secret", "active"}))

		source := &PostgresSource{DB: db}
		_, err = source.Get(ctx, "nobody.myshopify.com")

		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("database error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("FROM integrations WHERE shop_domain = $1")).
			WillReturnError(errors.New("connection reset"))

		source := &PostgresSource{DB: db}
		_, err = source.Get(ctx, "acme.myshopify.com")

		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotFound))
		assert.Contains(t, err.Error(), "selecting integration")
	})
}

func TestPostgresSource_Save_Unit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO integrations")).
		WithArgs("int-1", "tenant-1", "acme.myshopify.com", "secret", true, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	source := &PostgresSource{DB: db}
	err = source.Save(context.Background(), Integration{
		ID: "int-1", TenantID: "tenant-1", ShopDomain: "Acme.myshopify.com", Secret: "secret", Active: true,
	}, now)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	err = source.Save(context.Background(), Integration{ID: "int-2"}, now)
	assert.Contains(t, err.Error(), "validating integration")
}
