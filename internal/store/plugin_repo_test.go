// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

var pluginRowColumns = []string{
	"id", "name", "version", "description", "category", "bundle_key", "bundle_url",
	"extension_points", "permissions", "metadata", "status", "created_at", "updated_at",
}

func testDefinition() *catalog.Definition {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &catalog.Definition{
		ID:              ulid.MustParse("01HZX3C9W8J5M8X9QK4Y7N2B6D"),
		Name:            "stripe-checkout",
		Version:         "1.2.0",
		Category:        catalog.CategoryPayment,
		ExtensionPoints: []string{"checkout.payment_method"},
		Permissions:     []string{"payments.*"},
		Metadata:        []byte(`{"priority":5}`),
		Status:          catalog.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func pluginRow(def *catalog.Definition) *pgxmock.Rows {
	return pgxmock.NewRows(pluginRowColumns).AddRow(
		def.ID.String(), def.Name, def.Version, def.Description, string(def.Category),
		def.BundleKey, def.BundleURL, def.ExtensionPoints, def.Permissions,
		[]byte(def.Metadata), string(def.Status), def.CreatedAt, def.UpdatedAt,
	)
}

// anyArgs matches n statement arguments of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPluginRepository_Create(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantCode  string
		errMsg    string
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO plugins`).
					WithArgs(anyArgs(13)...).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate name and version",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO plugins`).
					WithArgs(anyArgs(13)...).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantCode: errutil.CodeRegistrationInvalid,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO plugins`).
					WithArgs(anyArgs(13)...).
					WillReturnError(errors.New("connection refused"))
			},
			errMsg: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			err = NewPluginRepository(mock).Create(context.Background(), testDefinition())
			switch {
			case tt.wantCode != "":
				errutil.AssertErrorCode(t, err, tt.wantCode)
			case tt.errMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			default:
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestPluginRepository_Get(t *testing.T) {
	def := testDefinition()

	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT .+ FROM plugins WHERE id = \$1`).
			WithArgs(def.ID.String()).
			WillReturnRows(pluginRow(def))

		got, err := NewPluginRepository(mock).Get(context.Background(), def.ID)
		require.NoError(t, err)
		assert.Equal(t, def.ID, got.ID)
		assert.Equal(t, catalog.CategoryPayment, got.Category)
		assert.Equal(t, []string{"checkout.payment_method"}, got.ExtensionPoints)
		assert.Equal(t, 5, got.Priority())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT .+ FROM plugins WHERE id = \$1`).
			WithArgs(def.ID.String()).
			WillReturnRows(pgxmock.NewRows(pluginRowColumns))

		_, err = NewPluginRepository(mock).Get(context.Background(), def.ID)
		errutil.AssertErrorCode(t, err, errutil.CodePluginNotFound)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})
}

func TestPluginRepository_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE plugins SET`).
		WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewPluginRepository(mock).Update(context.Background(), testDefinition())
	errutil.AssertErrorCode(t, err, errutil.CodePluginNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPluginRepository_List_BuildsFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter catalog.Filter
		query  string
		args   []any
	}{
		{
			name:  "no filter",
			query: `FROM plugins ORDER BY name, version`,
		},
		{
			name:   "status and category",
			filter: catalog.Filter{Status: catalog.StatusActive, Category: catalog.CategoryUI},
			query:  `WHERE status = \$1 AND category = \$2 ORDER BY`,
			args:   []any{"active", "ui"},
		},
		{
			name:   "extension point",
			filter: catalog.Filter{ExtensionPoint: "dashboard.widget"},
			query:  `WHERE \$1 = ANY\(extension_points\)`,
			args:   []any{"dashboard.widget"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			expect := mock.ExpectQuery(tt.query)
			if len(tt.args) > 0 {
				expect = expect.WithArgs(tt.args...)
			}
			expect.WillReturnRows(pluginRow(testDefinition()))

			defs, err := NewPluginRepository(mock).List(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Len(t, defs, 1)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
