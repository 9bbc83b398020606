package sqldb_test

import (
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/infrastructure/db/sqldb"
	"github.com/stretchr/testify/require"
)

func testChangeset() domain.Changeset {
	offer := domain.Offer{
		Id:            "offer1",
		SellerId:      "seller",
		CustodianId:   "custodian",
		CustodianFee:  domain.FeeTerms{Amount: 10, Period: 60},
		ExchangeToken: "usdc",
		ItemCount:     2,
	}
	var changes domain.Changeset
	changes.AddOffer(offer)
	changes.AddVault(domain.Vault{
		Subject:       offer.BatchId(),
		Balance:       100,
		AccrualCursor: 1000,
		Items:         2,
		Fractions:     &domain.FractionConfig{TotalFractionSupply: 1000},
	})
	changes.DeleteCustodianUpdate(offer.BatchId())
	return changes
}

func TestCommit(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		repo := sqldb.NewLedgerRepository(db, "sqlite")
		defer repo.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO offers").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO vaults").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("DELETE FROM custodian_updates").
			WithArgs("batch:offer1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err = repo.Commit(t.Context(), testChangeset())
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty changeset", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		repo := sqldb.NewLedgerRepository(db, "sqlite")
		defer repo.Close()

		err = repo.Commit(t.Context(), domain.Changeset{})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retry on conflict", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		repo := sqldb.NewLedgerRepository(db, "sqlite")
		defer repo.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO offers").
			WillReturnError(fmt.Errorf("database is locked"))
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO offers").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO vaults").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("DELETE FROM custodian_updates").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err = repo.Commit(t.Context(), testChangeset())
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		repo := sqldb.NewLedgerRepository(db, "sqlite")
		defer repo.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO offers").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO vaults").
			WillReturnError(fmt.Errorf("CHECK constraint failed: balance"))
		mock.ExpectRollback()

		err = repo.Commit(t.Context(), testChangeset())
		require.ErrorContains(t, err, "failed to upsert vault batch:offer1")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetOffer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	repo := sqldb.NewLedgerRepository(db, "sqlite")
	defer repo.Close()

	columns := []string{
		"id", "seller_id", "custodian_id", "fee_amount", "fee_period", "exchange_token",
		"item_count", "first_item_index", "last_price", "created_at",
	}
	mock.ExpectQuery("SELECT \\* FROM offers WHERE id = ?").
		WithArgs("offer1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("offer1", "seller", "custodian", 10, 60, "usdc", 2, 0, 500, 1000))
	mock.ExpectQuery("SELECT \\* FROM offers WHERE id = ?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	offer, err := repo.GetOffer(t.Context(), "offer1")
	require.NoError(t, err)
	require.NotNil(t, offer)
	require.Equal(t, domain.Offer{
		Id:            "offer1",
		SellerId:      "seller",
		CustodianId:   "custodian",
		CustodianFee:  domain.FeeTerms{Amount: 10, Period: 60},
		ExchangeToken: "usdc",
		ItemCount:     2,
		LastPrice:     500,
		CreatedAt:     1000,
	}, *offer)

	offer, err = repo.GetOffer(t.Context(), "missing")
	require.NoError(t, err)
	require.Nil(t, offer)
	require.NoError(t, mock.ExpectationsWereMet())
}
