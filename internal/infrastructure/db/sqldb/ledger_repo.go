package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/jmoiron/sqlx"
)

const (
	upsertOfferQuery = `
INSERT INTO offers (
	id, seller_id, custodian_id, fee_amount, fee_period, exchange_token,
	item_count, first_item_index, last_price, created_at
) VALUES (
	:id, :seller_id, :custodian_id, :fee_amount, :fee_period, :exchange_token,
	:item_count, :first_item_index, :last_price, :created_at
) ON CONFLICT (id) DO UPDATE SET
	custodian_id = excluded.custodian_id,
	fee_amount = excluded.fee_amount,
	fee_period = excluded.fee_period,
	last_price = excluded.last_price`

	upsertVaultQuery = `
INSERT INTO vaults (
	subject, offer_id, balance, accrual_cursor, items, fractions, updated_at
) VALUES (
	:subject, :offer_id, :balance, :accrual_cursor, :items, :fractions, :updated_at
) ON CONFLICT (subject) DO UPDATE SET
	balance = excluded.balance,
	accrual_cursor = excluded.accrual_cursor,
	items = excluded.items,
	fractions = excluded.fractions,
	updated_at = excluded.updated_at`

	upsertCheckoutRequestQuery = `
INSERT INTO checkout_requests (
	token_id, offer_id, status, buyer, tax_amount, updated_at
) VALUES (
	:token_id, :offer_id, :status, :buyer, :tax_amount, :updated_at
) ON CONFLICT (token_id) DO UPDATE SET
	status = excluded.status,
	buyer = excluded.buyer,
	tax_amount = excluded.tax_amount,
	updated_at = excluded.updated_at`

	upsertCustodianUpdateQuery = `
INSERT INTO custodian_updates (
	subject, status, new_custodian_id, fee_amount, fee_period, request_timestamp,
	keep_existing, is_emergency, requester
) VALUES (
	:subject, :status, :new_custodian_id, :fee_amount, :fee_period, :request_timestamp,
	:keep_existing, :is_emergency, :requester
) ON CONFLICT (subject) DO UPDATE SET
	status = excluded.status,
	new_custodian_id = excluded.new_custodian_id,
	fee_amount = excluded.fee_amount,
	fee_period = excluded.fee_period,
	request_timestamp = excluded.request_timestamp,
	keep_existing = excluded.keep_existing,
	is_emergency = excluded.is_emergency,
	requester = excluded.requester`

	deleteCustodianUpdateQuery = `DELETE FROM custodian_updates WHERE subject = ?`

	upsertAuctionQuery = `
INSERT INTO auctions (
	offer_id, round, started_at, end_time, max_bid, bidder_id, available_fractions
) VALUES (
	:offer_id, :round, :started_at, :end_time, :max_bid, :bidder_id, :available_fractions
) ON CONFLICT (offer_id) DO UPDATE SET
	round = excluded.round,
	started_at = excluded.started_at,
	end_time = excluded.end_time,
	max_bid = excluded.max_bid,
	bidder_id = excluded.bidder_id,
	available_fractions = excluded.available_fractions`
)

type offerRow struct {
	Id             string `db:"id"`
	SellerId       string `db:"seller_id"`
	CustodianId    string `db:"custodian_id"`
	FeeAmount      int64  `db:"fee_amount"`
	FeePeriod      int64  `db:"fee_period"`
	ExchangeToken  string `db:"exchange_token"`
	ItemCount      int64  `db:"item_count"`
	FirstItemIndex int64  `db:"first_item_index"`
	LastPrice      int64  `db:"last_price"`
	CreatedAt      int64  `db:"created_at"`
}

type vaultRow struct {
	Subject       string         `db:"subject"`
	OfferId       string         `db:"offer_id"`
	Balance       int64          `db:"balance"`
	AccrualCursor int64          `db:"accrual_cursor"`
	Items         int64          `db:"items"`
	Fractions     sql.NullString `db:"fractions"`
	UpdatedAt     int64          `db:"updated_at"`
}

type checkoutRequestRow struct {
	TokenId   string `db:"token_id"`
	OfferId   string `db:"offer_id"`
	Status    int64  `db:"status"`
	Buyer     string `db:"buyer"`
	TaxAmount int64  `db:"tax_amount"`
	UpdatedAt int64  `db:"updated_at"`
}

type custodianUpdateRow struct {
	Subject          string `db:"subject"`
	Status           int64  `db:"status"`
	NewCustodianId   string `db:"new_custodian_id"`
	FeeAmount        int64  `db:"fee_amount"`
	FeePeriod        int64  `db:"fee_period"`
	RequestTimestamp int64  `db:"request_timestamp"`
	KeepExisting     bool   `db:"keep_existing"`
	IsEmergency      bool   `db:"is_emergency"`
	Requester        string `db:"requester"`
}

type auctionRow struct {
	OfferId            string `db:"offer_id"`
	Round              int64  `db:"round"`
	StartedAt          int64  `db:"started_at"`
	EndTime            int64  `db:"end_time"`
	MaxBid             int64  `db:"max_bid"`
	BidderId           string `db:"bidder_id"`
	AvailableFractions int64  `db:"available_fractions"`
}

// LedgerRepository is the sql implementation of every custody repository. Writes
// only happen through Commit, in a single transaction.
type LedgerRepository struct {
	db        *sqlx.DB
	closeOnce sync.Once
}

// NewLedgerRepository wraps db, opened with the given driver name. The driver name
// selects the placeholder style of the queries.
func NewLedgerRepository(db *sql.DB, driverName string) *LedgerRepository {
	return &LedgerRepository{db: sqlx.NewDb(db, driverName)}
}

func (r *LedgerRepository) GetOffer(ctx context.Context, id string) (*domain.Offer, error) {
	var row offerRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT * FROM offers WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offer %s: %w", id, err)
	}
	offer := row.toOffer()
	return &offer, nil
}

func (r *LedgerRepository) GetOffers(ctx context.Context) ([]domain.Offer, error) {
	var rows []offerRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM offers ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("failed to get offers: %w", err)
	}
	offers := make([]domain.Offer, 0, len(rows))
	for _, row := range rows {
		offers = append(offers, row.toOffer())
	}
	return offers, nil
}

func (r *LedgerRepository) GetVault(
	ctx context.Context, subject domain.SubjectId,
) (*domain.Vault, error) {
	var row vaultRow
	err := r.db.GetContext(
		ctx, &row, r.db.Rebind(`SELECT * FROM vaults WHERE subject = ?`), subject.String(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vault %s: %w", subject, err)
	}
	vault, err := row.toVault()
	if err != nil {
		return nil, err
	}
	return &vault, nil
}

func (r *LedgerRepository) GetActiveVaults(ctx context.Context) ([]domain.Vault, error) {
	var rows []vaultRow
	if err := r.db.SelectContext(
		ctx, &rows, `SELECT * FROM vaults WHERE accrual_cursor > 0 ORDER BY subject`,
	); err != nil {
		return nil, fmt.Errorf("failed to get active vaults: %w", err)
	}
	vaults := make([]domain.Vault, 0, len(rows))
	for _, row := range rows {
		vault, err := row.toVault()
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, vault)
	}
	return vaults, nil
}

func (r *LedgerRepository) GetCheckoutRequest(
	ctx context.Context, tokenId domain.SubjectId,
) (*domain.CheckoutRequest, error) {
	var row checkoutRequestRow
	err := r.db.GetContext(
		ctx, &row, r.db.Rebind(`SELECT * FROM checkout_requests WHERE token_id = ?`),
		tokenId.String(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout request %s: %w", tokenId, err)
	}
	request, err := row.toCheckoutRequest()
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *LedgerRepository) GetCheckoutRequestsByOffer(
	ctx context.Context, offerId string,
) ([]domain.CheckoutRequest, error) {
	var rows []checkoutRequestRow
	if err := r.db.SelectContext(
		ctx, &rows,
		r.db.Rebind(`SELECT * FROM checkout_requests WHERE offer_id = ? ORDER BY token_id`),
		offerId,
	); err != nil {
		return nil, fmt.Errorf("failed to get checkout requests of offer %s: %w", offerId, err)
	}
	requests := make([]domain.CheckoutRequest, 0, len(rows))
	for _, row := range rows {
		request, err := row.toCheckoutRequest()
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, nil
}

func (r *LedgerRepository) GetCustodianUpdateRequest(
	ctx context.Context, subject domain.SubjectId,
) (*domain.CustodianUpdateRequest, error) {
	var row custodianUpdateRow
	err := r.db.GetContext(
		ctx, &row, r.db.Rebind(`SELECT * FROM custodian_updates WHERE subject = ?`),
		subject.String(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get custodian update request %s: %w", subject, err)
	}
	request, err := row.toCustodianUpdate()
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *LedgerRepository) GetAuction(
	ctx context.Context, offerId string,
) (*domain.FractionAuction, error) {
	var row auctionRow
	err := r.db.GetContext(
		ctx, &row, r.db.Rebind(`SELECT * FROM auctions WHERE offer_id = ?`), offerId,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auction %s: %w", offerId, err)
	}
	auction := row.toAuction()
	return &auction, nil
}

func (r *LedgerRepository) GetPendingAuctions(
	ctx context.Context,
) ([]domain.FractionAuction, error) {
	var rows []auctionRow
	if err := r.db.SelectContext(
		ctx, &rows, `SELECT * FROM auctions WHERE end_time > 0 ORDER BY end_time`,
	); err != nil {
		return nil, fmt.Errorf("failed to get pending auctions: %w", err)
	}
	auctions := make([]domain.FractionAuction, 0, len(rows))
	for _, row := range rows {
		auctions = append(auctions, row.toAuction())
	}
	return auctions, nil
}

func (r *LedgerRepository) Commit(ctx context.Context, changes domain.Changeset) error {
	if changes.IsEmpty() {
		return nil
	}

	vaults := make([]vaultRow, 0, len(changes.Vaults))
	for _, vault := range changes.Vaults {
		row, err := toVaultRow(vault)
		if err != nil {
			return err
		}
		vaults = append(vaults, row)
	}

	txBody := func(tx *sqlx.Tx) error {
		for _, offer := range changes.Offers {
			if _, err := tx.NamedExecContext(ctx, upsertOfferQuery, toOfferRow(offer)); err != nil {
				return fmt.Errorf("failed to upsert offer %s: %w", offer.Id, err)
			}
		}
		for _, row := range vaults {
			if _, err := tx.NamedExecContext(ctx, upsertVaultQuery, row); err != nil {
				return fmt.Errorf("failed to upsert vault %s: %w", row.Subject, err)
			}
		}
		for _, request := range changes.CheckoutRequests {
			if _, err := tx.NamedExecContext(
				ctx, upsertCheckoutRequestQuery, toCheckoutRequestRow(request),
			); err != nil {
				return fmt.Errorf("failed to upsert checkout request %s: %w", request.TokenId, err)
			}
		}
		for _, subject := range changes.DeletedCustodianUpdates {
			if _, err := tx.ExecContext(
				ctx, tx.Rebind(deleteCustodianUpdateQuery), subject.String(),
			); err != nil {
				return fmt.Errorf("failed to delete custodian update %s: %w", subject, err)
			}
		}
		for _, request := range changes.CustodianUpdates {
			if _, err := tx.NamedExecContext(
				ctx, upsertCustodianUpdateQuery, toCustodianUpdateRow(request),
			); err != nil {
				return fmt.Errorf("failed to upsert custodian update %s: %w", request.Subject, err)
			}
		}
		for _, auction := range changes.Auctions {
			if _, err := tx.NamedExecContext(
				ctx, upsertAuctionQuery, toAuctionRow(auction),
			); err != nil {
				return fmt.Errorf("failed to upsert auction %s: %w", auction.OfferId, err)
			}
		}
		return nil
	}

	return execTx(ctx, r.db, txBody)
}

func (r *LedgerRepository) Close() {
	r.closeOnce.Do(func() {
		//nolint:errcheck
		r.db.Close()
	})
}

func toOfferRow(o domain.Offer) offerRow {
	return offerRow{
		Id:             o.Id,
		SellerId:       o.SellerId,
		CustodianId:    o.CustodianId,
		FeeAmount:      toDbAmount(o.CustodianFee.Amount),
		FeePeriod:      o.CustodianFee.Period,
		ExchangeToken:  o.ExchangeToken,
		ItemCount:      int64(o.ItemCount),
		FirstItemIndex: int64(o.FirstItemIndex),
		LastPrice:      toDbAmount(o.LastPrice),
		CreatedAt:      o.CreatedAt,
	}
}

func (row offerRow) toOffer() domain.Offer {
	return domain.Offer{
		Id:          row.Id,
		SellerId:    row.SellerId,
		CustodianId: row.CustodianId,
		CustodianFee: domain.FeeTerms{
			Amount: fromDbAmount(row.FeeAmount),
			Period: row.FeePeriod,
		},
		ExchangeToken:  row.ExchangeToken,
		ItemCount:      uint32(row.ItemCount),
		FirstItemIndex: uint32(row.FirstItemIndex),
		LastPrice:      fromDbAmount(row.LastPrice),
		CreatedAt:      row.CreatedAt,
	}
}

func toVaultRow(v domain.Vault) (vaultRow, error) {
	row := vaultRow{
		Subject:       v.Subject.String(),
		OfferId:       v.Subject.OfferId,
		Balance:       toDbAmount(v.Balance),
		AccrualCursor: v.AccrualCursor,
		Items:         int64(v.Items),
		UpdatedAt:     v.UpdatedAt,
	}
	if v.Fractions != nil {
		buf, err := json.Marshal(v.Fractions)
		if err != nil {
			return vaultRow{}, fmt.Errorf("failed to encode fraction config of %s: %w", v.Subject, err)
		}
		row.Fractions = sql.NullString{String: string(buf), Valid: true}
	}
	return row, nil
}

func (row vaultRow) toVault() (domain.Vault, error) {
	subject, err := domain.ParseSubjectId(row.Subject)
	if err != nil {
		return domain.Vault{}, fmt.Errorf("malformed vault subject %s in storage: %w", row.Subject, err)
	}
	vault := domain.Vault{
		Subject:       subject,
		Balance:       fromDbAmount(row.Balance),
		AccrualCursor: row.AccrualCursor,
		Items:         uint32(row.Items),
		UpdatedAt:     row.UpdatedAt,
	}
	if row.Fractions.Valid {
		var cfg domain.FractionConfig
		if err := json.Unmarshal([]byte(row.Fractions.String), &cfg); err != nil {
			return domain.Vault{}, fmt.Errorf(
				"malformed fraction config of %s in storage: %w", row.Subject, err,
			)
		}
		vault.Fractions = &cfg
	}
	return vault, nil
}

func toCheckoutRequestRow(r domain.CheckoutRequest) checkoutRequestRow {
	return checkoutRequestRow{
		TokenId:   r.TokenId.String(),
		OfferId:   r.TokenId.OfferId,
		Status:    int64(r.Status),
		Buyer:     r.Buyer,
		TaxAmount: toDbAmount(r.TaxAmount),
		UpdatedAt: r.UpdatedAt,
	}
}

func (row checkoutRequestRow) toCheckoutRequest() (domain.CheckoutRequest, error) {
	tokenId, err := domain.ParseSubjectId(row.TokenId)
	if err != nil {
		return domain.CheckoutRequest{}, fmt.Errorf(
			"malformed token id %s in storage: %w", row.TokenId, err,
		)
	}
	return domain.CheckoutRequest{
		TokenId:   tokenId,
		Status:    domain.CheckoutStatus(row.Status),
		Buyer:     row.Buyer,
		TaxAmount: fromDbAmount(row.TaxAmount),
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func toCustodianUpdateRow(r domain.CustodianUpdateRequest) custodianUpdateRow {
	return custodianUpdateRow{
		Subject:          r.Subject.String(),
		Status:           int64(r.Status),
		NewCustodianId:   r.NewCustodianId,
		FeeAmount:        toDbAmount(r.NewCustodianFee.Amount),
		FeePeriod:        r.NewCustodianFee.Period,
		RequestTimestamp: r.RequestTimestamp,
		KeepExisting:     r.KeepExistingParameters,
		IsEmergency:      r.IsEmergencyUpdate,
		Requester:        r.Requester,
	}
}

func (row custodianUpdateRow) toCustodianUpdate() (domain.CustodianUpdateRequest, error) {
	subject, err := domain.ParseSubjectId(row.Subject)
	if err != nil {
		return domain.CustodianUpdateRequest{}, fmt.Errorf(
			"malformed custodian update subject %s in storage: %w", row.Subject, err,
		)
	}
	return domain.CustodianUpdateRequest{
		Subject:        subject,
		Status:         domain.CustodianUpdateStatus(row.Status),
		NewCustodianId: row.NewCustodianId,
		NewCustodianFee: domain.FeeTerms{
			Amount: fromDbAmount(row.FeeAmount),
			Period: row.FeePeriod,
		},
		RequestTimestamp:       row.RequestTimestamp,
		KeepExistingParameters: row.KeepExisting,
		IsEmergencyUpdate:      row.IsEmergency,
		Requester:              row.Requester,
	}, nil
}

func toAuctionRow(a domain.FractionAuction) auctionRow {
	return auctionRow{
		OfferId:            a.OfferId,
		Round:              int64(a.Round),
		StartedAt:          a.StartedAt,
		EndTime:            a.EndTime,
		MaxBid:             toDbAmount(a.MaxBid),
		BidderId:           a.BidderId,
		AvailableFractions: toDbAmount(a.AvailableFractions),
	}
}

func (row auctionRow) toAuction() domain.FractionAuction {
	return domain.FractionAuction{
		OfferId:            row.OfferId,
		Round:              uint32(row.Round),
		StartedAt:          row.StartedAt,
		EndTime:            row.EndTime,
		MaxBid:             fromDbAmount(row.MaxBid),
		BidderId:           row.BidderId,
		AvailableFractions: fromDbAmount(row.AvailableFractions),
	}
}
