package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/wb-order-pipeline/internal/domain"
)

const (
	upsertOrderSQL = `
INSERT INTO orders (order_uid, track_number, entry, locale, internal_signature, customer_id,
                    delivery_service, shardkey, sm_id, date_created, oof_shard)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (order_uid) DO UPDATE SET
    track_number = EXCLUDED.track_number,
    entry = EXCLUDED.entry,
    locale = EXCLUDED.locale,
    internal_signature = EXCLUDED.internal_signature,
    customer_id = EXCLUDED.customer_id,
    delivery_service = EXCLUDED.delivery_service,
    shardkey = EXCLUDED.shardkey,
    sm_id = EXCLUDED.sm_id,
    date_created = EXCLUDED.date_created,
    oof_shard = EXCLUDED.oof_shard`

	upsertDeliverySQL = `
INSERT INTO deliveries (order_uid, name, phone, zip, city, address, region, email)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (order_uid) DO UPDATE SET
    name = EXCLUDED.name,
    phone = EXCLUDED.phone,
    zip = EXCLUDED.zip,
    city = EXCLUDED.city,
    address = EXCLUDED.address,
    region = EXCLUDED.region,
    email = EXCLUDED.email`

	upsertPaymentSQL = `
INSERT INTO payments (order_uid, transaction, request_id, currency, provider, amount, payment_dt,
                      bank, delivery_cost, goods_total, custom_fee)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (order_uid) DO UPDATE SET
    transaction = EXCLUDED.transaction,
    request_id = EXCLUDED.request_id,
    currency = EXCLUDED.currency,
    provider = EXCLUDED.provider,
    amount = EXCLUDED.amount,
    payment_dt = EXCLUDED.payment_dt,
    bank = EXCLUDED.bank,
    delivery_cost = EXCLUDED.delivery_cost,
    goods_total = EXCLUDED.goods_total,
    custom_fee = EXCLUDED.custom_fee`

	deleteItemsSQL = `DELETE FROM items WHERE order_uid = $1`

	selectOrderSQL = `
SELECT order_uid, track_number, entry, locale, internal_signature, customer_id,
       delivery_service, shardkey, sm_id, date_created, oof_shard
FROM orders WHERE order_uid = $1`

	selectDeliverySQL = `
SELECT name, phone, zip, city, address, region, email
FROM deliveries WHERE order_uid = $1`

	selectPaymentSQL = `
SELECT transaction, request_id, currency, provider, amount, payment_dt,
       bank, delivery_cost, goods_total, custom_fee
FROM payments WHERE order_uid = $1`

	selectItemsSQL = `
SELECT chrt_id, track_number, price, rid, name, sale, size, total_price, nm_id, brand, status
FROM items WHERE order_uid = $1 ORDER BY position`

	selectRecentIDsSQL = `SELECT order_uid FROM orders ORDER BY date_created DESC, order_uid LIMIT $1`
)

var itemColumns = []string{
	"order_uid", "position", "chrt_id", "track_number", "price", "rid", "name",
	"sale", "size", "total_price", "nm_id", "brand", "status",
}

// PostgresOrderRepo — шлюз хранения составного заказа в четырёх связанных таблицах.
type PostgresOrderRepo struct {
	Pool    *pgxpool.Pool
	Metrics domain.Metrics
}

func NewPostgresOrderRepo(pool *pgxpool.Pool, metrics domain.Metrics) *PostgresOrderRepo {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &PostgresOrderRepo{Pool: pool, Metrics: metrics}
}

// Save — заголовок, доставка, оплата и позиции пишутся одной транзакцией.
// Позиции прежней версии заказа удаляются, так что повтор — полная замена.
func (r *PostgresOrderRepo) Save(ctx context.Context, o domain.Order) error {
	// заказ, прошедший проверку, помещается в колонки схемы; иначе pgx
	// отказал бы ещё на кодировании параметров, до сервера
	if err := domain.Validate(o); err != nil {
		return err
	}
	start := time.Now()
	err := r.save(ctx, o)
	r.Metrics.ObserveStorage("save", time.Since(start), err)
	if err != nil {
		return classifySaveError(err)
	}
	return nil
}

func (r *PostgresOrderRepo) save(ctx context.Context, o domain.Order) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	// после Commit откат вернёт ErrTxClosed, это не ошибка
	defer func() { _ = tx.Rollback(ctx) }()

	d, p := o.Delivery, o.Payment
	batch := &pgx.Batch{}
	batch.Queue(upsertOrderSQL, o.OrderUID, o.TrackNumber, o.Entry, o.Locale, o.InternalSign,
		o.CustomerID, o.DeliverySrv, o.Shardkey, o.SmID, o.DateCreated, o.OofShard)
	batch.Queue(upsertDeliverySQL, o.OrderUID, d.Name, d.Phone, d.Zip, d.City, d.Address, d.Region, d.Email)
	batch.Queue(upsertPaymentSQL, o.OrderUID, p.Transaction, p.RequestID, p.Currency, p.Provider,
		p.Amount, p.PaymentDT, p.Bank, p.DeliveryCost, p.GoodsTotal, p.CustomFee)
	batch.Queue(deleteItemsSQL, o.OrderUID)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert order %s: %w", o.OrderUID, err)
	}

	if len(o.Items) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"items"}, itemColumns,
			pgx.CopyFromSlice(len(o.Items), func(i int) ([]any, error) {
				it := o.Items[i]
				return []any{o.OrderUID, i, it.ChrtID, it.TrackNumber, it.Price, it.RID, it.Name,
					it.Sale, it.Size, it.TotalPrice, it.NmID, it.Brand, it.Status}, nil
			}))
		if err != nil {
			return fmt.Errorf("insert items of %s: %w", o.OrderUID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// classifySaveError отделяет ошибки данных (SQLSTATE 22xxx, 23xxx), которые
// повтор не исправит, от сбоев инфраструктуры.
func classifySaveError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")) {
		return &domain.ValidationError{Reason: "rejected by storage", Err: err}
	}
	return &domain.PersistenceError{Op: "save", Err: err}
}

// FindByID читает все четыре части заказа в одном снимке данных, поэтому
// читатель видит либо старую, либо новую версию целиком.
func (r *PostgresOrderRepo) FindByID(ctx context.Context, id string) (domain.Order, error) {
	start := time.Now()
	o, err := r.find(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		r.Metrics.ObserveStorage("find", time.Since(start), nil)
		return domain.Order{}, err
	}
	r.Metrics.ObserveStorage("find", time.Since(start), err)
	if err != nil {
		return domain.Order{}, &domain.PersistenceError{Op: "find", Err: err}
	}
	return o, nil
}

func (r *PostgresOrderRepo) find(ctx context.Context, id string) (domain.Order, error) {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var o domain.Order
	err = tx.QueryRow(ctx, selectOrderSQL, id).Scan(&o.OrderUID, &o.TrackNumber, &o.Entry, &o.Locale,
		&o.InternalSign, &o.CustomerID, &o.DeliverySrv, &o.Shardkey, &o.SmID, &o.DateCreated, &o.OofShard)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order %s: %w", id, err)
	}
	o.DateCreated = o.DateCreated.UTC()

	var d domain.Delivery
	err = tx.QueryRow(ctx, selectDeliverySQL, id).Scan(&d.Name, &d.Phone, &d.Zip, &d.City,
		&d.Address, &d.Region, &d.Email)
	if err != nil {
		return domain.Order{}, fmt.Errorf("select delivery %s: %w", id, err)
	}
	o.Delivery = &d

	var p domain.Payment
	err = tx.QueryRow(ctx, selectPaymentSQL, id).Scan(&p.Transaction, &p.RequestID, &p.Currency,
		&p.Provider, &p.Amount, &p.PaymentDT, &p.Bank, &p.DeliveryCost, &p.GoodsTotal, &p.CustomFee)
	if err != nil {
		return domain.Order{}, fmt.Errorf("select payment %s: %w", id, err)
	}
	o.Payment = &p

	rows, err := tx.Query(ctx, selectItemsSQL, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("select items %s: %w", id, err)
	}
	defer rows.Close()
	o.Items = []domain.Item{}
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ChrtID, &it.TrackNumber, &it.Price, &it.RID, &it.Name, &it.Sale,
			&it.Size, &it.TotalPrice, &it.NmID, &it.Brand, &it.Status); err != nil {
			return domain.Order{}, fmt.Errorf("scan item of %s: %w", id, err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("select items %s: %w", id, err)
	}
	return o, nil
}

func (r *PostgresOrderRepo) ListRecentIDs(ctx context.Context, limit int) ([]string, error) {
	start := time.Now()
	// NULL в LIMIT означает выборку без ограничения
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := r.Pool.Query(ctx, selectRecentIDsSQL, lim)
	var ids []string
	if err == nil {
		ids, err = pgx.CollectRows(rows, pgx.RowTo[string])
	}
	r.Metrics.ObserveStorage("list_recent", time.Since(start), err)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list recent", Err: err}
	}
	return ids, nil
}

var _ domain.OrderRepository = (*PostgresOrderRepo)(nil)
