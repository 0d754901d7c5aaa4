// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/weddingcart/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const maxTxRetries = 3

var (
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет транзакцию при конфликтах сериализации, взаимоблокировках и обрывах соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(maxTxRetries,
		retry.WithCappedDuration(5*time.Second, retry.NewExponential(time.Second)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id`,
		email, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetPackage возвращает пакет услуг вместе с поставщиком.
func (r *PostgresRepository) GetPackage(ctx context.Context, packageID string) (*model.Package, *model.Vendor, error) {
	var p model.Package
	var v model.Vendor
	err := r.pool.QueryRow(ctx,
		`SELECT p.id, p.service_type, p.name, p.base_price, v.id, v.name, v.stripe_account_id
		 FROM packages p
		 JOIN vendors v ON v.id = p.vendor_id
		 WHERE p.id = $1`,
		packageID,
	).Scan(&p.ID, &p.ServiceType, &p.Name, &p.BasePrice, &v.ID, &v.Name, &v.StripeAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get package: %w", err)
	}
	return &p, &v, nil
}

// GetVenue возвращает площадку по идентификатору.
func (r *PostgresRepository) GetVenue(ctx context.Context, venueID string) (*model.Venue, error) {
	var v model.Venue
	err := r.pool.QueryRow(ctx,
		`SELECT id, name FROM venues WHERE id = $1`,
		venueID,
	).Scan(&v.ID, &v.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get venue: %w", err)
	}
	return &v, nil
}

// GetVendorPremium возвращает фиксированную надбавку поставщика в центах.
func (r *PostgresRepository) GetVendorPremium(ctx context.Context, vendorID string) (int64, error) {
	var amount int64
	err := r.pool.QueryRow(ctx,
		`SELECT premium_amount FROM vendor_premiums WHERE vendor_id = $1`,
		vendorID,
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("get vendor premium: %w", err)
	}
	return amount, nil
}

// GetVenueServiceArea возвращает зону обслуживания, к которой отнесена площадка.
func (r *PostgresRepository) GetVenueServiceArea(ctx context.Context, venueID string) (string, error) {
	var area *string
	err := r.pool.QueryRow(ctx,
		`SELECT service_area_id FROM venues WHERE id = $1`,
		venueID,
	).Scan(&area)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get venue service area: %w", err)
	}
	if area == nil {
		return "", ErrNotFound
	}
	return *area, nil
}

// GetTravelFee возвращает выездной сбор поставщика для зоны обслуживания.
func (r *PostgresRepository) GetTravelFee(ctx context.Context, vendorID, serviceAreaID string) (int64, error) {
	var fee int64
	err := r.pool.QueryRow(ctx,
		`SELECT travel_fee FROM vendor_service_areas WHERE vendor_id = $1 AND service_area_id = $2`,
		vendorID, serviceAreaID,
	).Scan(&fee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("get travel fee: %w", err)
	}
	return fee, nil
}

// GetCoupon возвращает промокод.
func (r *PostgresRepository) GetCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	var c model.Coupon
	err := r.pool.QueryRow(ctx,
		`SELECT code, discount_percent::float8, discount_amount, expires_at
		 FROM coupons
		 WHERE code = $1`,
		code,
	).Scan(&c.Code, &c.DiscountPercent, &c.DiscountAmount, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return &c, nil
}

// GetReferralCode возвращает реферальный код вместе с именем поставщика.
func (r *PostgresRepository) GetReferralCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	var rc model.ReferralCode
	err := r.pool.QueryRow(ctx,
		`SELECT rc.code, rc.vendor_id, v.name, rc.discount_amount, rc.expires_at
		 FROM vendor_referral_codes rc
		 JOIN vendors v ON v.id = rc.vendor_id
		 WHERE rc.code = $1`,
		code,
	).Scan(&rc.Code, &rc.VendorID, &rc.VendorName, &rc.DiscountAmount, &rc.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get referral code: %w", err)
	}
	return &rc, nil
}

// GetContractTemplate возвращает шаблон договора для типа услуг.
func (r *PostgresRepository) GetContractTemplate(ctx context.Context, serviceType string) (*model.ContractTemplate, error) {
	var t model.ContractTemplate
	err := r.pool.QueryRow(ctx,
		`SELECT service_type, content FROM contract_templates WHERE service_type = $1`,
		serviceType,
	).Scan(&t.ServiceType, &t.Content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get contract template: %w", err)
	}
	return &t, nil
}

// SaveContracts сохраняет подписанные договоры одной транзакцией.
func (r *PostgresRepository) SaveContracts(ctx context.Context, contracts []model.Contract) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, c := range contracts {
			_, err := tx.Exec(ctx,
				`INSERT INTO contracts (user_id, payment_intent_id, service_type, content, signature, signed_at)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (payment_intent_id, service_type) DO NOTHING`,
				c.UserID, c.PaymentIntentID, c.ServiceType, c.TemplateContent, c.SignedName, c.SignedAt,
			)
			if err != nil {
				return fmt.Errorf("insert contract: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetBookingsByIDs возвращает подтверждённые бронирования с указанными идентификаторами.
func (r *PostgresRepository) GetBookingsByIDs(ctx context.Context, ids []string) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, user_id, payment_intent_id, vendor_id, package_id, service_type, event_date,
		        total_amount, deposit_amount, final_payment, status, created_at
		 FROM bookings
		 WHERE id = ANY($1::uuid[]) AND status = $2
		 ORDER BY created_at`,
		ids, string(model.BookingStatusConfirmed),
	)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	defer rows.Close()

	var res []model.Booking
	for rows.Next() {
		var (
			b      model.Booking
			status string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.PaymentIntentID, &b.VendorID, &b.PackageID, &b.ServiceType,
			&b.EventDate, &b.TotalAmount, &b.DepositAmount, &b.FinalPayment, &status, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.Status = model.BookingStatus(status)
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateBookings сохраняет бронирования. Уже существующие идентификаторы пропускаются.
func (r *PostgresRepository) CreateBookings(ctx context.Context, bookings []model.Booking) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, b := range bookings {
			_, err := tx.Exec(ctx,
				`INSERT INTO bookings (id, user_id, payment_intent_id, vendor_id, package_id, service_type,
				                       event_date, total_amount, deposit_amount, final_payment, status)
				 VALUES ($1::text::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				 ON CONFLICT (id) DO NOTHING`,
				b.ID, b.UserID, b.PaymentIntentID, b.VendorID, b.PackageID, b.ServiceType,
				b.EventDate, b.TotalAmount, b.DepositAmount, b.FinalPayment, string(b.Status),
			)
			if err != nil {
				return fmt.Errorf("insert booking: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ConfirmBookings переводит ожидающие бронирования намерения в статус CONFIRMED
// и возвращает число подтверждённых записей.
func (r *PostgresRepository) ConfirmBookings(ctx context.Context, intentID string) (int64, error) {
	var confirmed int64
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE bookings SET status = $1
			 WHERE payment_intent_id = $2 AND status = $3`,
			string(model.BookingStatusConfirmed), intentID, string(model.BookingStatusPending),
		)
		if err != nil {
			return fmt.Errorf("confirm bookings: %w", err)
		}
		confirmed = tag.RowsAffected()
		return nil
	})
	return confirmed, err
}
