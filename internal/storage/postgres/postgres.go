package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
	pgErrCheckViolation  = "23514" // check_violation
)

const balanceRangeConstraint = "balances_credited_range"

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

// isBalanceOverflowError checks if a balance credit left the 256-bit range.
func isBalanceOverflowError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrCheckViolation && pgErr.ConstraintName == balanceRangeConstraint
	}
	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// toNumeric encodes an amount for a NUMERIC(78,0) column.
func toNumeric(a *uint256.Int) pgtype.Numeric {
	return pgtype.Numeric{Int: a.ToBig(), Exp: 0, Valid: true}
}

// fromNumeric decodes a NUMERIC(78,0) column. Postgres may return
// integers with a positive exponent, e.g. 97 * 10^7.
func fromNumeric(n pgtype.Numeric) (uint256.Int, error) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return uint256.Int{}, fmt.Errorf("numeric is not a finite value")
	}

	v := new(big.Int).Set(n.Int)
	if n.Exp > 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil)
		v.Mul(v, scale)
	} else if n.Exp < 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil)
		var rem big.Int
		v.QuoRem(v, scale, &rem)
		if rem.Sign() != 0 {
			return uint256.Int{}, fmt.Errorf("numeric %s has a fractional part", n.Int.String())
		}
	}

	if v.Sign() < 0 {
		return uint256.Int{}, fmt.Errorf("numeric %s is negative", v.String())
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return uint256.Int{}, fmt.Errorf("numeric %s exceeds 256 bits", v.String())
	}
	return *u, nil
}
