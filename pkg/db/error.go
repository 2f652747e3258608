package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrorKind groups driver errors the billing code reacts to the same way on
// every dialect.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindDuplicateKey
	KindLockTimeout
	KindSerialization
	KindDeadlock
)

var pgKinds = map[string]ErrorKind{
	"23505": KindDuplicateKey,
	"55P03": KindLockTimeout,
	"40001": KindSerialization,
	"40P01": KindDeadlock,
}

var mysqlKinds = map[uint16]ErrorKind{
	1062: KindDuplicateKey,
	1205: KindLockTimeout,
	1213: KindDeadlock,
}

// Classify maps err from any supported driver to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return KindDuplicateKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgKinds[pgErr.Code]
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlKinds[myErr.Number]
	}
	// The pure-go sqlite driver only exposes these as text.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return KindDuplicateKey
	case strings.Contains(msg, "database is locked"):
		return KindLockTimeout
	}
	return KindOther
}

func IsDuplicateKeyErr(err error) bool { return Classify(err) == KindDuplicateKey }

func IsLockTimeoutErr(err error) bool { return Classify(err) == KindLockTimeout }

// IsSerializationErr also covers deadlocks: both abort the transaction and
// succeed when it is retried.
func IsSerializationErr(err error) bool {
	kind := Classify(err)
	return kind == KindSerialization || kind == KindDeadlock
}
