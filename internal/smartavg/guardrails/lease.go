package guardrails

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"fmt"

	perr "smartavg/internal/platform/errors"
	"smartavg/internal/repokit"
	"smartavg/internal/smartavg/domain"
)

// pgAdvisoryLock implements domain.AdvisoryLock with a transaction-scoped
// Postgres advisory lock keyed on (year, quarter), guarding against two
// runs concurrently writing the same section_id partition
type pgAdvisoryLock struct {
	tx repokit.TxRunner
}

// NewPGAdvisoryLock binds domain.AdvisoryLock to tx
func NewPGAdvisoryLock(tx repokit.TxRunner) domain.AdvisoryLock { return &pgAdvisoryLock{tx: tx} }

// WithLock runs do while holding the lock, or returns an error without
// running do if another run already holds it for this time group
func (l *pgAdvisoryLock) WithLock(ctx context.Context, tg domain.TimeGroup, do func(ctx context.Context) error) error {
	key := advisoryKey(tg)

	return l.tx.Tx(ctx, func(q repokit.Queryer) error {
		rows, err := q.Query(ctx, `SELECT pg_try_advisory_xact_lock($1)`, key)
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodePersistence, "acquire time group lock")
		}
		defer rows.Close()

		var ok bool
		if rows.Next() {
			if err := rows.Scan(&ok); err != nil {
				return perr.Wrap(err, perr.ErrorCodePersistence, "scan lock result")
			}
		}
		if !ok {
			return perr.Newf(perr.ErrorCodePersistence, "time group %d/%s is already locked by another run", tg.StartYear, tg.Quarter)
		}

		return do(ctx)
	})
}

func advisoryKey(tg domain.TimeGroup) int64 {
	sum := sha1.Sum([]byte(fmt.Sprintf("smartavg:%d:%s", tg.StartYear, tg.Quarter)))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
