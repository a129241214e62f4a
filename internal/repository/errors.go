package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/joseph-ayodele/receipt-vision/internal/common"
)

var ErrMigration = errors.New("schema migration failed")

func dbError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}
	return fmt.Errorf("%w: %s: %w", common.ErrDatabase, op, err)
}
