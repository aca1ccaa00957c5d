package db

import (
	"database/sql"
	"fmt"
	"strings"

	"acorn/addr"
	"acorn/tx"
)

const walletTxTable = "CREATE TABLE IF NOT EXISTS `wallet_tx` (" +
	"`id` BIGINT UNSIGNED NOT NULL AUTO_INCREMENT," +
	"`owner` VARCHAR(44) NOT NULL," +
	"`signature` VARCHAR(88) NOT NULL," +
	"`direction` VARCHAR(8) NOT NULL," +
	"`asset_id` VARCHAR(32) NOT NULL," +
	"`amount` BIGINT UNSIGNED NOT NULL," +
	"`counterparty` VARCHAR(44) NOT NULL DEFAULT ''," +
	"`timestamp` BIGINT NOT NULL," +
	"`status` VARCHAR(10) NOT NULL," +
	"PRIMARY KEY (`id`)," +
	"UNIQUE KEY `owner_signature` (`owner`, `signature`)," +
	"KEY `owner_timestamp` (`owner`, `timestamp`)" +
	") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"

// Migrate creates the tables used by the history store.
func Migrate() error {
	_, err := db.Exec(walletTxTable)
	return err
}

// SaveTransactions upserts the classified history of owner.
// A row with the same signature is replaced, so a status change is persisted.
func SaveTransactions(owner addr.Address, txs []tx.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	return transact(func(trans *sql.Tx) error {
		return insertTransactions(trans, owner.String(), txs)
	})
}

func insertTransactions(trans *sql.Tx, owner string, txs []tx.Transaction) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO `wallet_tx` (`owner`, `signature`, `direction`, `asset_id`, `amount`, `counterparty`, `timestamp`, `status`) VALUES ")

	args := make([]interface{}, 0, len(txs)*8)
	for i, t := range txs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, owner, t.Signature, t.Direction.String(), t.AssetID, t.Amount, t.Counterparty, t.Timestamp, t.Status.String())
	}

	sb.WriteString(" ON DUPLICATE KEY UPDATE `direction` = VALUES(`direction`), `asset_id` = VALUES(`asset_id`), `amount` = VALUES(`amount`), `counterparty` = VALUES(`counterparty`), `timestamp` = VALUES(`timestamp`), `status` = VALUES(`status`)")

	_, err := trans.Exec(sb.String(), args...)
	return err
}

// GetTransactions returns the stored history of owner, newest first.
func GetTransactions(owner addr.Address, limit int) ([]tx.Transaction, error) {
	const query = "SELECT `signature`, `direction`, `asset_id`, `amount`, `counterparty`, `timestamp`, `status` FROM `wallet_tx` WHERE `owner` = ? ORDER BY `timestamp` DESC, `id` DESC LIMIT ?"

	rows, err := wrappedQuery(query, owner.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []tx.Transaction{}

	for rows.Next() {
		var t tx.Transaction
		var direction, status string

		err := rows.Scan(
			&t.Signature,
			&direction,
			&t.AssetID,
			&t.Amount,
			&t.Counterparty,
			&t.Timestamp,
			&status,
		)
		if err != nil {
			return nil, err
		}

		if t.Direction, err = parseDirection(direction); err != nil {
			return nil, err
		}
		if t.Status, err = parseStatus(status); err != nil {
			return nil, err
		}

		result = append(result, t)
	}

	return result, rows.Err()
}

func parseDirection(s string) (tx.Direction, error) {
	for _, d := range []tx.Direction{tx.Send, tx.Receive, tx.Unknown} {
		if d.String() == s {
			return d, nil
		}
	}
	return tx.Unknown, fmt.Errorf("unknown direction %q", s)
}

func parseStatus(s string) (tx.Status, error) {
	for _, st := range []tx.Status{tx.Confirmed, tx.Pending, tx.Failed} {
		if st.String() == s {
			return st, nil
		}
	}
	return tx.Confirmed, fmt.Errorf("unknown status %q", s)
}
