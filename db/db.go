package db

import (
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"acorn/config"
	"acorn/log"

	"github.com/go-sql-driver/mysql"
)

var (
	db     *sql.DB
	locker uint32
	// reconnectWait is the pause between reconnect attempts.
	reconnectWait = 5 * time.Second
)

// Init connects to the configured mysql database.
func Init() {
	var err error

	db, err = sql.Open("mysql", config.GetDbConnStr())
	if err != nil {
		panic(err)
	}
}

// InitWith uses an already opened database.
func InitWith(conn *sql.DB) {
	db = conn
}

func reconnect() {
	if !atomic.CompareAndSwapUint32(&locker, 0, 1) {
		for {
			// Lock was held by others, wait till lock released.
			time.Sleep(20 * time.Millisecond)
			// Lock was released.
			if atomic.LoadUint32(&locker) != 1 {
				return
			}
		}
	}

	defer atomic.StoreUint32(&locker, 0)

	for {
		log.Printf("Try Reconnecting to database...")
		conn, err := sql.Open("mysql", config.GetDbConnStr())
		if err == nil {
			if err = conn.Ping(); err == nil {
				db = conn
				return
			}
			conn.Close()
		}

		log.Printf("Wait for few seconds to reconnect again")
		time.Sleep(reconnectWait)
	}
}

// reconnectDB is replaced in tests.
var reconnectDB = reconnect

func wrappedQuery(query string, args ...interface{}) (*sql.Rows, error) {
	for {
		rows, err := db.Query(query, args...)
		if err == nil {
			return rows, err
		}

		if !connErr(err) {
			return nil, err
		}

		reconnectDB()
	}
}

// transact runs txFunc in a transaction, starting over on a fresh
// connection when the connection drops.
func transact(txFunc func(*sql.Tx) error) error {
	for {
		err := transactOnce(txFunc)
		if err == nil || !connErr(err) {
			return err
		}

		reconnectDB()
	}
}

// transactOnce commits when txFunc succeeds and rolls back otherwise.
func transactOnce(txFunc func(*sql.Tx) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	return txFunc(tx)
}

func connErr(err error) bool {
	if err == nil {
		return false
	}

	log.Println(err)

	if errors.Is(err, mysql.ErrInvalidConn) ||
		strings.HasSuffix(err.Error(), "operation timed out") ||
		strings.HasSuffix(err.Error(), "Server shutdown in progress") ||
		strings.HasPrefix(err.Error(), "Error 1290") {
		return true
	}

	return false
}
