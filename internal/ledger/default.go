package ledger

import (
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type DefaultLedger struct {
	db  *sql.DB
	run string
}

func Open(path string) (*DefaultLedger, error) {
	db, err := sql.Open("sqlite3", path)
	if nil != err {
		return nil, err
	}
	// sqlite serializes writers, a single connection avoids busy errors
	db.SetMaxOpenConns(1)

	initStatement := `
	create table if not exists previews
	  (
		  id integer not null primary key,
		  run text not null,
		  chart text not null,
		  sum text not null,
		  output text not null,
		  created integer not null
	  );
	create index if not exists previews_chart on previews(chart);
	`
	if _, err := db.Exec(initStatement); nil != err {
		db.Close()
		return nil, fmt.Errorf("unable to initialise ledger %s: %w", path, err)
	}

	return &DefaultLedger{db: db, run: uuid.NewString()}, nil
}

// Run identifies the entries recorded by this process.
func (l *DefaultLedger) Run() string {
	return l.run
}

func (l *DefaultLedger) Close() error {
	return l.db.Close()
}

// Sum hashes the content of a chart file.
func Sum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if nil != err {
		return "", err
	}
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func (l *DefaultLedger) last(chart string) (*Entry, error) {
	var e Entry
	err := l.db.QueryRow(
		"select run, chart, sum, output from previews where chart = ? order by id desc limit 1",
		chart,
	).Scan(&e.Run, &e.Chart, &e.Sum, &e.Output)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if nil != err {
		return nil, err
	}
	return &e, nil
}

func (l *DefaultLedger) Unchanged(chart, sum, output string) (bool, error) {
	e, err := l.last(chart)
	if nil != err || nil == e {
		return false, err
	}
	return e.Sum == sum && e.Output == output, nil
}

func (l *DefaultLedger) Record(chart, sum, output string) error {
	_, err := l.db.Exec(
		"insert into previews(run, chart, sum, output, created) values(?, ?, ?, ?, ?)",
		l.run, chart, sum, output, time.Now().Unix(),
	)
	if nil != err {
		return fmt.Errorf("unable to record %s: %w", chart, err)
	}
	return nil
}
