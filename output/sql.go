//
// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package output

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	_ "github.com/lib/pq"
	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/element"
	"github.com/noushi/bmon/misc"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"
)

// SQL stores totals and rates of all attributes in a database, one
// row per attribute and cycle.
//
// Options:
//
//	driver=sqlite|postgres  database driver (default: sqlite)
//	dsn=STR                 data source name (default: bmon.db)
//	prefix=STR              table name prefix (default: bmon_)
//	interval=N              write every N cycles (default: 1)
//	maxwrites=N             maximum rows written per second, 0 is unlimited
//	cache=N                 number of series ids kept in memory (default: 1024)
type SQL struct {
	reg       *element.Registry
	driver    string
	dsn       string
	prefix    string
	interval  int
	maxWrites int
	cacheSize int

	db      *sql.DB
	ids     *lru.Cache
	limiter *rate.Limiter
	cycles  int
	dropped int

	selectSeries, insertSeries, insertSample string
}

func NewSQL(reg *element.Registry) *SQL {
	return &SQL{
		reg:       reg,
		driver:    "sqlite",
		dsn:       "bmon.db",
		prefix:    "bmon_",
		interval:  1,
		cacheSize: 1024,
	}
}

func (s *SQL) Name() string  { return "sql" }
func (s *SQL) Primary() bool { return false }

func (s *SQL) ParseOption(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid value for %s: %q", key, value)
		}
		return n, nil
	}
	var err error
	switch strings.ToLower(key) {
	case "driver":
		switch value {
		case "sqlite", "postgres":
			s.driver = value
		default:
			return fmt.Errorf("unsupported driver %q", value)
		}
	case "dsn":
		s.dsn = value
	case "prefix":
		if misc.SanitizeName(value) != value || strings.ContainsAny(value, "-.") {
			return fmt.Errorf("invalid table prefix %q", value)
		}
		s.prefix = value
	case "interval":
		s.interval, err = atoi()
	case "maxwrites":
		s.maxWrites, err = atoi()
	case "cache":
		s.cacheSize, err = atoi()
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return err
}

func (s *SQL) Probe() bool {
	return s.dsn != "" && s.interval > 0 && s.cacheSize > 0
}

// placeholder returns the n-th (1-based) bind parameter.
func (s *SQL) placeholder(n int) string {
	if s.driver == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *SQL) Init() error {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return err
	}
	if s.driver == "sqlite" {
		// in-memory databases are per connection
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	s.db = db
	if err := s.createTablesIfNotExist(); err != nil {
		db.Close()
		return err
	}

	p := s.placeholder
	s.selectSeries = fmt.Sprintf("SELECT id FROM %[1]sseries WHERE grp = %[2]s AND element = %[3]s AND attribute = %[4]s",
		s.prefix, p(1), p(2), p(3))
	s.insertSeries = fmt.Sprintf("INSERT INTO %[1]sseries (grp, element, attribute, type) VALUES (%[2]s, %[3]s, %[4]s, %[5]s) RETURNING id",
		s.prefix, p(1), p(2), p(3), p(4))
	s.insertSample = fmt.Sprintf("INSERT INTO %[1]ssample (series_id, ts, rx_total, tx_total, rx_rate, tx_rate) VALUES (%[2]s, %[3]s, %[4]s, %[5]s, %[6]s, %[7]s)",
		s.prefix, p(1), p(2), p(3), p(4), p(5), p(6))

	if s.ids, err = lru.New(s.cacheSize); err != nil {
		return err
	}
	if s.maxWrites > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(s.maxWrites), s.maxWrites)
	}
	return nil
}

func (s *SQL) createTablesIfNotExist() error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		id = "SERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS %[1]sseries (
		id %[2]s,
		grp TEXT NOT NULL,
		element TEXT NOT NULL,
		attribute TEXT NOT NULL,
		type TEXT NOT NULL)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS %[1]sseries_idx ON %[1]sseries (grp, element, attribute)`,
		`CREATE TABLE IF NOT EXISTS %[1]ssample (
		series_id INTEGER NOT NULL,
		ts BIGINT NOT NULL,
		rx_total BIGINT NOT NULL,
		tx_total BIGINT NOT NULL,
		rx_rate DOUBLE PRECISION NOT NULL,
		tx_rate DOUBLE PRECISION NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS %[1]ssample_idx ON %[1]ssample (series_id, ts)`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(fmt.Sprintf(st, s.prefix, id)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQL) Shutdown() error {
	if s.db == nil {
		return nil
	}
	if s.dropped > 0 {
		log.Printf("sql: %d samples dropped by the write limiter", s.dropped)
	}
	return s.db.Close()
}

type seriesKey struct {
	group, element, attribute string
}

// seriesID returns the id of the series, creating it if necessary.
func (s *SQL) seriesID(ctx context.Context, tx *sql.Tx, k seriesKey, typ attr.Type) (int64, error) {
	if id, ok := s.ids.Get(k); ok {
		return id.(int64), nil
	}
	var id int64
	err := tx.QueryRowContext(ctx, s.selectSeries, k.group, k.element, k.attribute).Scan(&id)
	if err == sql.ErrNoRows {
		err = tx.QueryRowContext(ctx, s.insertSeries, k.group, k.element, k.attribute, typ.String()).Scan(&id)
	}
	if err != nil {
		return 0, err
	}
	s.ids.Add(k, id)
	return id, nil
}

var commitTx = func(tx *sql.Tx) error {
	return tx.Commit()
}

func (s *SQL) Draw(ctx context.Context) error {
	s.cycles++
	if s.cycles%s.interval != 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, s.insertSample)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	ts := time.Now().UnixNano() / int64(time.Millisecond)
	for _, g := range s.reg.Groups() {
		for _, el := range g.Elements() {
			var werr error
			el.Attrs().Each(func(a *attr.Attribute) {
				if werr != nil {
					return
				}
				if s.limiter != nil && !s.limiter.Allow() {
					s.dropped++
					return
				}
				k := seriesKey{g.Name(), el.Name(), a.Def().Name()}
				id, err := s.seriesID(ctx, tx, k, a.Def().Type())
				if err != nil {
					werr = err
					return
				}
				_, werr = stmt.ExecContext(ctx, id, ts,
					int64(a.Rx.Total), int64(a.Tx.Total), a.Rx.Rate, a.Tx.Rate)
			})
			if werr != nil {
				tx.Rollback()
				// ids created within the failed transaction are gone
				s.ids.Purge()
				return werr
			}
		}
	}
	if err := commitTx(tx); err != nil {
		s.ids.Purge()
		return err
	}
	return nil
}
