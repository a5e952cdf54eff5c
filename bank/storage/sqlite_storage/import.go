package sqlite_storage

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/ngaut/log"
	"github.com/pingcap/errors"
)

// LoadCSV bulk-imports accounts from a CSV file with a header row. Columns
// "city" and "balance" are required; "account_id" is optional and, when
// present, pins the imported account to that id. Returns the ids of the
// imported accounts in file order.
func (s *SqliteStorage) LoadCSV(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotatef(err, "open csv %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, errors.Annotatef(err, "read csv header %s", path)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	cityCol, ok := cols["city"]
	if !ok {
		return nil, errors.Errorf("csv %s has no %q column", path, "city")
	}
	balanceCol, ok := cols["balance"]
	if !ok {
		return nil, errors.Errorf("csv %s has no %q column", path, "balance")
	}
	idCol, hasID := cols["account_id"]

	var ids []uint64
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Annotatef(err, "csv %s line %d", path, line)
		}
		balance, err := strconv.ParseInt(record[balanceCol], 10, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "csv %s line %d: balance", path, line)
		}
		var id uint64
		if hasID && record[idCol] != "" {
			id, err = strconv.ParseUint(record[idCol], 10, 64)
			if err != nil {
				return nil, errors.Annotatef(err, "csv %s line %d: account_id", path, line)
			}
		}
		created, err := s.createAccount(record[cityCol], balance, id)
		if err != nil {
			return nil, errors.Annotatef(err, "csv %s line %d", path, line)
		}
		ids = append(ids, created)
	}
	log.Infof("imported %d accounts from %s", len(ids), path)
	return ids, nil
}
