package main

import (
	"flag"
	"sync"

	"github.com/ngaut/log"

	"github.com/pingcap-incubator/tinybank/bank/config"
	"github.com/pingcap-incubator/tinybank/bank/storage/sqlite_storage"
	"github.com/pingcap-incubator/tinybank/bank/transaction"
	"github.com/pingcap-incubator/tinybank/bank/transaction/locks"
)

var (
	configPath = flag.String("config", "", "config file; built-in defaults are used when empty")
	csvPath    = flag.String("csv", "", "CSV file of accounts to import before running")
)

func main() {
	flag.Parse()
	var conf *config.Config
	if *configPath != "" {
		var err error
		conf, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	} else {
		conf = config.NewDefaultConfig()
	}
	log.SetLevelByString(conf.LogLevel)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	log.Infof("conf %v", conf)
	if len(conf.Fragments) < 2 || len(conf.Fragments[0].Cities) == 0 || len(conf.Fragments[1].Cities) == 0 {
		log.Fatalf("demo needs at least two fragments with cities")
	}

	store := sqlite_storage.New(conf)
	if err := store.Start(); err != nil {
		log.Fatalf("start storage: %v", err)
	}
	defer store.Stop()

	if *csvPath != "" {
		if _, err := store.LoadCSV(*csvPath); err != nil {
			log.Fatalf("import %s: %v", *csvPath, err)
		}
	}

	manager := transaction.NewManager(store, locks.NewLockManager(conf.LockTimeout.Duration))

	a, err := store.CreateAccount(conf.Fragments[0].Cities[0], 1000)
	if err != nil {
		log.Fatalf("create account: %v", err)
	}
	b, err := store.CreateAccount(conf.Fragments[1].Cities[0], 1000)
	if err != nil {
		log.Fatalf("create account: %v", err)
	}

	if _, err := manager.Execute(transaction.NewDeposit(a, 2500)); err != nil {
		log.Fatalf("deposit: %v", err)
	}
	if _, err := manager.Execute(transaction.NewTransfer(a, b, 500)); err != nil {
		log.Fatalf("transfer: %v", err)
	}

	// Crossing transfers between the same two accounts, concurrently. 2PL
	// serializes them; the totals come out unchanged.
	var wg sync.WaitGroup
	for _, txn := range []*transaction.Transaction{
		transaction.NewTransfer(a, b, 300),
		transaction.NewTransfer(b, a, 300),
	} {
		wg.Add(1)
		go func(txn *transaction.Transaction) {
			defer wg.Done()
			if _, err := manager.Execute(txn); err != nil {
				log.Errorf("txn %d: %v", txn.ID, err)
			}
		}(txn)
	}
	wg.Wait()

	for _, id := range []uint64{a, b} {
		res, err := manager.Execute(transaction.NewBalance(id))
		if err != nil {
			log.Fatalf("balance of %d: %v", id, err)
		}
		log.Infof("account %d balance %d", id, res.Balances[id])
	}
}
