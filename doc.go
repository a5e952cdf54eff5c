package tinybank

/*
TinyBank is a small transactional banking engine intended for teaching and
experimentation. Accounts are fragmented across independent sqlite files,
one per geographic partition, and composite operations (transfers spanning
two fragments, deposits, withdrawals with balance constraints) execute with
serializable, all-or-nothing semantics under strict two-phase locking
(SS2PL).

A caller constructs a declarative Transaction (deposit, withdraw, transfer,
balance) and hands it to the transaction Manager. The Manager resolves it
into an ordered sequence of primitive read/write steps, acquires a shared or
exclusive lock for each step's account, validates every step against
balances staged in memory, flushes the staged writes to the fragments, and
only then releases all locks. A failure at any point releases everything
with nothing flushed, so no partial effect of a transaction is ever visible
to another.

Multi-account transactions lock their accounts in ascending account-id
order. Because every transaction kind obeys that fixed global order,
circular waits cannot arise between well-formed transactions; a bounded lock
wait remains as a safety net for future kinds.

The `tinybank` module is organized into the following packages:

* `bank/config`: TOML configuration of the fragment map and the lock wait
  bound.
* `bank/storage`: the storage contract the core consumes, the write batch
  which stages a transaction's writes, and an in-memory store for tests.
* `bank/storage/sqlite_storage`: the sqlite-backed fragment store with CSV
  bulk import.
* `bank/transaction`: the transaction model, the per-kind resolvers and the
  executing Manager.
* `bank/transaction/locks`: the lock manager.

Building the `bank` package produces a demo binary which seeds accounts
(optionally from CSV) and runs a few transactions, including crossing
concurrent transfers.
*/
