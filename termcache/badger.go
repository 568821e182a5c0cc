package termcache

import (
	"context"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/errors"
)

// BadgerOptions configures a BadgerBackend.
type BadgerOptions struct {
	// Path is the data directory; ignored when InMemory is set.
	Path     string
	InMemory bool
	// Logger receives badger's own messages; nil silences them.
	Logger *zap.SugaredLogger
}

// BadgerBackend keeps entries in an embedded badger store.
// Set members are stored as empty values under "<set>\x00<member>".
type BadgerBackend struct {
	db *badger.DB
}

// badgerLogger adapts zap to badger.Logger
type badgerLogger struct {
	l *zap.SugaredLogger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Errorf(format, args...)
}
func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warnf(format, args...)
}
func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debugf(format, args...)
}
func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debugf(format, args...)
}

func OpenBadgerBackend(opts BadgerOptions) (*BadgerBackend, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.NewConfigurationError("term_cache.badger_path is required for the badger backend")
		}
		if err := os.MkdirAll(opts.Path, 0750); err != nil {
			return nil, errors.Wrapf(err, "create badger directory %s", opts.Path)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}

	bopts = bopts.WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(badgerLogger{opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger term cache")
	}
	return &BadgerBackend{db: db}, nil
}

func setMemberKey(set, member string) []byte {
	return []byte(fmt.Sprintf("%s\x00%s", set, member))
}

func (b *BadgerBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "badger get")
	}
	return value, true, nil
}

func (b *BadgerBackend) Set(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return errors.Wrap(err, "badger set")
}

func (b *BadgerBackend) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return errors.Wrap(err, "badger delete")
}

func (b *BadgerBackend) SAdd(ctx context.Context, set, member string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(setMemberKey(set, member), []byte{})
	})
	return errors.Wrap(err, "badger sadd")
}

func (b *BadgerBackend) SRem(_ context.Context, set, member string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(setMemberKey(set, member))
	})
	return errors.Wrap(err, "badger srem")
}

func (b *BadgerBackend) SIsMember(_ context.Context, set, member string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(setMemberKey(set, member))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "badger sismember")
	}
	return true, nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
