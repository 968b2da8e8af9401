package messagelog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/Tyrowin/pairchat/internal/relay"
)

// Badger persists the log in a BadgerDB directory.
//
// Keys are "msg:{low}:{high}:{unixnano}:{id}" where low/high are the two
// participants in ascending order, so a conversation is a single prefix scan
// and the zero padding keeps it chronological.
type Badger struct {
	db     *badger.DB
	logger *zap.Logger
}

// OpenBadger opens (or creates) a log under dir.
func OpenBadger(dir string, logger *zap.Logger) (*Badger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{logger.Sugar()}).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open message log at %s: %w", dir, err)
	}
	return &Badger{db: db, logger: logger}, nil
}

func conversationPrefix(a, b relay.Identity) []byte {
	low, high := a, b
	if low > high {
		low, high = high, low
	}
	return []byte(fmt.Sprintf("msg:%019d:%019d:", low, high))
}

func messageKey(msg relay.Message) []byte {
	prefix := conversationPrefix(msg.SenderID, msg.ReceiverID)
	return append(prefix, fmt.Sprintf("%019d:%019d", msg.Timestamp.UnixNano(), msg.ID)...)
}

// Append writes msg in its own transaction.
func (b *Badger) Append(_ context.Context, msg relay.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %d: %w", msg.ID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), value)
	})
	if err != nil {
		return fmt.Errorf("store message %d: %w", msg.ID, err)
	}
	return nil
}

// Conversation returns every message between a and b, oldest first.
func (b *Badger) Conversation(ctx context.Context, a, c relay.Identity) ([]relay.Message, error) {
	messages := make([]relay.Message, 0)
	prefix := conversationPrefix(a, c)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var msg relay.Message
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &msg)
			})
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read conversation %d/%d: %w", a, c, err)
	}
	return messages, nil
}

// Close flushes and closes the database.
func (b *Badger) Close() error {
	b.logger.Info("Closing message log")
	return b.db.Close()
}

type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}
