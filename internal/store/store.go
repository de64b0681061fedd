// Package store persists users, chats and messages in an embedded Badger
// database. The dataset behaves as a single serialization domain: every
// mutating operation runs inside one Update transaction while holding the
// store mutex, so writes appear atomic to subsequent reads and concurrent
// writers cannot lose each other's effects.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/1040440-eng/chatfamily/internal/models"
)

// Store defines the persistence operations used by the API and realtime
// layers. *DB satisfies this interface. Use for dependency injection in tests.
type Store interface {
	CreateUser(ctx context.Context, name, login, email string, passwordHash *string) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SearchUsers(ctx context.Context, query, excludeID string) ([]models.User, error)

	CreateOrGetDirectChat(ctx context.Context, userA, userB string) (*models.Chat, error)
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	GetChatParticipants(ctx context.Context, chatID string) ([]models.User, error)

	AddMessage(ctx context.Context, chatID, senderID, senderName string, kind models.MessageKind, text string, media *models.Media) (*models.Message, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	MarkChatRead(ctx context.Context, chatID, userID string) error
	ListChatsForUser(ctx context.Context, userID string) ([]models.ChatSummary, error)
}

// DB is the Badger-backed Store.
type DB struct {
	// mu serializes mutations. Individual Badger transactions are atomic,
	// but operations like retention trimming and read-marking are
	// read-modify-write over many keys and must not interleave.
	mu         sync.Mutex
	db         *badger.DB
	log        *slog.Logger
	messageCap int
}

// Open opens (or creates) the database under dir. messageCap bounds the
// total number of retained messages across all chats; zero or negative
// disables trimming.
func Open(dir string, messageCap int, log *slog.Logger) (*DB, error) {
	b, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &DB{db: b, log: log, messageCap: messageCap}, nil
}

// OpenInMemory opens a throwaway in-memory database, used in tests.
func OpenInMemory(messageCap int, log *slog.Logger) (*DB, error) {
	b, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badger open in-memory: %w", err)
	}
	return &DB{db: b, log: log, messageCap: messageCap}, nil
}

// Close closes the underlying database.
func (s *DB) Close() error { return s.db.Close() }

// Ping verifies the database is usable.
func (s *DB) Ping() error {
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// Key layout. Record keys embed a zero-padded sequence number so Badger's
// lexicographic iteration order is storage (creation) order; index keys map
// external identifiers back to record keys.
const (
	prefixUser    = "u:"
	prefixChat    = "c:"
	prefixMessage = "m:"

	idxUserID    = "ui:"
	idxUserLogin = "ul:"
	idxUserEmail = "ue:"
	idxChatID    = "ci:"
	idxChatPair  = "cp:"
	idxChatMsg   = "mc:"

	metaUserSeq  = "meta:useq"
	metaChatSeq  = "meta:cseq"
	metaMsgSeq   = "meta:mseq"
	metaMsgCount = "meta:mcount"
)

func userKey(seq uint64) []byte    { return []byte(fmt.Sprintf("%s%012d", prefixUser, seq)) }
func chatKey(seq uint64) []byte    { return []byte(fmt.Sprintf("%s%012d", prefixChat, seq)) }
func messageKey(seq uint64) []byte { return []byte(fmt.Sprintf("%s%020d", prefixMessage, seq)) }

// chatMessageKey indexes a message under its chat, in global creation order.
func chatMessageKey(chatID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", idxChatMsg, chatID, seq))
}

func chatMessagePrefix(chatID string) []byte {
	return []byte(idxChatMsg + chatID + ":")
}

// nextSeq increments and returns the counter stored at key, starting at 1.
func nextSeq(txn *badger.Txn, key string) (uint64, error) {
	n, err := getCounter(txn, key)
	if err != nil {
		return 0, err
	}
	n++
	if err := txn.Set([]byte(key), []byte(fmt.Sprintf("%d", n))); err != nil {
		return 0, err
	}
	return n, nil
}

func getCounter(txn *badger.Txn, key string) (uint64, error) {
	item, err := txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n uint64
	err = item.Value(func(v []byte) error {
		_, serr := fmt.Sscanf(string(v), "%d", &n)
		return serr
	})
	return n, err
}

func setCounter(txn *badger.Txn, key string, n uint64) error {
	return txn.Set([]byte(key), []byte(fmt.Sprintf("%d", n)))
}

// getJSON loads and decodes the record at key into v.
func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(data []byte) error {
		return json.Unmarshal(data, v)
	})
}

// setJSON encodes v and stores it at key.
func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// resolve follows an index key to its record key, then decodes the record.
func resolve(txn *badger.Txn, indexKey []byte, v interface{}) error {
	item, err := txn.Get(indexKey)
	if err != nil {
		return err
	}
	var recordKey []byte
	if err := item.Value(func(data []byte) error {
		recordKey = append([]byte(nil), data...)
		return nil
	}); err != nil {
		return err
	}
	return getJSON(txn, recordKey, v)
}
