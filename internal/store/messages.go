package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/1040440-eng/chatfamily/internal/apperr"
	"github.com/1040440-eng/chatfamily/internal/models"
)

const maxTextLen = 2000

// AddMessage persists a message in the chat, stamps the chat's updatedAt and
// applies the global retention cap (oldest messages across all chats go
// first).
func (s *DB) AddMessage(ctx context.Context, chatID, senderID, senderName string, kind models.MessageKind, text string, media *models.Media) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > maxTextLen {
		text = string(runes[:maxTextLen])
	}
	media = sanitizeMedia(media)
	if !models.ValidKind(kind) {
		if media != nil {
			kind = models.KindFile
		} else {
			kind = models.KindText
		}
	}

	msg := &models.Message{
		ID:         uuid.New().String(),
		ChatID:     chatID,
		SenderID:   senderID,
		SenderName: senderName,
		Kind:       kind,
		Text:       text,
		Media:      media,
		CreatedAt:  time.Now().UTC(),
		ReadBy:     []string{senderID},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(txn *badger.Txn) error {
		chatIdxKey := []byte(idxChatID + chatID)
		item, err := txn.Get(chatIdxKey)
		if err == badger.ErrKeyNotFound {
			return apperr.New(apperr.NotFound, "chat not found")
		}
		if err != nil {
			return err
		}
		var chatRecordKey []byte
		if err := item.Value(func(data []byte) error {
			chatRecordKey = append([]byte(nil), data...)
			return nil
		}); err != nil {
			return err
		}

		seq, err := nextSeq(txn, metaMsgSeq)
		if err != nil {
			return err
		}
		key := messageKey(seq)
		if err := setJSON(txn, key, msg); err != nil {
			return err
		}
		if err := txn.Set(chatMessageKey(chatID, seq), key); err != nil {
			return err
		}

		var chat models.Chat
		if err := getJSON(txn, chatRecordKey, &chat); err != nil {
			return err
		}
		chat.UpdatedAt = msg.CreatedAt
		if err := setJSON(txn, chatRecordKey, &chat); err != nil {
			return err
		}

		count, err := getCounter(txn, metaMsgCount)
		if err != nil {
			return err
		}
		count++
		if s.messageCap > 0 {
			trimmed, err := trimOldest(txn, int(count)-s.messageCap)
			if err != nil {
				return err
			}
			count -= uint64(trimmed)
		}
		return setCounter(txn, metaMsgCount, count)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// trimOldest deletes up to n messages starting from the globally oldest,
// along with their per-chat index entries.
func trimOldest(txn *badger.Txn, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	type victim struct {
		key     []byte
		chatKey []byte
	}
	var victims []victim
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	prefix := []byte(prefixMessage)
	for it.Seek(prefix); it.ValidForPrefix(prefix) && len(victims) < n; it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		var m models.Message
		if err := item.Value(func(data []byte) error {
			return json.Unmarshal(data, &m)
		}); err != nil {
			it.Close()
			return 0, err
		}
		// Record key is "m:<seq20>"; the chat index reuses the seq suffix.
		seqPart := key[len(prefixMessage):]
		chatIdx := append(chatMessagePrefix(m.ChatID), seqPart...)
		victims = append(victims, victim{key: key, chatKey: chatIdx})
	}
	it.Close()
	for _, v := range victims {
		if err := txn.Delete(v.key); err != nil {
			return 0, err
		}
		if err := txn.Delete(v.chatKey); err != nil {
			return 0, err
		}
	}
	return len(victims), nil
}

// ListMessages returns the most recent limit messages of the chat in
// ascending chronological order.
func (s *DB) ListMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(idxChatID + chatID)); err == badger.ErrKeyNotFound {
			return apperr.New(apperr.NotFound, "chat not found")
		} else if err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := chatMessagePrefix(chatID)
		// Seek past the end of the prefix range, then walk backwards.
		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var recordKey []byte
			if err := it.Item().Value(func(data []byte) error {
				recordKey = append([]byte(nil), data...)
				return nil
			}); err != nil {
				return err
			}
			var m models.Message
			if err := getJSON(txn, recordKey, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Collected newest-first; flip to ascending.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MarkChatRead adds userID to the readBy set of every message in the chat.
// Idempotent: messages already read are left untouched.
func (s *DB) MarkChatRead(ctx context.Context, chatID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(idxChatID + chatID)); err == badger.ErrKeyNotFound {
			return apperr.New(apperr.NotFound, "chat not found")
		} else if err != nil {
			return err
		}
		type pending struct {
			key []byte
			msg models.Message
		}
		var updates []pending
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		prefix := chatMessagePrefix(chatID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var recordKey []byte
			if err := it.Item().Value(func(data []byte) error {
				recordKey = append([]byte(nil), data...)
				return nil
			}); err != nil {
				it.Close()
				return err
			}
			var m models.Message
			if err := getJSON(txn, recordKey, &m); err != nil {
				it.Close()
				return err
			}
			if !m.IsReadBy(userID) {
				m.ReadBy = append(m.ReadBy, userID)
				updates = append(updates, pending{key: recordKey, msg: m})
			}
		}
		it.Close()
		for _, u := range updates {
			if err := setJSON(txn, u.key, &u.msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// sanitizeMedia drops attachments without a URL and clears out-of-range
// numeric fields so only valid values are persisted.
func sanitizeMedia(m *models.Media) *models.Media {
	if m == nil || strings.TrimSpace(m.URL) == "" {
		return nil
	}
	clean := *m
	clean.URL = strings.TrimSpace(m.URL)
	clean.FileName = strings.TrimSpace(m.FileName)
	clean.MimeType = strings.TrimSpace(m.MimeType)
	if clean.Size < 0 {
		clean.Size = 0
	}
	if clean.DurationSec < 0 {
		clean.DurationSec = 0
	}
	if clean.Width < 0 {
		clean.Width = 0
	}
	if clean.Height < 0 {
		clean.Height = 0
	}
	return &clean
}
