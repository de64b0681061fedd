package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/1040440-eng/chatfamily/internal/apperr"
	"github.com/1040440-eng/chatfamily/internal/models"
)

// ChatTypeDirect is the only chat type currently modeled.
const ChatTypeDirect = "direct"

// pairKey builds the canonical index key for an unordered user pair, so
// (A,B) and (B,A) resolve to the same chat.
func pairKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return idxChatPair + userA + "|" + userB
}

// CreateOrGetDirectChat returns the direct chat between the two users,
// creating it if absent. A chat with oneself is rejected.
func (s *DB) CreateOrGetDirectChat(ctx context.Context, userA, userB string) (*models.Chat, error) {
	if userA == userB {
		return nil, apperr.New(apperr.InvalidArgument, "cannot start a chat with yourself")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var chat models.Chat
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, id := range []string{userA, userB} {
			if _, err := txn.Get([]byte(idxUserID + id)); err == badger.ErrKeyNotFound {
				return apperr.New(apperr.NotFound, "user not found")
			} else if err != nil {
				return err
			}
		}
		pk := []byte(pairKey(userA, userB))
		err := resolve(txn, pk, &chat)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		now := time.Now().UTC()
		chat = models.Chat{
			ID:             uuid.New().String(),
			Type:           ChatTypeDirect,
			ParticipantIDs: []string{userA, userB},
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		seq, err := nextSeq(txn, metaChatSeq)
		if err != nil {
			return err
		}
		key := chatKey(seq)
		if err := setJSON(txn, key, &chat); err != nil {
			return err
		}
		if err := txn.Set([]byte(idxChatID+chat.ID), key); err != nil {
			return err
		}
		return txn.Set(pk, key)
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetChat returns the chat by ID.
func (s *DB) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.View(func(txn *badger.Txn) error {
		return resolve(txn, []byte(idxChatID+chatID), &chat)
	})
	if err == badger.ErrKeyNotFound {
		return nil, apperr.New(apperr.NotFound, "chat not found")
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetChatParticipants resolves the chat's participants to user records.
func (s *DB) GetChatParticipants(ctx context.Context, chatID string) ([]models.User, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(chat.ParticipantIDs))
	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range chat.ParticipantIDs {
			var u models.User
			if err := resolve(txn, []byte(idxUserID+id), &u); err != nil {
				return err
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// ListChatsForUser builds the chat overview for a user: peer, last message
// with preview, and unread count, sorted by most recent activity.
func (s *DB) ListChatsForUser(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	var summaries []models.ChatSummary
	err := s.db.View(func(txn *badger.Txn) error {
		var chats []models.Chat
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		prefix := []byte(prefixChat)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var c models.Chat
			if err := it.Item().Value(func(data []byte) error {
				return json.Unmarshal(data, &c)
			}); err != nil {
				it.Close()
				return err
			}
			if lo.Contains(c.ParticipantIDs, userID) {
				chats = append(chats, c)
			}
		}
		it.Close()

		for _, c := range chats {
			peerID, _ := lo.Find(c.ParticipantIDs, func(id string) bool { return id != userID })
			var peer models.User
			if err := resolve(txn, []byte(idxUserID+peerID), &peer); err != nil {
				return err
			}
			last, unread, err := chatDigest(txn, c.ID, userID)
			if err != nil {
				return err
			}
			summary := models.ChatSummary{
				ChatID:      c.ID,
				Peer:        peer,
				LastMessage: last,
				UnreadCount: unread,
				UpdatedAt:   c.UpdatedAt,
			}
			if last != nil {
				summary.LastPreview = preview(last)
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// chatDigest walks a chat's messages and returns the newest one plus the
// number unread by userID (authored by someone else, readBy missing userID).
func chatDigest(txn *badger.Txn, chatID, userID string) (*models.Message, int, error) {
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	defer it.Close()
	prefix := chatMessagePrefix(chatID)
	var last *models.Message
	unread := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var recordKey []byte
		if err := it.Item().Value(func(data []byte) error {
			recordKey = append([]byte(nil), data...)
			return nil
		}); err != nil {
			return nil, 0, err
		}
		var m models.Message
		if err := getJSON(txn, recordKey, &m); err != nil {
			return nil, 0, err
		}
		if m.SenderID != userID && !m.IsReadBy(userID) {
			unread++
		}
		last = &m
	}
	return last, unread, nil
}

// preview derives the human-readable one-line summary of a message.
func preview(m *models.Message) string {
	switch m.Kind {
	case models.KindImage:
		return "photo"
	case models.KindVideo:
		return "video"
	case models.KindAudio:
		return "voice message"
	case models.KindFile:
		if m.Media != nil && m.Media.FileName != "" {
			return m.Media.FileName
		}
		return "attachment"
	case models.KindSystem:
		return "system message"
	default:
		return m.Text
	}
}
