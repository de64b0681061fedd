package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1040440-eng/chatfamily/internal/apperr"
	"github.com/1040440-eng/chatfamily/internal/models"
	"github.com/1040440-eng/chatfamily/internal/upload"
	"github.com/1040440-eng/chatfamily/internal/ws"
)

type fakeUploader struct {
	obj     *upload.Object
	err     error
	gotName string
	data    []byte
}

func (f *fakeUploader) Store(fileName string, r io.Reader) (*upload.Object, error) {
	f.gotName = fileName
	f.data, _ = io.ReadAll(r)
	if f.err != nil {
		return nil, f.err
	}
	return f.obj, nil
}

func chatsRouter(st *mockStore, uploader upload.Uploader, maxUpload int64) http.Handler {
	return ChatsRoutes(st, ws.NewFanout(ws.NewHub()), uploader, testJWTSecret, maxUpload)
}

func directChat() *models.Chat {
	return &models.Chat{ID: "chat1", Type: "direct", ParticipantIDs: []string{"u1", "u2"}}
}

func TestCreateOrGetChat(t *testing.T) {
	st := &mockStore{
		getUserByLoginFn: func(ctx context.Context, login string) (*models.User, error) {
			assert.Equal(t, "bob", login)
			return &models.User{ID: "u2", Name: "Bob"}, nil
		},
		createOrGetDirectChatFn: func(ctx context.Context, userA, userB string) (*models.Chat, error) {
			assert.Equal(t, "u1", userA)
			assert.Equal(t, "u2", userB)
			return directChat(), nil
		},
		listChatsForUserFn: func(ctx context.Context, userID string) ([]models.ChatSummary, error) {
			return []models.ChatSummary{{ChatID: "chat1", Peer: models.User{ID: "u2", Name: "Bob"}}}, nil
		},
	}
	r := chatsRouter(st, nil, 1<<20)

	rec := postJSONAuthed(t, r, "/", tokenFor(t, "u1"), map[string]string{"contactName": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.ChatSummary
	decodeBody(t, rec, &got)
	assert.Equal(t, "chat1", got.ChatID)
	assert.Equal(t, "u2", got.Peer.ID)
}

func TestCreateOrGetChat_MissingContact(t *testing.T) {
	r := chatsRouter(&mockStore{}, nil, 1<<20)

	rec := postJSONAuthed(t, r, "/", tokenFor(t, "u1"), map[string]string{"contactName": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrGetChat_UnknownContact(t *testing.T) {
	st := &mockStore{
		getUserByLoginFn: func(ctx context.Context, login string) (*models.User, error) {
			return nil, apperr.New(apperr.NotFound, "user not found")
		},
	}
	r := chatsRouter(st, nil, 1<<20)

	rec := postJSONAuthed(t, r, "/", tokenFor(t, "u1"), map[string]string{"contactName": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListChats_EmptyArray(t *testing.T) {
	st := &mockStore{
		listChatsForUserFn: func(ctx context.Context, userID string) ([]models.ChatSummary, error) {
			return nil, nil
		},
	}
	r := chatsRouter(st, nil, 1<<20)

	rec := authedGet(t, r, "/", tokenFor(t, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestMessages(t *testing.T) {
	st := &mockStore{
		getChatFn: func(ctx context.Context, chatID string) (*models.Chat, error) {
			assert.Equal(t, "chat1", chatID)
			return directChat(), nil
		},
		listMessagesFn: func(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
			assert.Equal(t, messageHistoryLimit, limit)
			return []models.Message{{ID: "m1", ChatID: chatID, Text: "hi"}}, nil
		},
	}
	r := chatsRouter(st, nil, 1<<20)

	rec := authedGet(t, r, "/chat1/messages", tokenFor(t, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []models.Message
	decodeBody(t, rec, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Text)
}

func TestMessages_NonParticipantForbidden(t *testing.T) {
	st := &mockStore{
		getChatFn: func(ctx context.Context, chatID string) (*models.Chat, error) {
			return directChat(), nil
		},
	}
	r := chatsRouter(st, nil, 1<<20)

	rec := authedGet(t, r, "/chat1/messages", tokenFor(t, "outsider"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMarkRead(t *testing.T) {
	marked := false
	st := &mockStore{
		getChatFn: func(ctx context.Context, chatID string) (*models.Chat, error) {
			return directChat(), nil
		},
		markChatReadFn: func(ctx context.Context, chatID, userID string) error {
			assert.Equal(t, "chat1", chatID)
			assert.Equal(t, "u1", userID)
			marked = true
			return nil
		},
	}
	r := chatsRouter(st, nil, 1<<20)

	rec := postJSONAuthed(t, r, "/chat1/read", tokenFor(t, "u1"), map[string]string{})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, marked)
}

func multipartBody(t *testing.T, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadAttachment(t *testing.T) {
	uploader := &fakeUploader{obj: &upload.Object{URL: "/uploads/abc.png", MimeType: "image/png", Size: 4}}
	var gotMedia *models.Media
	var gotKind models.MessageKind
	st := &mockStore{
		getChatFn: func(ctx context.Context, chatID string) (*models.Chat, error) {
			return directChat(), nil
		},
		getUserByIDFn: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: "u1", Name: "Alice"}, nil
		},
		addMessageFn: func(ctx context.Context, chatID, senderID, senderName string, kind models.MessageKind, text string, media *models.Media) (*models.Message, error) {
			gotMedia, gotKind = media, kind
			return &models.Message{ID: "m1", ChatID: chatID, SenderID: senderID, Kind: kind, Text: text, Media: media}, nil
		},
	}
	r := chatsRouter(st, uploader, 1<<20)

	body, contentType := multipartBody(t, "pic.png", []byte("data"), map[string]string{
		"caption": "look", "width": "640", "height": "480",
	})
	req := httptest.NewRequest(http.MethodPost, "/chat1/attachments", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pic.png", uploader.gotName)
	assert.Equal(t, []byte("data"), uploader.data)
	require.NotNil(t, gotMedia)
	assert.Equal(t, "/uploads/abc.png", gotMedia.URL)
	assert.Equal(t, 640, gotMedia.Width)
	assert.Equal(t, 480, gotMedia.Height)
	// No explicit kind in the form: derived from the sniffed mime type.
	assert.Equal(t, models.KindImage, gotKind)

	var msg models.Message
	decodeBody(t, rec, &msg)
	assert.Equal(t, "look", msg.Text)
}

func TestUploadAttachment_TooLarge(t *testing.T) {
	st := &mockStore{
		getChatFn: func(ctx context.Context, chatID string) (*models.Chat, error) {
			return directChat(), nil
		},
		getUserByIDFn: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: "u1", Name: "Alice"}, nil
		},
	}
	r := chatsRouter(st, &fakeUploader{}, 64)

	body, contentType := multipartBody(t, "big.bin", bytes.Repeat([]byte("x"), 1024), nil)
	req := httptest.NewRequest(http.MethodPost, "/chat1/attachments", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUploadAttachment_MissingFile(t *testing.T) {
	st := &mockStore{
		getChatFn: func(ctx context.Context, chatID string) (*models.Chat, error) {
			return directChat(), nil
		},
		getUserByIDFn: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: "u1", Name: "Alice"}, nil
		},
	}
	r := chatsRouter(st, &fakeUploader{}, 1<<20)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("caption", "no file"))
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/chat1/attachments", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
