package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendMessageCreatesConversationAndCounters(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewTranscriptStore(db, nil)
	phone := "966501234567"

	mock.ExpectQuery(`SELECT id FROM conversations`).
		WithArgs("wa:966501234567").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO conversations`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO conversation_messages`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE conversations SET`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.AppendMessage(context.Background(), phone, TranscriptMessage{
		Role: "user", Body: "ابغى احجز", From: phone, Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMessageSkipsDuplicateInsert(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewTranscriptStore(db, nil)
	convUUID := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

	mock.ExpectQuery(`SELECT id FROM conversations`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(convUUID))
	mock.ExpectExec(`UPDATE conversations SET updated_at`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// ON CONFLICT DO NOTHING swallowed the insert, counters stay put.
	mock.ExpectExec(`INSERT INTO conversation_messages`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.AppendMessage(context.Background(), "966501234567", TranscriptMessage{
		ID: convUUID, Role: "assistant", Body: "تمام",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExcludedPhoneIsNeverPersisted(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewTranscriptStore(db, []string{"+966 50 123 4567"})

	err = store.AppendMessage(context.Background(), "966501234567", TranscriptMessage{
		Role: "user", Body: "test",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "no SQL may run for excluded phones")
}

func TestNilStoreIsSafe(t *testing.T) {
	var store *TranscriptStore
	require.NoError(t, store.AppendMessage(context.Background(), "966501234567", TranscriptMessage{}))
	require.NoError(t, store.EndConversation(context.Background(), "966501234567", "ended"))
	msgs, err := store.GetMessages(context.Background(), "966501234567", 10)
	require.NoError(t, err)
	assert.Nil(t, msgs)
}

func TestEndConversationMarksRow(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewTranscriptStore(db, nil)
	mock.ExpectExec(`UPDATE conversations SET`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.EndConversation(context.Background(), "966501234567", "completed"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMessagesScansRows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewTranscriptStore(db, nil)
	rows := sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "from_phone", "to_phone", "created_at"}).
		AddRow("6ba7b810-9dad-11d1-80b4-00c04fd430c8", "wa:966501234567", "user", "احجز", "966501234567", "", time.Now()).
		AddRow("6ba7b811-9dad-11d1-80b4-00c04fd430c8", "wa:966501234567", "assistant", "تمام", "", "966501234567", time.Now())
	mock.ExpectQuery(`SELECT id, conversation_id, role, content`).
		WillReturnRows(rows)

	msgs, err := store.GetMessages(context.Background(), "966501234567", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "تمام", msgs[1].Content)
}
